package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperbot-go/exec"
	"paperbot-go/journal"
)

func fill(id, symbol string, qty, price, fee float64) exec.Fill {
	side := exec.SideBuy
	if qty < 0 {
		side = exec.SideSell
	}
	return exec.Fill{
		ID: id, OrderID: "O-" + id, Symbol: symbol, Side: side,
		Qty: qty, Price: price, Fee: fee, FeeCurrency: "USDT",
		Liquidity: exec.LiquidityTaker, Ts: time.Now().UTC(),
	}
}

func TestLatestBeforeAnyFill(t *testing.T) {
	l := New(100000, AvgCost{}, nil)
	snap := l.Latest()
	assert.Equal(t, 100000.0, snap.Equity)
	assert.Equal(t, 100000.0, snap.PeakEquity)
	assert.Empty(t, snap.Positions)
}

func TestRoundTripZeroPnL(t *testing.T) {
	l := New(100000, AvgCost{}, nil)
	_, err := l.OnFill(fill("F1", "BTCUSDT", 1, 50000, 0))
	require.NoError(t, err)
	snap, err := l.OnFill(fill("F2", "BTCUSDT", -1, 50000, 0))
	require.NoError(t, err)

	assert.InDelta(t, 0, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 100000, snap.Equity, 1e-9)
	assert.Equal(t, 0.0, snap.Positions["BTCUSDT"].Qty)
}

func TestFeesReduceEquity(t *testing.T) {
	l := New(100000, AvgCost{}, nil)
	_, err := l.OnFill(fill("F1", "BTCUSDT", 1, 50000, 25))
	require.NoError(t, err)
	snap, err := l.OnFill(fill("F2", "BTCUSDT", -1, 50000, 25))
	require.NoError(t, err)

	assert.InDelta(t, -50, snap.RealizedPnL, 1e-9)
	assert.InDelta(t, 50, snap.CumFees, 1e-9)
	assert.InDelta(t, 99950, snap.Equity, 1e-9)
}

func TestDegradedFeeNoCashImpact(t *testing.T) {
	l := New(100000, AvgCost{}, nil)
	f := fill("F1", "BTCUSDT", 1, 50000, 0.002)
	f.FeeCurrency = "BNB"
	f.FeeDegraded = true
	snap, err := l.OnFill(f)
	require.NoError(t, err)

	// 降级手续费不折算进记账货币
	assert.Equal(t, 0.0, snap.CumFees)
	assert.InDelta(t, 100000, snap.Equity, 1e-9)
}

func TestMarkToMarketAndDrawdown(t *testing.T) {
	l := New(100000, AvgCost{}, nil)
	_, err := l.OnFill(fill("F1", "BTCUSDT", 1, 50000, 0))
	require.NoError(t, err)

	now := time.Now().UTC()
	snap, err := l.MarkToMarket(now, map[string]float64{"BTCUSDT": 50500})
	require.NoError(t, err)
	assert.InDelta(t, 500, snap.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 100500, snap.Equity, 1e-9)
	assert.InDelta(t, 100500, snap.PeakEquity, 1e-9)
	assert.Equal(t, 0.0, snap.DrawdownPct)

	snap, err = l.MarkToMarket(now, map[string]float64{"BTCUSDT": 49500})
	require.NoError(t, err)
	assert.InDelta(t, 99500, snap.Equity, 1e-9)
	assert.InDelta(t, 100500, snap.PeakEquity, 1e-9) // 峰值只升不降
	assert.InDelta(t, 1000.0/100500.0, snap.DrawdownPct, 1e-9)
}

func TestMarkToMarketIgnoresNonPositivePrice(t *testing.T) {
	l := New(100000, AvgCost{}, nil)
	_, err := l.OnFill(fill("F1", "BTCUSDT", 1, 50000, 0))
	require.NoError(t, err)

	snap, err := l.MarkToMarket(time.Now(), map[string]float64{"BTCUSDT": 0})
	require.NoError(t, err)
	assert.InDelta(t, 100000, snap.Equity, 1e-9)
}

func TestOpenPositionCount(t *testing.T) {
	l := New(100000, AvgCost{}, nil)
	_, _ = l.OnFill(fill("F1", "BTCUSDT", 1, 50000, 0))
	_, _ = l.OnFill(fill("F2", "ETHUSDT", 10, 3000, 0))
	assert.Equal(t, 2, l.OpenPositionCount())

	_, _ = l.OnFill(fill("F3", "ETHUSDT", -10, 3000, 0))
	assert.Equal(t, 1, l.OpenPositionCount())
	assert.Equal(t, 0.0, l.Position("ETHUSDT").Qty)
}

// failingJournal 模拟落盘重试耗尽。
type failingJournal struct{}

func (failingJournal) RecordTrade(journal.TradeRecord) error   { return errors.New("disk full") }
func (failingJournal) RecordLedger(journal.LedgerRecord) error { return errors.New("disk full") }
func (failingJournal) Close() error                            { return nil }

func TestJournalFailureIsFatal(t *testing.T) {
	l := New(100000, AvgCost{}, failingJournal{})
	_, err := l.OnFill(fill("F1", "BTCUSDT", 1, 50000, 0))
	require.Error(t, err)
}

func TestPerFillRealizedRecordedInJournal(t *testing.T) {
	rec := &recordingJournal{}
	l := New(100000, AvgCost{}, rec)
	_, err := l.OnFill(fill("F1", "BTCUSDT", 1, 50000, 10))
	require.NoError(t, err)
	_, err = l.OnFill(fill("F2", "BTCUSDT", -1, 51000, 10))
	require.NoError(t, err)

	require.Len(t, rec.trades, 2)
	assert.InDelta(t, -10, rec.trades[0].RealizedPnL, 1e-9)  // 开仓腿只有手续费
	assert.InDelta(t, 990, rec.trades[1].RealizedPnL, 1e-9)  // 1000 盈亏 - 10 手续费
	assert.Equal(t, "SELL", rec.trades[1].Side)
}

type recordingJournal struct {
	trades []journal.TradeRecord
}

func (r *recordingJournal) RecordTrade(t journal.TradeRecord) error {
	r.trades = append(r.trades, t)
	return nil
}
func (r *recordingJournal) RecordLedger(journal.LedgerRecord) error { return nil }
func (r *recordingJournal) Close() error                            { return nil }
