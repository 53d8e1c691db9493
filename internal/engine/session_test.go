package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paperbot-go/events"
	"paperbot-go/exchange"
	"paperbot-go/exec"
	"paperbot-go/ledger"
	"paperbot-go/market"
	"paperbot-go/risk"
)

const testProfile = `
venue: binance
environment: paper
tickSize: 0.01
stepSize: 0.001
minNotional: 5
makerBps: 1
takerBps: 5
slippageBps: 2
`

func newTestSession(t *testing.T, equityStart float64, riskCfg risk.Config) (*Session, *risk.Registry, *ledger.Ledger, *events.Bus) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "binance_paper.yaml"), []byte(testProfile), 0644))

	bus := events.NewBus()
	flags := risk.NewRegistry()
	led := ledger.New(equityStart, ledger.AvgCost{}, nil)
	eng := risk.NewEngine(riskCfg, flags, bus, equityStart)

	s, err := New(Config{
		Venue:       "binance",
		Environment: "paper",
		Symbols:     []string{"BTCUSDT"},
		Exec: exec.Config{
			LiquidityFraction: 1.0, // 测试里一根 bar 吃满
			Slippage:          exec.SlippageConfig{Model: "fixed_bps", Bps: 0},
		},
	}, Components{
		Risk:     eng,
		Flags:    flags,
		Ledger:   led,
		Bus:      bus,
		Resolver: exchange.NewResolver(dir),
		Oracle:   exec.StaticOracle{},
	})
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s, flags, led, bus
}

func bar(ts time.Time, px float64) market.Kline {
	return market.Kline{
		Symbol: "BTCUSDT",
		Open:   px, High: px * 1.001, Low: px * 0.999, Close: px,
		Volume: 10,
		Ts:     ts,
	}
}

func TestSessionIntentToFill(t *testing.T) {
	s, _, led, _ := newTestSession(t, 100000, risk.DefaultConfig())
	now := time.Now().UTC()

	order, err := s.SubmitIntent(risk.Intent{
		Ts: now, Symbol: "BTCUSDT", Side: risk.SideLong,
		Strength: 1, Strategy: "trend", Price: 50000, ATR14: 500,
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, 1, s.OpenOrderCount())

	require.NoError(t, s.OnBar(bar(now.Add(time.Minute), 50000)))

	require.Equal(t, 0, s.OpenOrderCount())
	pos := led.Position("BTCUSDT")
	require.Greater(t, pos.Qty, 0.0)

	_, orders, fills, _ := s.GetStatistics()
	require.EqualValues(t, 1, orders)
	require.EqualValues(t, 1, fills)
}

func TestSessionFlatClosesPosition(t *testing.T) {
	s, _, led, _ := newTestSession(t, 100000, risk.DefaultConfig())
	now := time.Now().UTC()

	_, err := s.SubmitIntent(risk.Intent{
		Ts: now, Symbol: "BTCUSDT", Side: risk.SideLong,
		Strength: 1, Strategy: "trend", Price: 50000, ATR14: 500,
	})
	require.NoError(t, err)
	require.NoError(t, s.OnBar(bar(now.Add(time.Minute), 50000)))
	require.Greater(t, led.Position("BTCUSDT").Qty, 0.0)

	order, err := s.SubmitIntent(risk.Intent{
		Ts: now.Add(2 * time.Minute), Symbol: "BTCUSDT", Side: risk.SideFlat,
		Strength: 1, Strategy: "trend", Price: 50000, ATR14: 500,
	})
	require.NoError(t, err)
	require.NotNil(t, order)
	require.NoError(t, s.OnBar(bar(now.Add(3*time.Minute), 50000)))

	require.InDelta(t, 0, led.Position("BTCUSDT").Qty, 1e-9)
}

func TestSessionFlatNoPositionNoop(t *testing.T) {
	s, _, _, _ := newTestSession(t, 100000, risk.DefaultConfig())

	order, err := s.SubmitIntent(risk.Intent{
		Ts: time.Now().UTC(), Symbol: "BTCUSDT", Side: risk.SideFlat,
		Strength: 1, Strategy: "trend", Price: 50000, ATR14: 500,
	})
	require.NoError(t, err)
	require.Nil(t, order)
	require.Equal(t, 0, s.OpenOrderCount())
}

func TestSessionKillswitchCancelsOpenOrders(t *testing.T) {
	cfg := risk.DefaultConfig()
	cfg.KillSwitchEquityFloorPct = 0.95
	s, flags, _, _ := newTestSession(t, 100000, cfg)
	now := time.Now().UTC()

	// 买入后价格暴跌触发 kill switch
	_, err := s.SubmitIntent(risk.Intent{
		Ts: now, Symbol: "BTCUSDT", Side: risk.SideLong,
		Strength: 1, Strategy: "trend", Price: 50000, ATR14: 500,
	})
	require.NoError(t, err)
	require.NoError(t, s.OnBar(bar(now.Add(time.Minute), 50000)))

	// 再挂一单，留在队列里
	_, err = s.SubmitIntent(risk.Intent{
		Ts: now.Add(2 * time.Minute), Symbol: "BTCUSDT", Side: risk.SideLong,
		Strength: 1, Strategy: "trend", Price: 50000, ATR14: 500,
	})
	require.NoError(t, err)
	require.Equal(t, 1, s.OpenOrderCount())

	// 价格腰斩，权益击穿下限
	require.NoError(t, s.OnBar(bar(now.Add(3*time.Minute), 25000)))
	require.True(t, flags.Get(risk.FlagKillSwitch))
	require.Equal(t, 0, s.OpenOrderCount())

	// 之后的意图被封禁
	_, err = s.SubmitIntent(risk.Intent{
		Ts: now.Add(4 * time.Minute), Symbol: "BTCUSDT", Side: risk.SideLong,
		Strength: 1, Strategy: "trend", Price: 25000, ATR14: 500,
	})
	require.ErrorIs(t, err, risk.ErrKillSwitch)
}

func TestSessionRunConsumesFeed(t *testing.T) {
	s, _, _, _ := newTestSession(t, 100000, risk.DefaultConfig())
	// Run 里会再次 Start，先退回 Idle
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	feed := market.NewFeed(8)
	now := time.Now().UTC()
	go func() {
		for i := 0; i < 5; i++ {
			feed.Push(bar(now.Add(time.Duration(i)*time.Minute), 50000))
		}
		feed.Close()
	}()

	require.NoError(t, s.Run(context.Background(), feed))
	require.Equal(t, StateStopped, s.GetState())

	bars, _, _, _ := s.GetStatistics()
	require.EqualValues(t, 5, bars)
}

func TestSessionStopIdempotent(t *testing.T) {
	s, _, _, _ := newTestSession(t, 100000, risk.DefaultConfig())
	require.NoError(t, s.Stop("test"))
	require.NoError(t, s.Stop("test"))
	require.Equal(t, StateStopped, s.GetState())

	_, err := s.SubmitIntent(risk.Intent{
		Ts: time.Now().UTC(), Symbol: "BTCUSDT", Side: risk.SideLong,
		Strength: 1, Strategy: "trend", Price: 50000, ATR14: 500,
	})
	require.Error(t, err)
}

func TestSessionUnknownSymbol(t *testing.T) {
	s, _, _, _ := newTestSession(t, 100000, risk.DefaultConfig())
	_, err := s.SubmitIntent(risk.Intent{
		Ts: time.Now().UTC(), Symbol: "ETHUSDT", Side: risk.SideLong,
		Strength: 1, Strategy: "trend", Price: 3000, ATR14: 30,
	})
	require.Error(t, err)
}
