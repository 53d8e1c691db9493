package ledger

import (
	"fmt"
	"sync"
	"time"

	"paperbot-go/exec"
	"paperbot-go/journal"
)

// Snapshot 是某一时刻的账本只读快照，写入后不可变。
type Snapshot struct {
	Ts            time.Time
	Equity        float64
	PeakEquity    float64
	DrawdownPct   float64
	RealizedPnL   float64
	UnrealizedPnL float64
	CumFees       float64
	Positions     map[string]Position
}

// Ledger 是权益/持仓的唯一事实来源。写路径（OnFill/MarkToMarket）加锁串行，
// 读路径返回快照副本。
type Ledger struct {
	mu sync.Mutex

	equityStart float64
	realized    float64
	cumFees     float64
	equity      float64
	peakEquity  float64
	positions   map[string]*Position
	lastPrices  map[string]float64

	policy  AccountingPolicy
	journal journal.Journal
	history []Snapshot
}

func New(equityStart float64, policy AccountingPolicy, j journal.Journal) *Ledger {
	if policy == nil {
		policy = AvgCost{}
	}
	return &Ledger{
		equityStart: equityStart,
		equity:      equityStart,
		peakEquity:  equityStart,
		positions:   make(map[string]*Position),
		lastPrices:  make(map[string]float64),
		policy:      policy,
		journal:     j,
	}
}

// EquityStart 会话起始权益。
func (l *Ledger) EquityStart() float64 { return l.equityStart }

// OnFill 记账一笔成交：更新持仓与已实现盈亏、扣除手续费、落盘、出快照。
// 落盘失败（重试耗尽）作为致命错误上抛，账本完整性无法保证时不能继续交易。
func (l *Ledger) OnFill(f exec.Fill) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[f.Symbol]
	if !ok {
		pos = &Position{Symbol: f.Symbol}
		l.positions[f.Symbol] = pos
	}

	realized := l.policy.Apply(pos, f.Qty, f.Price)

	// 降级手续费停留在原币种，不进入记账货币的现金流
	fee := f.Fee
	if f.FeeDegraded {
		fee = 0
	}
	realized -= fee
	pos.RealizedPnL += realized
	l.realized += realized
	l.cumFees += fee
	l.lastPrices[f.Symbol] = f.Price

	l.recomputeLocked(f.Ts)

	side := "BUY"
	if f.Qty < 0 {
		side = "SELL"
	}
	if l.journal != nil {
		if err := l.journal.RecordTrade(journal.TradeRecord{
			FillID:      f.ID,
			OrderID:     f.OrderID,
			Symbol:      f.Symbol,
			Side:        side,
			Qty:         f.Qty,
			Price:       f.Price,
			Fee:         f.Fee,
			FeeCurrency: f.FeeCurrency,
			FeeDegraded: f.FeeDegraded,
			Liquidity:   string(f.Liquidity),
			RealizedPnL: realized,
			Ts:          f.Ts,
		}); err != nil {
			return Snapshot{}, fmt.Errorf("persist trade: %w", err)
		}
	}
	return l.snapshotLocked(f.Ts)
}

// MarkToMarket 用最新价格重算未实现盈亏、权益、峰值与回撤。
func (l *Ledger) MarkToMarket(ts time.Time, prices map[string]float64) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for sym, px := range prices {
		if px > 0 {
			l.lastPrices[sym] = px
		}
	}
	l.recomputeLocked(ts)
	return l.snapshotLocked(ts)
}

// Latest 返回最近一次快照；尚无快照时返回初始状态。
func (l *Ledger) Latest() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.history) == 0 {
		return Snapshot{
			Equity:     l.equityStart,
			PeakEquity: l.peakEquity,
			Positions:  map[string]Position{},
		}
	}
	return l.history[len(l.history)-1]
}

// Position 返回指定 symbol 的持仓副本。
func (l *Ledger) Position(symbol string) Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.positions[symbol]; ok {
		return *p
	}
	return Position{Symbol: symbol}
}

// OpenPositionCount 非零持仓数量。
func (l *Ledger) OpenPositionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, p := range l.positions {
		if p.Qty != 0 {
			n++
		}
	}
	return n
}

// recomputeLocked 重算未实现盈亏与权益曲线。
func (l *Ledger) recomputeLocked(ts time.Time) {
	unreal := 0.0
	for sym, pos := range l.positions {
		if pos.Qty == 0 {
			pos.UnrealizedPnL = 0
			continue
		}
		px, ok := l.lastPrices[sym]
		if !ok {
			continue
		}
		pos.UnrealizedPnL = (px - pos.AvgEntryPrice) * pos.Qty
		unreal += pos.UnrealizedPnL
	}
	l.equity = l.equityStart + l.realized + unreal
	if l.equity > l.peakEquity {
		l.peakEquity = l.equity
	}
}

// snapshotLocked 生成并落盘一条快照。
func (l *Ledger) snapshotLocked(ts time.Time) (Snapshot, error) {
	unreal := 0.0
	positions := make(map[string]Position, len(l.positions))
	for sym, pos := range l.positions {
		positions[sym] = *pos
		unreal += pos.UnrealizedPnL
	}
	dd := 0.0
	if l.peakEquity > 0 {
		dd = (l.peakEquity - l.equity) / l.peakEquity
	}
	if dd < 0 {
		dd = 0
	}
	snap := Snapshot{
		Ts:            ts,
		Equity:        l.equity,
		PeakEquity:    l.peakEquity,
		DrawdownPct:   dd,
		RealizedPnL:   l.realized,
		UnrealizedPnL: unreal,
		CumFees:       l.cumFees,
		Positions:     positions,
	}
	l.history = append(l.history, snap)

	if l.journal != nil {
		if err := l.journal.RecordLedger(journal.LedgerRecord{
			Ts:            snap.Ts,
			Equity:        snap.Equity,
			PeakEquity:    snap.PeakEquity,
			DrawdownPct:   snap.DrawdownPct,
			RealizedPnL:   snap.RealizedPnL,
			UnrealizedPnL: snap.UnrealizedPnL,
			CumFees:       snap.CumFees,
		}); err != nil {
			return snap, fmt.Errorf("persist ledger snapshot: %w", err)
		}
	}
	return snap, nil
}
