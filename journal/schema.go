package journal

import "time"

// TradeRecord 是单笔成交落盘记录（成交即交易，含已实现盈亏增量）。
type TradeRecord struct {
	FillID      string
	OrderID     string
	Symbol      string
	Side        string // BUY/SELL
	Qty         float64 // 带符号，买正卖负
	Price       float64
	Fee         float64
	FeeCurrency string
	FeeDegraded bool // 手续费未能换算为记账货币
	Liquidity   string // maker/taker
	RealizedPnL float64
	Ts          time.Time
}

// LedgerRecord 是一条权益快照落盘记录。
type LedgerRecord struct {
	Ts            time.Time
	Equity        float64
	PeakEquity    float64
	DrawdownPct   float64
	RealizedPnL   float64
	UnrealizedPnL float64
	CumFees       float64
}

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	fill_id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty REAL NOT NULL,
	price REAL NOT NULL,
	fee REAL NOT NULL,
	fee_currency TEXT NOT NULL,
	fee_degraded INTEGER NOT NULL DEFAULT 0,
	liquidity TEXT NOT NULL,
	realized_pnl REAL NOT NULL,
	ts DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger (
	ts DATETIME NOT NULL,
	equity REAL NOT NULL,
	peak_equity REAL NOT NULL,
	drawdown_pct REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	cum_fees REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
CREATE INDEX IF NOT EXISTS idx_ledger_ts ON ledger(ts);
`
