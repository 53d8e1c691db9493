package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal 持久化成交与权益快照。内存账本丢失时，trades/ledger 表
// 与事件日志一起构成恢复路径。
type Journal interface {
	RecordTrade(t TradeRecord) error
	RecordLedger(r LedgerRecord) error
	Close() error
}

// SQLiteJournal 以追加方式写 SQLite。fill_id 主键保证重放幂等。
type SQLiteJournal struct {
	db *sql.DB

	// 写失败时按固定次数退避重试；重试耗尽由调用方按致命错误处理。
	MaxRetries int
	Backoff    time.Duration
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &SQLiteJournal{db: db, MaxRetries: 3, Backoff: 100 * time.Millisecond}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	return j.withRetry(func() error {
		_, err := j.db.Exec(`
			INSERT OR IGNORE INTO trades
			(fill_id, order_id, symbol, side, qty, price, fee, fee_currency, fee_degraded, liquidity, realized_pnl, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.FillID, t.OrderID, t.Symbol, t.Side, t.Qty, t.Price,
			t.Fee, t.FeeCurrency, boolToInt(t.FeeDegraded), t.Liquidity, t.RealizedPnL, t.Ts,
		)
		return err
	})
}

func (j *SQLiteJournal) RecordLedger(r LedgerRecord) error {
	return j.withRetry(func() error {
		_, err := j.db.Exec(`
			INSERT INTO ledger
			(ts, equity, peak_equity, drawdown_pct, realized_pnl, unrealized_pnl, cum_fees)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.Ts, r.Equity, r.PeakEquity, r.DrawdownPct, r.RealizedPnL, r.UnrealizedPnL, r.CumFees,
		)
		return err
	})
}

// ListTrades 按时间顺序读出成交，供报表/校验使用。
func (j *SQLiteJournal) ListTrades(symbol string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT fill_id, order_id, symbol, side, qty, price, fee, fee_currency, fee_degraded, liquidity, realized_pnl, ts
		FROM trades WHERE (? = '' OR symbol = ?) ORDER BY ts, fill_id`, symbol, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var degraded int
		if err := rows.Scan(&t.FillID, &t.OrderID, &t.Symbol, &t.Side, &t.Qty, &t.Price,
			&t.Fee, &t.FeeCurrency, &degraded, &t.Liquidity, &t.RealizedPnL, &t.Ts); err != nil {
			return nil, err
		}
		t.FeeDegraded = degraded != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) withRetry(fn func() error) error {
	var err error
	retries := j.MaxRetries
	if retries < 1 {
		retries = 1
	}
	backoff := j.Backoff
	for i := 0; i < retries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return fmt.Errorf("journal write failed after %d attempts: %w", retries, err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
