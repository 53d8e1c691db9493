package main

import (
	"flag"
	"fmt"
	"log"

	"paperbot-go/events"
	"paperbot-go/exec"
	"paperbot-go/journal"
	"paperbot-go/ledger"
	"paperbot-go/posttrade"
)

// 从落盘数据重建会话状态：bbolt 事件日志给出决策轨迹，
// SQLite trades 表喂回账本得到最终权益。两边都是追加式，重放幂等。
func main() {
	eventLogPath := flag.String("eventLog", "", "bbolt 事件日志路径")
	journalPath := flag.String("journal", "", "SQLite 交易日志路径")
	equityStart := flag.Float64("equityStart", 100000, "会话起始权益")
	symbol := flag.String("symbol", "", "只重放该 symbol，留空为全部")
	flag.Parse()

	if *eventLogPath == "" && *journalPath == "" {
		log.Fatalf("需要 -eventLog 或 -journal 至少一个")
	}

	if *eventLogPath != "" {
		replayEvents(*eventLogPath)
	}
	if *journalPath != "" {
		rebuildLedger(*journalPath, *equityStart, *symbol)
	}
}

// replayEvents 按序列号回放决策日志并统计各类事件。
func replayEvents(path string) {
	el, err := journal.NewEventLog(path)
	if err != nil {
		log.Fatalf("打开事件日志失败: %v", err)
	}
	defer el.Close()

	counts := make(map[string]int)
	var lastSeq uint64
	err = el.Replay(func(env events.Envelope) error {
		if env.Sequence <= lastSeq {
			return fmt.Errorf("sequence regressed: %d after %d", env.Sequence, lastSeq)
		}
		lastSeq = env.Sequence
		counts[env.Event.Type]++
		return nil
	})
	if err != nil {
		log.Fatalf("回放事件日志失败: %v", err)
	}

	fmt.Printf("event log: %d events, last sequence %d\n", total(counts), lastSeq)
	for _, typ := range []string{
		events.TypeOrderIntent, events.TypeOrderSubmitted, events.TypeOrderPartiallyFilled,
		events.TypeOrderFilled, events.TypeOrderCanceled, events.TypeOrderExpired,
		events.TypeRiskBlocked, events.TypeExecBlocked,
		events.TypeDailyLossLimitBreach, events.TypeKillswitchTripped,
		events.TypeFeeConversionDegrade,
	} {
		if n := counts[typ]; n > 0 {
			fmt.Printf("  %-24s %d\n", typ, n)
		}
	}
}

// rebuildLedger 把 trades 表按时间顺序喂回一个全新账本。
func rebuildLedger(path string, equityStart float64, symbol string) {
	j, err := journal.NewSQLite(path)
	if err != nil {
		log.Fatalf("打开交易日志失败: %v", err)
	}
	defer j.Close()

	trades, err := j.ListTrades(symbol)
	if err != nil {
		log.Fatalf("读取成交失败: %v", err)
	}

	led := ledger.New(equityStart, ledger.AvgCost{}, nil)
	for _, t := range trades {
		side := exec.SideBuy
		if t.Qty < 0 {
			side = exec.SideSell
		}
		if _, err := led.OnFill(exec.Fill{
			ID:          t.FillID,
			OrderID:     t.OrderID,
			Symbol:      t.Symbol,
			Side:        side,
			Qty:         t.Qty,
			Price:       t.Price,
			Fee:         t.Fee,
			FeeCurrency: t.FeeCurrency,
			FeeDegraded: t.FeeDegraded,
			Liquidity:   exec.Liquidity(t.Liquidity),
			Ts:          t.Ts,
		}); err != nil {
			log.Fatalf("重放成交 %s 失败: %v", t.FillID, err)
		}
	}

	snap := led.Latest()
	fmt.Printf("ledger rebuilt from %d trades\n", len(trades))
	fmt.Printf("equity=%.2f realized=%.2f fees=%.2f drawdown=%.4f\n",
		snap.Equity, snap.RealizedPnL, snap.CumFees, snap.DrawdownPct)
	for sym, pos := range snap.Positions {
		if pos.Qty != 0 {
			fmt.Printf("  %-10s qty=%.6f avg=%.2f\n", sym, pos.Qty, pos.AvgEntryPrice)
		}
	}

	report := posttrade.Analyze(trades)
	for _, st := range report.Symbols {
		fmt.Printf("  %-10s fills=%d volume=%.2f maker/taker=%d/%d winRate=%.2f\n",
			st.Symbol, st.Fills, st.Volume, st.MakerFills, st.TakerFills, st.WinRate)
	}
}

func total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
