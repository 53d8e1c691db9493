package posttrade

import (
	"sort"
	"time"

	"paperbot-go/journal"
)

// SymbolStats 单 symbol 的成交统计。
type SymbolStats struct {
	Symbol       string
	Fills        int
	BoughtQty    float64
	SoldQty      float64
	Volume       float64 // 成交名义合计
	Fees         float64
	RealizedPnL  float64
	MakerFills   int
	TakerFills   int
	DegradedFees int     // 手续费换算降级的成交数
	WinRate      float64 // 实现盈亏为正的减仓成交占比
	FirstTs      time.Time
	LastTs       time.Time
}

// Report 一次会话的事后分析汇总。
type Report struct {
	TotalFills  int
	TotalFees   float64
	RealizedPnL float64
	Symbols     []SymbolStats
}

// Analyze 汇总落盘成交记录。输入按时间顺序与否都可以，内部不依赖顺序。
func Analyze(trades []journal.TradeRecord) Report {
	bySymbol := make(map[string]*SymbolStats)

	var report Report
	for _, t := range trades {
		st, ok := bySymbol[t.Symbol]
		if !ok {
			st = &SymbolStats{Symbol: t.Symbol, FirstTs: t.Ts, LastTs: t.Ts}
			bySymbol[t.Symbol] = st
		}
		st.Fills++
		report.TotalFills++

		qty := t.Qty
		if qty >= 0 {
			st.BoughtQty += qty
		} else {
			st.SoldQty += -qty
		}
		notional := qty * t.Price
		if notional < 0 {
			notional = -notional
		}
		st.Volume += notional
		st.Fees += t.Fee
		st.RealizedPnL += t.RealizedPnL
		report.TotalFees += t.Fee
		report.RealizedPnL += t.RealizedPnL

		switch t.Liquidity {
		case "maker":
			st.MakerFills++
		case "taker":
			st.TakerFills++
		}
		if t.FeeDegraded {
			st.DegradedFees++
		}
		if t.Ts.Before(st.FirstTs) {
			st.FirstTs = t.Ts
		}
		if t.Ts.After(st.LastTs) {
			st.LastTs = t.Ts
		}
	}

	// 胜率只看产生了实现盈亏的成交（减仓腿）
	for sym, st := range bySymbol {
		wins, closed := 0, 0
		for _, t := range trades {
			if t.Symbol != sym || t.RealizedPnL == 0 {
				continue
			}
			closed++
			if t.RealizedPnL > 0 {
				wins++
			}
		}
		if closed > 0 {
			st.WinRate = float64(wins) / float64(closed)
		}
	}

	report.Symbols = make([]SymbolStats, 0, len(bySymbol))
	for _, st := range bySymbol {
		report.Symbols = append(report.Symbols, *st)
	}
	sort.Slice(report.Symbols, func(i, k int) bool {
		return report.Symbols[i].Symbol < report.Symbols[k].Symbol
	})
	return report
}
