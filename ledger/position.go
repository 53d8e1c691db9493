package ledger

// Position 每个 symbol 一条，随成交更新。Qty 带符号。
type Position struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
	RealizedPnL   float64
	UnrealizedPnL float64
}

// AccountingPolicy 决定已实现盈亏的核算口径。当前实现为移动加权平均成本，
// 与逐笔 FIFO 相比是近似口径；换成严格 FIFO 只需替换该接口实现。
type AccountingPolicy interface {
	// Apply 把一笔带符号成交并入持仓，返回本次实现的盈亏（不含手续费）。
	Apply(pos *Position, qty, price float64) float64
	Name() string
}

// AvgCost 移动加权平均成本法。
type AvgCost struct{}

func (AvgCost) Name() string { return "avg_cost" }

func (AvgCost) Apply(pos *Position, qty, price float64) float64 {
	if qty == 0 {
		return 0
	}
	switch {
	case pos.Qty == 0:
		// 开仓
		pos.Qty = qty
		pos.AvgEntryPrice = price
		return 0
	case sameSign(pos.Qty, qty):
		// 同向加仓：加权平均入场价
		newQty := pos.Qty + qty
		pos.AvgEntryPrice = (pos.AvgEntryPrice*abs(pos.Qty) + price*abs(qty)) / abs(newQty)
		pos.Qty = newQty
		return 0
	default:
		// 减仓 / 反手
		reduce := min(abs(pos.Qty), abs(qty))
		direction := 1.0
		if pos.Qty < 0 {
			direction = -1.0
		}
		realized := (price - pos.AvgEntryPrice) * reduce * direction
		pos.Qty += qty
		if abs(pos.Qty) < 1e-12 {
			pos.Qty = 0
			pos.AvgEntryPrice = 0
		} else if !sameSign(pos.Qty, direction) {
			// 反手：剩余部分以本次成交价为新的入场价
			pos.AvgEntryPrice = price
		}
		return realized
	}
}

func sameSign(a, b float64) bool { return (a > 0 && b > 0) || (a < 0 && b < 0) }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

