package exchange

import (
	"fmt"
	"math"
)

// 浮点对齐容差，与步长比较时使用。
const alignEps = 1e-8

// RoundPrice 将价格按 tickSize 做银行家舍入（round-half-to-even）。
// 选择 half-to-even 是为了让长序列回放中的舍入偏差不朝单边累积。
func (p Profile) RoundPrice(price float64) float64 {
	if p.TickSize <= 0 {
		return price
	}
	return math.RoundToEven(price/p.TickSize) * p.TickSize
}

// FloorQty 将数量按 stepSize 向下取整，保证不会放大成交数量。
func (p Profile) FloorQty(qty float64) float64 {
	if p.StepSize <= 0 {
		return qty
	}
	// 先吸收浮点误差再下取整，避免 0.30000000000000004 被截成 0.2。
	steps := math.Floor(qty/p.StepSize + alignEps)
	if steps < 0 {
		steps = 0
	}
	return steps * p.StepSize
}

// CheckFill 校验一笔候选成交是否满足精度与最小名义要求。
func (p Profile) CheckFill(price, qty float64) error {
	if p.TickSize > 0 && !isMultiple(price, p.TickSize) {
		return fmt.Errorf("price %.8f not aligned to tickSize %.8f", price, p.TickSize)
	}
	if p.StepSize > 0 && !isMultiple(qty, p.StepSize) {
		return fmt.Errorf("qty %.8f not aligned to stepSize %.8f", qty, p.StepSize)
	}
	if p.MinNotional > 0 && price*qty < p.MinNotional {
		return fmt.Errorf("notional %.8f < minNotional %.8f", price*qty, p.MinNotional)
	}
	return nil
}

// MeetsMinNotional 判断名义金额是否达到最小限制。
func (p Profile) MeetsMinNotional(price, qty float64) bool {
	if p.MinNotional <= 0 {
		return true
	}
	return math.Abs(price*qty) >= p.MinNotional-alignEps
}

func isMultiple(value, step float64) bool {
	if step <= 0 {
		return true
	}
	ratio := value / step
	return math.Abs(ratio-math.Round(ratio)) <= alignEps
}
