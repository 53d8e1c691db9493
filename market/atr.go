package market

import "math"

// ATR Wilder 平滑的平均真实波幅，逐 bar 增量更新。
type ATR struct {
	period    int
	prevClose float64
	value     float64
	seen      int
}

func NewATR(period int) *ATR {
	if period <= 0 {
		period = 14
	}
	return &ATR{period: period}
}

// Update 喂入一根 bar，返回当前 ATR（未就绪时为累计均值）。
func (a *ATR) Update(k Kline) float64 {
	tr := k.High - k.Low
	if a.seen > 0 {
		tr = math.Max(tr, math.Max(
			math.Abs(k.High-a.prevClose),
			math.Abs(k.Low-a.prevClose),
		))
	}
	a.seen++
	if a.seen <= a.period {
		// 前 period 根用简单均值做种子
		a.value += (tr - a.value) / float64(a.seen)
	} else {
		a.value = (a.value*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prevClose = k.Close
	return a.value
}

// Value 当前 ATR 值。
func (a *ATR) Value() float64 { return a.value }

// Ready 是否已喂满一个完整周期。
func (a *ATR) Ready() bool { return a.seen >= a.period }
