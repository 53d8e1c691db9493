package market

import "time"

// Kline represents OHLCV data for one bar.
type Kline struct {
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Ts     time.Time
}

// Valid 粗略校验一根 K 线是否可用于撮合模拟。
func (k Kline) Valid() bool {
	if k.Close <= 0 || k.High < k.Low {
		return false
	}
	return k.High >= k.Close && k.Low <= k.Close
}
