package exec

import (
	"errors"

	"paperbot-go/exchange"
)

// PriceOracle 提供手续费币种到记账货币的换算价。
type PriceOracle interface {
	// Price 返回 1 单位 currency 折合记账货币的价格。
	Price(currency string) (float64, error)
}

// ErrOracleUnavailable 换算价不可用。
var ErrOracleUnavailable = errors.New("price oracle unavailable")

// StaticOracle 用固定表换算，测试与回放用。
type StaticOracle map[string]float64

func (o StaticOracle) Price(currency string) (float64, error) {
	if p, ok := o[currency]; ok && p > 0 {
		return p, nil
	}
	return 0, ErrOracleUnavailable
}

// feeFor 计算一笔成交的手续费并尽量换算为记账货币。
// 费率表按 profile 的 feeCurrency 计量：feeCurrency 为空时 bps 直接得出
// 记账货币金额；否则得出原币种数量，经 oracle 换算入账。
// 换算失败时降级：按原币种数量记录并打 degraded 标记，绝不丢弃。
func feeFor(notional float64, liquidity Liquidity, profile exchange.Profile, oracle PriceOracle) (fee float64, currency string, degraded bool) {
	bps := profile.TakerBps
	if liquidity == LiquidityMaker {
		bps = profile.MakerBps
	}
	amount := notional * bps / 10000.0

	currency = profile.FeeCurrency
	if currency == "" {
		return amount, "", false
	}
	if oracle == nil {
		return amount, currency, true
	}
	px, err := oracle.Price(currency)
	if err != nil {
		return amount, currency, true
	}
	return amount * px, "", false
}
