package risk

import (
	"math"
	"time"
)

// IntentSide 策略意图方向。
type IntentSide string

const (
	SideLong  IntentSide = "long"
	SideShort IntentSide = "short"
	SideFlat  IntentSide = "flat"
)

// Intent 是策略产出的交易意图，创建后不可变。
// Price/ATR14 来自特征流，随意图一起传入以避免风控读到过期特征。
type Intent struct {
	Ts       time.Time
	Symbol   string
	Side     IntentSide
	Strength float64 // (0,1]
	Strategy string
	Reason   string

	Price float64 // 当前参考价（close）
	ATR14 float64 // 14 周期 ATR
}

// Validate 本地校验，不触达任何风控状态。
func (i Intent) Validate() error {
	if i.Symbol == "" {
		return &ValidationError{Msg: "missing symbol"}
	}
	switch i.Side {
	case SideLong, SideShort, SideFlat:
	default:
		return &ValidationError{Msg: "unknown side " + string(i.Side)}
	}
	if !finite(i.Price) || i.Price <= 0 {
		return &ValidationError{Msg: "non-finite or non-positive price"}
	}
	if !finite(i.ATR14) || i.ATR14 < 0 {
		return &ValidationError{Msg: "non-finite or negative atr14"}
	}
	if !finite(i.Strength) || i.Strength <= 0 || i.Strength > 1 {
		return &ValidationError{Msg: "strength out of (0,1]"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
