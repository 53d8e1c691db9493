package exec

import (
	"fmt"
	"math/rand"

	"paperbot-go/exchange"
)

// 滑点模型名。
const (
	SlippageFixedBps  = "fixed_bps"
	SlippageATRScaled = "atr_scaled"
	SlippageRandomBps = "random_bps"
)

// SlippageModel 计算一笔成交的有效滑点（bps）。方向由模拟器统一处理：
// 买单加价、卖单减价。
type SlippageModel interface {
	Bps(price, atr float64) float64
	Name() string
}

// FixedBps 固定滑点，取 profile 基线或显式覆盖值。
type FixedBps struct {
	BpsValue float64
}

func (m FixedBps) Bps(price, atr float64) float64 { return m.BpsValue }
func (m FixedBps) Name() string                   { return "fixed_bps" }

// ATRScaled 按已实现波动率缩放：base * (atr/price) * mult。
type ATRScaled struct {
	BaseBps float64
	Mult    float64
}

func (m ATRScaled) Bps(price, atr float64) float64 {
	if price <= 0 || atr <= 0 {
		return m.BaseBps
	}
	return m.BaseBps * (atr / price) * m.Mult
}
func (m ATRScaled) Name() string { return "atr_scaled" }

// RandomBps 均匀抖动 [0, MaxBps)。rng 必须显式注入，固定种子下回放可复现。
type RandomBps struct {
	MaxBps float64
	Rng    *rand.Rand
}

func (m *RandomBps) Bps(price, atr float64) float64 {
	if m.Rng == nil || m.MaxBps <= 0 {
		return 0
	}
	return m.Rng.Float64() * m.MaxBps
}
func (m *RandomBps) Name() string { return "random_bps" }

// SlippageConfig 滑点模型配置。
type SlippageConfig struct {
	Model   string  `yaml:"model"`   // fixed_bps | atr_scaled | random_bps
	Bps     float64 `yaml:"bps"`     // fixed 覆盖值，0 用 profile 基线
	AtrMult float64 `yaml:"atrMult"` // atr_scaled 倍率，0 用 profile 的 atrSlipMult
	MaxBps  float64 `yaml:"maxBps"`  // random 上限
	Seed    int64   `yaml:"seed"`    // random 种子，0 表示不可复现
}

// NewSlippageModel 按配置和交易所画像组装模型。
func NewSlippageModel(cfg SlippageConfig, profile exchange.Profile) (SlippageModel, error) {
	switch cfg.Model {
	case "", SlippageFixedBps:
		bps := cfg.Bps
		if bps == 0 {
			bps = profile.SlippageBps
		}
		return FixedBps{BpsValue: bps}, nil
	case SlippageATRScaled:
		mult := cfg.AtrMult
		if mult == 0 {
			mult = profile.ATRSlipMult
		}
		if mult == 0 {
			mult = 1
		}
		base := cfg.Bps
		if base == 0 {
			base = profile.SlippageBps
		}
		return ATRScaled{BaseBps: base, Mult: mult}, nil
	case SlippageRandomBps:
		maxBps := cfg.MaxBps
		if maxBps == 0 {
			maxBps = profile.SlippageBps
		}
		return &RandomBps{MaxBps: maxBps, Rng: rand.New(rand.NewSource(cfg.Seed))}, nil
	default:
		return nil, fmt.Errorf("unknown slippage model %q", cfg.Model)
	}
}
