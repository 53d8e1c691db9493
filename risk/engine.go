package risk

import (
	"fmt"
	"math"
	"time"

	"paperbot-go/events"
	"paperbot-go/exchange"
	"paperbot-go/exec"
	"paperbot-go/ledger"
)

// CapPolicy 名义上限的处理方式。
const (
	CapPolicyClamp = "clamp"
	CapPolicyBlock = "block"
)

// Config 风控参数。
type Config struct {
	RiskFrac                  float64 `yaml:"riskFrac"`                  // 单笔风险占权益比例
	ATRStopMult               float64 `yaml:"atrStopMult"`               // 止损距离 = atr14 * 该倍率
	MaxPositionValuePerSymbol float64 `yaml:"maxPositionValuePerSymbol"` // 单 symbol 名义 / 权益上限
	DailyLossCapPct           float64 `yaml:"dailyLossCapPct"`           // 日内亏损触发 DAILY_STOP
	KillSwitchEquityFloorPct  float64 `yaml:"killSwitchEquityFloorPct"`  // 权益跌破 start*该值触发 KILL_SWITCH
	MaxPositions              int     `yaml:"maxPositions"`              // 同时持仓 symbol 数上限
	CapPolicy                 string  `yaml:"capPolicy"`                 // clamp | block
	DailyStopSticky           bool    `yaml:"dailyStopSticky"`           // false 时权益回升越过阈值自动解除
}

// DefaultConfig 与原始纸上交易参数一致的缺省值。
func DefaultConfig() Config {
	return Config{
		RiskFrac:                  0.0025,
		ATRStopMult:               1.5,
		MaxPositionValuePerSymbol: 0.2,
		DailyLossCapPct:           0.01,
		KillSwitchEquityFloorPct:  0.90,
		MaxPositions:              3,
		CapPolicy:                 CapPolicyClamp,
		DailyStopSticky:           true,
	}
}

const stopDistEps = 1e-9

// Engine 对每个交易意图做闸门裁决。flags 只由本引擎写入；
// 权益读取与裁决必须由调用方在同一临界区内完成（见 session）。
type Engine struct {
	cfg         Config
	flags       *Registry
	bus         *events.Bus
	equityStart float64
	clock       Clock
}

func NewEngine(cfg Config, flags *Registry, bus *events.Bus, equityStart float64) *Engine {
	if cfg.CapPolicy == "" {
		cfg.CapPolicy = CapPolicyClamp
	}
	return &Engine{
		cfg:         cfg,
		flags:       flags,
		bus:         bus,
		equityStart: equityStart,
		clock:       NowUTC,
	}
}

// Flags 暴露注册表只读入口（快照）。
func (e *Engine) Flags() Flags { return e.flags.Snapshot() }

// OnEquityUpdate 在每次成交/盯市之后评估实际权益对阈值的穿越。
// 事件只在 flag 翻转的边沿发出一次，不随调用重复。
func (e *Engine) OnEquityUpdate(snap ledger.Snapshot) {
	if e.equityStart <= 0 {
		return
	}
	equity := snap.Equity
	drop := (e.equityStart - equity) / e.equityStart

	// kill switch：更深的绝对阈值，触发后本会话终结
	if e.cfg.KillSwitchEquityFloorPct > 0 && equity <= e.equityStart*e.cfg.KillSwitchEquityFloorPct {
		if !e.flags.Get(FlagKillSwitch) {
			e.flags.Set(FlagKillSwitch, true)
			e.publish(events.Event{
				Type: events.TypeKillswitchTripped, Ts: snap.Ts, Symbol: "",
				Fields: map[string]interface{}{
					"equity": equity,
					"floor":  e.equityStart * e.cfg.KillSwitchEquityFloorPct,
				},
			})
		}
	}

	// daily stop
	if e.cfg.DailyLossCapPct > 0 {
		switch {
		case drop >= e.cfg.DailyLossCapPct:
			e.setDailyStop(snap.Ts, equity, drop)
		case !e.cfg.DailyStopSticky && e.flags.Get(FlagDailyStop):
			// 权益回升越过阈值，非粘滞模式下解除；下次穿越会重新发事件
			e.flags.Set(FlagDailyStop, false)
		}
	}
}

// Approve 裁决一个交易意图。返回批准的订单，或封禁/校验错误。
func (e *Engine) Approve(intent Intent, snap ledger.Snapshot, profile exchange.Profile) (*exec.Order, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	flags := e.flags.Snapshot()
	if flags.KillSwitch {
		return nil, e.block(intent, ErrKillSwitch)
	}
	if flags.DailyStop {
		// 已处于停止状态：封禁但不重复发 breach 事件
		return nil, e.block(intent, ErrDailyStop)
	}

	// flat = 平掉现有持仓，不做新增风险投影
	if intent.Side == SideFlat {
		return e.closeOrder(intent, snap)
	}

	equity := snap.Equity
	riskAmount := equity * e.cfg.RiskFrac
	projected := equity - riskAmount

	// 若本单满额止损将把日内亏损推过上限，先置 DAILY_STOP 再封禁
	if e.cfg.DailyLossCapPct > 0 && e.equityStart > 0 {
		projDrop := (e.equityStart - projected) / e.equityStart
		if projDrop >= e.cfg.DailyLossCapPct {
			e.setDailyStop(intent.Ts, equity, projDrop)
			return nil, e.block(intent, ErrDailyStop)
		}
	}

	// 若本单满额止损将把权益打穿绝对下限，直接触发 kill switch
	if e.cfg.KillSwitchEquityFloorPct > 0 && e.equityStart > 0 {
		floor := e.equityStart * e.cfg.KillSwitchEquityFloorPct
		if projected <= floor {
			if !e.flags.Get(FlagKillSwitch) {
				e.flags.Set(FlagKillSwitch, true)
				e.publish(events.Event{
					Type: events.TypeKillswitchTripped, Ts: intent.Ts, Symbol: intent.Symbol,
					Fields: map[string]interface{}{"equity": equity, "floor": floor},
				})
			}
			return nil, e.block(intent, ErrKillSwitch)
		}
	}

	// 持仓数量上限（已有该 symbol 持仓时允许加仓）
	if e.cfg.MaxPositions > 0 {
		open := 0
		for _, p := range snap.Positions {
			if p.Qty != 0 {
				open++
			}
		}
		if open >= e.cfg.MaxPositions && snap.Positions[intent.Symbol].Qty == 0 {
			return nil, e.block(intent, ErrMaxPositions)
		}
	}

	// ATR 止损距离定仓位
	stopDist := math.Max(intent.ATR14*e.cfg.ATRStopMult, stopDistEps)
	qty := riskAmount / stopDist
	if qty <= 0 {
		return nil, e.block(intent, ErrQtyZero)
	}

	// 单 symbol 名义上限：默认 clamp，可配置为直接封禁
	if e.cfg.MaxPositionValuePerSymbol > 0 && equity > 0 {
		notionalFrac := qty * intent.Price / equity
		if notionalFrac > e.cfg.MaxPositionValuePerSymbol {
			if e.cfg.CapPolicy == CapPolicyBlock {
				return nil, e.block(intent, fmt.Errorf("%w: %.4f > %.4f",
					ErrValueCap, notionalFrac, e.cfg.MaxPositionValuePerSymbol))
			}
			qty = e.cfg.MaxPositionValuePerSymbol * equity / intent.Price
		}
	}

	side := exec.SideBuy
	if intent.Side == SideShort {
		side = exec.SideSell
	}
	order := exec.NewOrder(intent.Symbol, side, exec.TypeMarket, qty, intent.Price,
		intent.Strategy, intent.Reason, intent.Ts)
	e.publish(events.Event{
		Type: events.TypeOrderIntent, Ts: intent.Ts, Symbol: intent.Symbol,
		Strategy: intent.Strategy, Side: string(intent.Side),
		Fields: map[string]interface{}{"notional": qty * intent.Price},
	})
	return order, nil
}

// closeOrder 为 flat 意图生成反向平仓单；无持仓时无动作。
func (e *Engine) closeOrder(intent Intent, snap ledger.Snapshot) (*exec.Order, error) {
	pos, ok := snap.Positions[intent.Symbol]
	if !ok || pos.Qty == 0 {
		return nil, nil
	}
	side := exec.SideSell
	if pos.Qty < 0 {
		side = exec.SideBuy
	}
	qty := pos.Qty
	if qty < 0 {
		qty = -qty
	}
	return exec.NewOrder(intent.Symbol, side, exec.TypeMarket, qty, intent.Price,
		intent.Strategy, intent.Reason, intent.Ts), nil
}

// setDailyStop 置位 DAILY_STOP 并在边沿发一次 breach 事件。
func (e *Engine) setDailyStop(ts time.Time, equity, drop float64) {
	if e.flags.Get(FlagDailyStop) {
		return
	}
	e.flags.Set(FlagDailyStop, true)
	flags := e.flags.Snapshot()
	e.publish(events.Event{
		Type: events.TypeDailyLossLimitBreach, Ts: ts,
		Fields: map[string]interface{}{
			"equity":       equity,
			"equity_start": e.equityStart,
			"pct_drop":     drop,
			"flags": map[string]bool{
				FlagDailyStop:  flags.DailyStop,
				FlagKillSwitch: flags.KillSwitch,
			},
		},
	})
}

// block 发布封禁决策事件并返回错误。
func (e *Engine) block(intent Intent, err error) error {
	e.publish(events.Event{
		Type: events.TypeRiskBlocked, Ts: intent.Ts, Symbol: intent.Symbol,
		Strategy: intent.Strategy, Side: string(intent.Side),
		Fields: map[string]interface{}{"reason": BlockReason(err)},
	})
	return err
}

func (e *Engine) publish(ev events.Event) {
	if e.bus != nil {
		if ev.Ts.IsZero() {
			ev.Ts = e.clock.Now()
		}
		e.bus.MustPublish(ev)
	}
}
