package exec

import (
	"errors"
	"fmt"
	"time"

	"paperbot-go/events"
	"paperbot-go/exchange"
	"paperbot-go/internal/id"
	"paperbot-go/market"
)

// 执行阶段的封禁原因。
const (
	BlockReasonMinNotional = "min_notional"
)

var (
	ErrOrderFinal   = errors.New("order already in final state")
	ErrUnknownOrder = errors.New("unknown order")
)

// Config 模拟器参数。
type Config struct {
	// 每根 bar 成交 requestedQty 的该比例；成交节奏跟随 bar 周期而非墙钟。
	LiquidityFraction float64 `yaml:"liquidityFraction"`
	// 订单最多跨越的 bar 数，超时撤销剩余数量。0 表示不限制。
	MaxBarsOpen int `yaml:"maxBarsOpen"`

	Slippage SlippageConfig `yaml:"slippage"`
}

// openOrder 是跨多根 bar 的显式可恢复状态。
type openOrder struct {
	order     *Order
	barsOpen  int
	filledQty float64 // 无符号累计
	avgPrice  float64
	totalFee  float64
}

// Simulator 将批准的订单在后续 bar 上拆分成交，应用滑点、手续费与
// 交易所精度规整。单 goroutine 驱动（每个 symbol 串行），无内部锁。
type Simulator struct {
	profile  exchange.Profile
	slippage SlippageModel
	oracle   PriceOracle
	cfg      Config
	bus      *events.Bus

	open  map[string]*openOrder
	queue []string // 提交顺序，保证逐 bar 推进的确定性
}

func NewSimulator(profile exchange.Profile, slippage SlippageModel, oracle PriceOracle, cfg Config, bus *events.Bus) *Simulator {
	if cfg.LiquidityFraction <= 0 || cfg.LiquidityFraction > 1 {
		cfg.LiquidityFraction = 0.25
	}
	return &Simulator{
		profile:  profile,
		slippage: slippage,
		oracle:   oracle,
		cfg:      cfg,
		bus:      bus,
		open:     make(map[string]*openOrder),
	}
}

// Submit 登记订单，之后由 Tick 逐 bar 推进。
func (s *Simulator) Submit(o *Order) error {
	if o == nil || o.RequestedQty <= 0 {
		return fmt.Errorf("invalid order")
	}
	if IsFinal(o.Status) {
		return ErrOrderFinal
	}
	s.open[o.ID] = &openOrder{order: o}
	s.queue = append(s.queue, o.ID)
	s.publish(events.Event{
		Type: events.TypeOrderSubmitted, Ts: o.CreatedAt, Symbol: o.Symbol,
		Strategy: o.Strategy, Side: string(o.Side),
		Fields: map[string]interface{}{"order_id": o.ID, "qty": o.RequestedQty, "type": string(o.Type)},
	})
	return nil
}

// OpenCount 当前未完结订单数。
func (s *Simulator) OpenCount() int { return len(s.open) }

// Tick 用一根 bar 推进所有同 symbol 的未完结订单，返回本 bar 产生的成交。
// atr 为该 symbol 最近的 ATR，供 atr_scaled 滑点模型使用。
func (s *Simulator) Tick(bar market.Kline, atr float64) ([]Fill, error) {
	if !bar.Valid() {
		return nil, fmt.Errorf("invalid bar for %s", bar.Symbol)
	}

	var fills []Fill
	var done []string
	for _, oid := range s.queue {
		oo, ok := s.open[oid]
		if !ok || oo.order.Symbol != bar.Symbol {
			continue
		}
		fill, finished := s.advance(oo, bar, atr)
		if fill != nil {
			fills = append(fills, *fill)
		}
		if finished {
			done = append(done, oid)
		}
	}
	for _, oid := range done {
		delete(s.open, oid)
	}
	if len(done) > 0 {
		s.compactQueue()
	}
	return fills, nil
}

// advance 推进单个订单一根 bar；返回成交（可能为 nil）与是否完结。
func (s *Simulator) advance(oo *openOrder, bar market.Kline, atr float64) (*Fill, bool) {
	o := oo.order
	oo.barsOpen++

	price, liquidity, crossed := s.fillPrice(o, bar, atr)
	if !crossed {
		// 限价未触及，挂单过 bar
		return nil, s.maybeExpire(oo, bar)
	}

	// 每根 bar 的目标量基于原始委托量，而非剩余量的比例衰减
	target := s.cfg.LiquidityFraction * o.RequestedQty
	if target > o.RemainingQty {
		target = o.RemainingQty
	}
	qty := s.profile.FloorQty(target)

	if qty <= 0 || !s.profile.MeetsMinNotional(price, qty) {
		// 整笔压下去：不产生碎片成交，剩余量顺延到下一根 bar
		s.publish(events.Event{
			Type: events.TypeExecBlocked, Ts: bar.Ts, Symbol: o.Symbol, Side: string(o.Side),
			Fields: map[string]interface{}{"order_id": o.ID, "reason": BlockReasonMinNotional},
		})
		return nil, s.maybeExpire(oo, bar)
	}

	fee, feeCurrency, degraded := feeFor(price*qty, liquidity, s.profile, s.oracle)
	if degraded {
		s.publish(events.Event{
			Type: events.TypeFeeConversionDegrade, Ts: bar.Ts, Symbol: o.Symbol,
			Fields: map[string]interface{}{"order_id": o.ID, "fee_currency": feeCurrency},
		})
	}

	fill := Fill{
		ID:          id.New(),
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Qty:         qty * o.Side.Sign(),
		Price:       price,
		Fee:         fee,
		FeeCurrency: feeCurrency,
		FeeDegraded: degraded,
		Liquidity:   liquidity,
		Ts:          bar.Ts,
	}

	o.RemainingQty -= qty
	oo.avgPrice = (oo.avgPrice*oo.filledQty + price*qty) / (oo.filledQty + qty)
	oo.filledQty += qty
	oo.totalFee += fee

	// 剩余量不足一个 step 视为完全成交
	if o.RemainingQty < s.profile.StepSize-1e-12 {
		o.RemainingQty = 0
		_ = o.setStatus(StatusFilled)
		s.publish(events.Event{
			Type: events.TypeOrderFilled, Ts: bar.Ts, Symbol: o.Symbol, Side: string(o.Side),
			Fields: map[string]interface{}{
				"order_id": o.ID, "qty": oo.filledQty, "avg_price": oo.avgPrice, "fee": oo.totalFee,
			},
		})
		return &fill, true
	}

	_ = o.setStatus(StatusPartial)
	s.publish(events.Event{
		Type: events.TypeOrderPartiallyFilled, Ts: bar.Ts, Symbol: o.Symbol, Side: string(o.Side),
		Fields: map[string]interface{}{
			"order_id": o.ID, "qty": qty, "price": price, "fee": fee,
		},
	})
	return &fill, s.maybeExpire(oo, bar)
}

// fillPrice 计算本 bar 的成交价与流动性角色。
// 市价单以收盘价为基准并施加逆向滑点；限价单只有被 bar 区间穿越才成交。
func (s *Simulator) fillPrice(o *Order, bar market.Kline, atr float64) (price float64, liquidity Liquidity, crossed bool) {
	if o.Type == TypeLimit && o.PriceHint > 0 {
		limit := s.profile.RoundPrice(o.PriceHint)
		if o.Side == SideBuy && bar.Low <= limit {
			return limit, LiquidityMaker, true
		}
		if o.Side == SideSell && bar.High >= limit {
			return limit, LiquidityMaker, true
		}
		return 0, LiquidityMaker, false
	}

	bps := s.slippage.Bps(bar.Close, atr)
	raw := bar.Close * (1 + o.Side.Sign()*bps/10000.0)
	return s.profile.RoundPrice(raw), LiquidityTaker, true
}

// maybeExpire 处理超时：剩余数量撤销上报，绝不静默丢弃。
func (s *Simulator) maybeExpire(oo *openOrder, bar market.Kline) bool {
	if s.cfg.MaxBarsOpen <= 0 || oo.barsOpen < s.cfg.MaxBarsOpen {
		return false
	}
	o := oo.order
	_ = o.setStatus(StatusExpired)
	s.publish(events.Event{
		Type: events.TypeOrderExpired, Ts: bar.Ts, Symbol: o.Symbol, Side: string(o.Side),
		Fields: map[string]interface{}{
			"order_id": o.ID, "remaining_qty": o.RemainingQty, "bars_open": oo.barsOpen,
		},
	})
	return true
}

// CancelAll 撤销全部未完结订单并记录部分成交状态（会话关闭路径）。
func (s *Simulator) CancelAll(reason string, ts time.Time) []*Order {
	var canceled []*Order
	for _, oid := range s.queue {
		oo, ok := s.open[oid]
		if !ok {
			continue
		}
		o := oo.order
		_ = o.setStatus(StatusCanceled)
		s.publish(events.Event{
			Type: events.TypeOrderCanceled, Ts: ts, Symbol: o.Symbol, Side: string(o.Side),
			Fields: map[string]interface{}{
				"order_id": o.ID, "reason": reason, "remaining_qty": o.RemainingQty,
			},
		})
		canceled = append(canceled, o)
	}
	s.open = make(map[string]*openOrder)
	s.queue = nil
	return canceled
}

func (s *Simulator) compactQueue() {
	kept := s.queue[:0]
	for _, oid := range s.queue {
		if _, ok := s.open[oid]; ok {
			kept = append(kept, oid)
		}
	}
	s.queue = kept
}

func (s *Simulator) publish(e events.Event) {
	if s.bus != nil {
		s.bus.MustPublish(e)
	}
}
