package exec

import (
	"fmt"
	"time"

	"paperbot-go/internal/id"
)

// Side 订单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign 买 +1 卖 -1。
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// OrderType 订单类型。
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// Liquidity 成交角色。
type Liquidity string

const (
	LiquidityMaker Liquidity = "maker"
	LiquidityTaker Liquidity = "taker"
)

// Status represents order lifecycle.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusPartial  Status = "PARTIAL"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
	StatusBlocked  Status = "BLOCKED"
	StatusExpired  Status = "EXPIRED"
)

// 合法状态转换表。终态（FILLED/CANCELED/BLOCKED/EXPIRED）不再流转。
var legalTransitions = map[Status][]Status{
	StatusNew:     {StatusPartial, StatusFilled, StatusCanceled, StatusBlocked, StatusExpired},
	StatusPartial: {StatusPartial, StatusFilled, StatusCanceled, StatusExpired},
}

// ValidateTransition 校验状态转换是否合法；相同状态幂等放行。
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	for _, t := range legalTransitions[from] {
		if t == to {
			return nil
		}
	}
	return fmt.Errorf("illegal order transition: %s -> %s", from, to)
}

// IsFinal 判断是否终态。
func IsFinal(st Status) bool {
	switch st {
	case StatusFilled, StatusCanceled, StatusBlocked, StatusExpired:
		return true
	default:
		return false
	}
}

// Order 是风控批准后的可执行订单。RemainingQty 随成交单调递减。
type Order struct {
	ID           string
	Symbol       string
	Side         Side
	Type         OrderType
	RequestedQty float64
	RemainingQty float64
	PriceHint    float64 // 下单时参考价（限价单即限价）
	Strategy     string
	Reason       string
	CreatedAt    time.Time
	Status       Status
}

// NewOrder 生成带 ULID 的新订单。
func NewOrder(symbol string, side Side, typ OrderType, qty, priceHint float64, strategy, reason string, ts time.Time) *Order {
	return &Order{
		ID:           id.New(),
		Symbol:       symbol,
		Side:         side,
		Type:         typ,
		RequestedQty: qty,
		RemainingQty: qty,
		PriceHint:    priceHint,
		Strategy:     strategy,
		Reason:       reason,
		CreatedAt:    ts,
		Status:       StatusNew,
	}
}

// setStatus 内部流转，非法转换说明有编程错误。
func (o *Order) setStatus(st Status) error {
	if err := ValidateTransition(o.Status, st); err != nil {
		return err
	}
	o.Status = st
	return nil
}

// Fill 是一笔（部分）成交，写入后不可变。Qty 带符号：买正卖负。
type Fill struct {
	ID          string
	OrderID     string
	Symbol      string
	Side        Side
	Qty         float64
	Price       float64
	Fee         float64
	FeeCurrency string
	FeeDegraded bool // 手续费未能换算为记账货币
	Liquidity   Liquidity
	Ts          time.Time
}

// Notional 成交名义金额（绝对值）。
func (f Fill) Notional() float64 {
	n := f.Qty * f.Price
	if n < 0 {
		return -n
	}
	return n
}
