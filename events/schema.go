package events

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// 事件类型常量，与决策日志/指标的 label 保持一致。
const (
	TypeOrderIntent          = "order_intent"
	TypeOrderSubmitted       = "order_submitted"
	TypeOrderPartiallyFilled = "order_partially_filled"
	TypeOrderFilled          = "order_filled"
	TypeOrderCanceled        = "order_canceled"
	TypeOrderExpired         = "order_expired"
	TypeRiskBlocked          = "risk_blocked"
	TypeExecBlocked          = "exec_blocked"
	TypeDailyLossLimitBreach = "daily_loss_limit_breach"
	TypeKillswitchTripped    = "killswitch_tripped"
	TypeFeeConversionDegrade = "fee_conversion_degraded"
	TypeHeartbeat            = "heartbeat"
)

// Event 是单条决策记录。通用字段放结构体，类型相关的细节放 Fields。
type Event struct {
	Type     string                 `json:"event_type"`
	Ts       time.Time              `json:"ts"`
	Symbol   string                 `json:"symbol"`
	Strategy string                 `json:"strategy,omitempty"`
	Side     string                 `json:"side,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// Envelope 包装事件并带上追踪信息；Sequence 由 Bus 在发布时赋值。
type Envelope struct {
	SchemaVersion string `json:"schema_version"`
	CorrelationID string `json:"correlation_id"`
	Sequence      uint64 `json:"sequence"`
	Event         Event  `json:"event"`
}

const SchemaVersion = "v1"

// schema 定义每个事件类型在 Fields 里必须携带的键，发布前集中校验。
type schema struct {
	Required []string
}

var schemas = map[string]schema{
	TypeOrderIntent:          {Required: []string{"notional"}},
	TypeOrderSubmitted:       {Required: []string{"order_id", "qty"}},
	TypeOrderPartiallyFilled: {Required: []string{"order_id", "qty", "price", "fee"}},
	TypeOrderFilled:          {Required: []string{"order_id", "qty", "avg_price", "fee"}},
	TypeOrderCanceled:        {Required: []string{"order_id", "reason", "remaining_qty"}},
	TypeOrderExpired:         {Required: []string{"order_id", "remaining_qty", "bars_open"}},
	TypeRiskBlocked:          {Required: []string{"reason"}},
	TypeExecBlocked:          {Required: []string{"order_id", "reason"}},
	TypeDailyLossLimitBreach: {Required: []string{"equity", "equity_start", "pct_drop", "flags"}},
	TypeKillswitchTripped:    {Required: []string{"equity", "floor"}},
	TypeFeeConversionDegrade: {Required: []string{"order_id", "fee_currency"}},
	TypeHeartbeat:            {Required: nil},
}

// Known 返回全部事件类型名，供文档与测试使用。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 校验事件类型已注册且必填字段齐全。
func Validate(e Event) error {
	sc, ok := schemas[e.Type]
	if !ok {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Ts.IsZero() {
		return fmt.Errorf("event %s missing ts", e.Type)
	}
	var missing []string
	for _, key := range sc.Required {
		if _, ok := e.Fields[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("event %s missing fields: %s", e.Type, strings.Join(missing, ","))
	}
	return nil
}
