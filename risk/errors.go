package risk

import "errors"

var (
	ErrKillSwitch   = errors.New("killswitch active")
	ErrDailyStop    = errors.New("daily loss stop active")
	ErrValueCap     = errors.New("symbol value cap exceed")
	ErrMaxPositions = errors.New("max positions exceed")
	ErrQtyZero      = errors.New("sized qty is zero")
)

// 封禁原因 label，与 orders_blocked_total 指标及决策日志保持一致。
const (
	ReasonKillSwitch   = "killswitch"
	ReasonDailyStop    = "daily_stop"
	ReasonValueCap     = "symbol_value_cap"
	ReasonMaxPositions = "max_positions"
	ReasonQtyZero      = "qty_zero"
)

// BlockReason 把封禁错误映射为指标 label；非封禁错误返回空串。
func BlockReason(err error) string {
	switch {
	case errors.Is(err, ErrKillSwitch):
		return ReasonKillSwitch
	case errors.Is(err, ErrDailyStop):
		return ReasonDailyStop
	case errors.Is(err, ErrValueCap):
		return ReasonValueCap
	case errors.Is(err, ErrMaxPositions):
		return ReasonMaxPositions
	case errors.Is(err, ErrQtyZero):
		return ReasonQtyZero
	default:
		return ""
	}
}

// ValidationError 表示畸形意图，在触达任何风控状态之前就被拒绝，
// 不计入封禁统计。
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "invalid intent: " + e.Msg }

// IsValidation 判断是否为校验错误。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
