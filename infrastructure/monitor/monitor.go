package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paperbot-go/events"
)

// Monitor Prometheus指标收集器（私有 registry，避免与测试互相污染）
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersSubmitted *prometheus.CounterVec
	ordersBlocked   *prometheus.CounterVec
	ordersCanceled  *prometheus.CounterVec
	ordersExpired   *prometheus.CounterVec

	// 成交指标
	fillsTotal   *prometheus.CounterVec
	feesPaid     *prometheus.CounterVec
	feesDegraded prometheus.Counter
	realizedPnL  *prometheus.CounterVec

	// 账本指标
	equity      prometheus.Gauge
	peakEquity  prometheus.Gauge
	drawdownPct prometheus.Gauge

	// 风控指标
	haltFlag        *prometheus.GaugeVec
	killswitchTrips prometheus.Counter

	// 事件/落盘指标
	eventsTotal   *prometheus.CounterVec
	journalErrors *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Namespace: "paperbot", Subsystem: "exec"}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		ordersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_submitted_total", Help: "订单提交总数",
		}, []string{"symbol"}),
		ordersBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_blocked_total", Help: "订单封禁总数（按原因）",
		}, []string{"reason", "symbol"}),
		ordersCanceled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_canceled_total", Help: "订单撤销总数",
		}, []string{"symbol"}),
		ordersExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "orders_expired_total", Help: "订单超时总数",
		}, []string{"symbol"}),

		fillsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "fills_total", Help: "成交笔数（按流动性角色）",
		}, []string{"liquidity", "symbol"}),
		feesPaid: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "fees_paid_total", Help: "累计手续费（记账货币）",
		}, []string{"symbol"}),
		feesDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "fee_conversion_degraded_total", Help: "手续费换算降级次数",
		}),
		realizedPnL: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "realized_pnl_total", Help: "正向已实现盈亏累计",
		}, []string{"symbol"}),

		equity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "equity", Help: "当前权益",
		}),
		peakEquity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "peak_equity", Help: "会话权益峰值",
		}),
		drawdownPct: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "drawdown_pct", Help: "当前回撤比例",
		}),

		haltFlag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "halt_flag", Help: "halt flag 状态（1=active）",
		}, []string{"flag"}),
		killswitchTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "killswitch_trips_total", Help: "kill switch 触发次数",
		}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "events_total", Help: "决策事件总数（按类型）",
		}, []string{"type"}),
		journalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "journal_errors_total", Help: "落盘失败次数",
		}, []string{"sink"}),
	}
	return m
}

// Registry 返回底层 registry。
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 /metrics 的 http.Handler。
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnEvent 实现 events.Sink：把决策事件映射到计数器。
func (m *Monitor) OnEvent(env events.Envelope) error {
	e := env.Event
	m.eventsTotal.WithLabelValues(e.Type).Inc()
	switch e.Type {
	case events.TypeOrderSubmitted:
		m.ordersSubmitted.WithLabelValues(e.Symbol).Inc()
	case events.TypeRiskBlocked, events.TypeExecBlocked:
		m.ordersBlocked.WithLabelValues(str(e.Fields["reason"]), e.Symbol).Inc()
	case events.TypeOrderCanceled:
		m.ordersCanceled.WithLabelValues(e.Symbol).Inc()
	case events.TypeOrderExpired:
		m.ordersExpired.WithLabelValues(e.Symbol).Inc()
	case events.TypeKillswitchTripped:
		m.killswitchTrips.Inc()
	case events.TypeFeeConversionDegrade:
		m.feesDegraded.Inc()
	}
	return nil
}

// ObserveFill 记录一笔成交的计数与费用。
func (m *Monitor) ObserveFill(symbol, liquidity string, fee, realized float64) {
	m.fillsTotal.WithLabelValues(liquidity, symbol).Inc()
	if fee > 0 {
		m.feesPaid.WithLabelValues(symbol).Add(fee)
	}
	// Counter 不能回退，只累计正向实现盈亏
	if realized > 0 {
		m.realizedPnL.WithLabelValues(symbol).Add(realized)
	}
}

// SetEquity 更新权益相关 gauge。
func (m *Monitor) SetEquity(equity, peak, drawdownPct float64) {
	m.equity.Set(equity)
	m.peakEquity.Set(peak)
	m.drawdownPct.Set(drawdownPct)
}

// SetHaltFlag 更新 halt flag gauge。
func (m *Monitor) SetHaltFlag(flag string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.haltFlag.WithLabelValues(flag).Set(v)
}

// IncJournalError 记录落盘失败。
func (m *Monitor) IncJournalError(sink string) {
	m.journalErrors.WithLabelValues(sink).Inc()
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown"
}
