package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"paperbot-go/events"
	"paperbot-go/exchange"
	"paperbot-go/exec"
	"paperbot-go/infrastructure/alert"
	"paperbot-go/infrastructure/logger"
	"paperbot-go/infrastructure/monitor"
	"paperbot-go/ledger"
	"paperbot-go/market"
	"paperbot-go/risk"
)

// SessionState 会话状态
type SessionState int

const (
	// StateIdle 空闲状态
	StateIdle SessionState = iota
	// StateRunning 运行状态
	StateRunning
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 会话配置
type Config struct {
	Venue             string        // 交易场所
	Environment       string        // paper / testnet 等
	Symbols           []string      // 交易对列表
	ATRPeriod         int           // ATR 周期，默认 14
	HeartbeatInterval time.Duration // 心跳事件间隔，0 关闭
	Exec              exec.Config   // 撮合模拟参数
}

// Components 会话依赖组件
type Components struct {
	Risk     *risk.Engine
	Flags    *risk.Registry
	Ledger   *ledger.Ledger
	Bus      *events.Bus
	Resolver *exchange.Resolver
	Oracle   exec.PriceOracle
	Monitor  *monitor.Monitor
	AlertMgr *alert.Manager
	Logger   *logger.Logger
}

// Session 把风控、撮合模拟与账本串成一次纸上交易会话。
// 所有交易决策在 mu 临界区内串行：权益读取和裁决之间不允许插入成交。
type Session struct {
	config Config

	riskEng *risk.Engine
	flags   *risk.Registry
	ledger  *ledger.Ledger
	bus     *events.Bus
	mon     *monitor.Monitor
	alerts  *alert.Manager
	logger  *logger.Logger

	sims      map[string]*exec.Simulator
	profiles  map[string]exchange.Profile
	atr       map[string]*market.ATR
	lastClose map[string]float64

	state        SessionState
	lastRealized float64
	mu           sync.Mutex

	stats Statistics
}

// Statistics 会话统计信息
type Statistics struct {
	StartTime   time.Time
	TotalBars   int64
	TotalOrders int64
	TotalFills  int64
	TotalBlocks int64
	mu          sync.RWMutex
}

// New 创建交易会话
func New(cfg Config, comp Components) (*Session, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(comp); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}

	s := &Session{
		config:   cfg,
		riskEng:  comp.Risk,
		flags:    comp.Flags,
		ledger:   comp.Ledger,
		bus:      comp.Bus,
		mon:      comp.Monitor,
		alerts:   comp.AlertMgr,
		logger:   comp.Logger,
		sims:      make(map[string]*exec.Simulator),
		profiles:  make(map[string]exchange.Profile),
		atr:       make(map[string]*market.ATR),
		lastClose: make(map[string]float64),
		state:     StateIdle,
	}

	// 每个 symbol 一个独立的撮合模拟器，profile 决定精度与费率
	for _, sym := range cfg.Symbols {
		profile, err := comp.Resolver.Resolve(cfg.Venue, cfg.Environment)
		if err != nil {
			return nil, fmt.Errorf("resolve profile for %s: %w", sym, err)
		}
		slip, err := exec.NewSlippageModel(cfg.Exec.Slippage, profile)
		if err != nil {
			return nil, fmt.Errorf("slippage model for %s: %w", sym, err)
		}
		s.profiles[sym] = profile
		s.sims[sym] = exec.NewSimulator(profile, slip, comp.Oracle, cfg.Exec, comp.Bus)
		s.atr[sym] = market.NewATR(cfg.ATRPeriod)
	}

	// halt flag 翻转同步到指标与日志
	comp.Flags.OnChange = func(name string, active bool) {
		if s.mon != nil {
			s.mon.SetHaltFlag(name, active)
		}
		if s.logger != nil {
			s.logger.LogHalt(name, active, s.ledger.Latest().Equity)
		}
	}

	return s, nil
}

// Start 标记会话开始，清除上一会话遗留的 halt flag。
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return fmt.Errorf("session already running")
	}
	s.flags.Reset()
	s.state = StateRunning
	s.stats.mu.Lock()
	s.stats.StartTime = time.Now()
	s.stats.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("session started",
			zap.String("venue", s.config.Venue),
			zap.String("environment", s.config.Environment),
			zap.Strings("symbols", s.config.Symbols),
			zap.Float64("equity_start", s.ledger.EquityStart()))
	}
	return nil
}

// SubmitIntent 裁决并登记一个交易意图。权益快照读取与裁决在同一临界区，
// 避免并发成交把快照变陈旧。
func (s *Session) SubmitIntent(intent risk.Intent) (*exec.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil, fmt.Errorf("session not running (state: %s)", s.state)
	}
	sim, ok := s.sims[intent.Symbol]
	if !ok {
		return nil, fmt.Errorf("symbol %s not configured", intent.Symbol)
	}

	// 外部意图可以不带特征，用会话自己的行情状态补齐
	if intent.Price == 0 {
		intent.Price = s.lastClose[intent.Symbol]
	}
	if intent.ATR14 == 0 {
		intent.ATR14 = s.atr[intent.Symbol].Value()
	}

	snap := s.ledger.Latest()
	order, err := s.riskEng.Approve(intent, snap, s.profiles[intent.Symbol])
	if err != nil {
		if !risk.IsValidation(err) {
			s.stats.mu.Lock()
			s.stats.TotalBlocks++
			s.stats.mu.Unlock()
			if s.logger != nil {
				s.logger.LogBlock(intent.Symbol, risk.BlockReason(err), map[string]interface{}{
					"side":     string(intent.Side),
					"strategy": intent.Strategy,
				})
			}
		}
		return nil, err
	}
	if order == nil {
		// flat 意图且无持仓，无动作
		return nil, nil
	}

	if err := sim.Submit(order); err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	s.stats.mu.Lock()
	s.stats.TotalOrders++
	s.stats.mu.Unlock()
	return order, nil
}

// OnBar 用一根 bar 推进对应 symbol 的撮合、记账与风控阈值评估。
func (s *Session) OnBar(bar market.Kline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return fmt.Errorf("session not running (state: %s)", s.state)
	}
	sim, ok := s.sims[bar.Symbol]
	if !ok {
		return fmt.Errorf("symbol %s not configured", bar.Symbol)
	}

	atr := s.atr[bar.Symbol].Update(bar)
	s.lastClose[bar.Symbol] = bar.Close

	s.stats.mu.Lock()
	s.stats.TotalBars++
	s.stats.mu.Unlock()

	fills, err := sim.Tick(bar, atr)
	if err != nil {
		return fmt.Errorf("advance %s: %w", bar.Symbol, err)
	}

	for _, f := range fills {
		snap, err := s.ledger.OnFill(f)
		if err != nil {
			// 落盘失败是致命错误，账本完整性无法保证
			return err
		}
		s.stats.mu.Lock()
		s.stats.TotalFills++
		s.stats.mu.Unlock()

		realizedDelta := snap.RealizedPnL - s.lastRealized
		s.lastRealized = snap.RealizedPnL
		if s.mon != nil {
			s.mon.ObserveFill(f.Symbol, string(f.Liquidity), f.Fee, realizedDelta)
		}
		if s.logger != nil {
			s.logger.LogFill(f.Symbol, f.OrderID, f.Qty, f.Price, f.Fee)
		}
		s.riskEng.OnEquityUpdate(snap)
	}

	// 盯市：每根 bar 收盘后重算权益曲线并评估阈值穿越
	snap, err := s.ledger.MarkToMarket(bar.Ts, map[string]float64{bar.Symbol: bar.Close})
	if err != nil {
		return err
	}
	s.riskEng.OnEquityUpdate(snap)
	if s.mon != nil {
		s.mon.SetEquity(snap.Equity, snap.PeakEquity, snap.DrawdownPct)
	}

	// kill switch 触发后立即撤掉全部未完结订单
	if s.flags.Get(risk.FlagKillSwitch) {
		s.cancelAllLocked("killswitch", bar.Ts)
	}
	return nil
}

// Run 消费行情 feed 直到其关闭或 ctx 取消，期间按配置发心跳事件。
func (s *Session) Run(ctx context.Context, feed *market.Feed) error {
	if err := s.Start(); err != nil {
		return err
	}

	var heartbeat <-chan time.Time
	if s.config.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return s.Stop("context canceled")

		case <-heartbeat:
			s.publishHeartbeat()

		case bar, ok := <-feed.Bars():
			if !ok {
				return s.Stop("feed closed")
			}
			if err := s.OnBar(bar); err != nil {
				if s.logger != nil {
					s.logger.LogError(err, map[string]interface{}{"symbol": bar.Symbol})
				}
				return err
			}
		}
	}
}

// Stop 结束会话：撤销所有未完结订单并冻结状态。幂等。
func (s *Session) Stop(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return nil
	}
	s.cancelAllLocked(reason, time.Now().UTC())
	s.state = StateStopped

	if s.logger != nil {
		snap := s.ledger.Latest()
		s.logger.Info("session stopped",
			zap.String("reason", reason),
			zap.Float64("equity", snap.Equity),
			zap.Float64("realized_pnl", snap.RealizedPnL),
			zap.Float64("cum_fees", snap.CumFees))
	}
	return nil
}

// OpenOrderCount 全部 symbol 的未完结订单数。
func (s *Session) OpenOrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sim := range s.sims {
		n += sim.OpenCount()
	}
	return n
}

// GetState 获取会话状态
func (s *Session) GetState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetStatistics 获取统计信息
func (s *Session) GetStatistics() (bars, orders, fills, blocks int64) {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return s.stats.TotalBars, s.stats.TotalOrders, s.stats.TotalFills, s.stats.TotalBlocks
}

func (s *Session) cancelAllLocked(reason string, ts time.Time) {
	for _, sim := range s.sims {
		sim.CancelAll(reason, ts)
	}
}

func (s *Session) publishHeartbeat() {
	snap := s.ledger.Latest()
	s.bus.MustPublish(events.Event{
		Type: events.TypeHeartbeat,
		Ts:   time.Now().UTC(),
		Fields: map[string]interface{}{
			"equity":      snap.Equity,
			"open_orders": s.OpenOrderCount(),
		},
	})
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.Venue == "" {
		return errors.New("venue is required")
	}
	if len(cfg.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(comp Components) error {
	if comp.Risk == nil {
		return errors.New("risk engine is required")
	}
	if comp.Flags == nil {
		return errors.New("flag registry is required")
	}
	if comp.Ledger == nil {
		return errors.New("ledger is required")
	}
	if comp.Bus == nil {
		return errors.New("event bus is required")
	}
	if comp.Resolver == nil {
		return errors.New("profile resolver is required")
	}
	return nil
}
