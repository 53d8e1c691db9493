package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"paperbot-go/exec"
	"paperbot-go/infrastructure/logger"
	"paperbot-go/risk"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string   `yaml:"env"`         // paper / testnet
	Venue       string   `yaml:"venue"`       // binance 等
	Symbols     []string `yaml:"symbols"`     // 交易对列表
	EquityStart float64  `yaml:"equityStart"` // 会话起始权益
	ProfilesDir string   `yaml:"profilesDir"` // 交易所 profile 目录
	MetricsAddr string   `yaml:"metricsAddr"` // Prometheus 监听地址，空则不启动
	ATRPeriod   int      `yaml:"atrPeriod"`
	HeartbeatMs int      `yaml:"heartbeatMs"` // 心跳事件间隔（毫秒），0 关闭

	Risk     risk.Config    `yaml:"risk"`
	Exec     exec.Config    `yaml:"exec"`
	Journal  JournalConfig  `yaml:"journal"`
	EventLog EventLogConfig `yaml:"eventLog"`
	Logger   logger.Config  `yaml:"logger"`
}

// JournalConfig SQLite 成交/账本落盘配置。
type JournalConfig struct {
	Path       string `yaml:"path"`
	MaxRetries int    `yaml:"maxRetries"`
	BackoffMs  int    `yaml:"backoffMs"`
}

// EventLogConfig bbolt 事件日志配置。
type EventLogConfig struct {
	Path string `yaml:"path"`
}

// Default 返回可运行的缺省配置（纸上交易，无落盘路径）。
func Default() AppConfig {
	return AppConfig{
		Env:         "paper",
		Venue:       "binance",
		EquityStart: 100000,
		ProfilesDir: "configs/profiles",
		ATRPeriod:   14,
		Risk:        risk.DefaultConfig(),
		Exec: exec.Config{
			LiquidityFraction: 0.25,
			Slippage:          exec.SlippageConfig{Model: "fixed_bps"},
		},
		Logger: logger.DefaultConfig(),
	}
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment-specific fields
// from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("PAPERBOT_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("PAPERBOT_EVENTLOG_PATH"); v != "" {
		cfg.EventLog.Path = v
	}
	if v := os.Getenv("PAPERBOT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("PAPERBOT_PROFILES_DIR"); v != "" {
		cfg.ProfilesDir = v
	}
	return cfg, Validate(cfg)
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Venue == "" {
		return errors.New("venue is required")
	}
	if len(cfg.Symbols) == 0 {
		return errors.New("symbols config is required")
	}
	if cfg.EquityStart <= 0 {
		return errors.New("equityStart must be > 0")
	}
	if cfg.ProfilesDir == "" {
		return errors.New("profilesDir is required")
	}
	if cfg.ATRPeriod < 0 {
		return errors.New("atrPeriod must be >= 0")
	}
	if err := validateRisk(cfg.Risk); err != nil {
		return err
	}
	if err := validateExec(cfg.Exec); err != nil {
		return err
	}
	if cfg.Journal.MaxRetries < 0 {
		return errors.New("journal.maxRetries must be >= 0")
	}
	if cfg.Journal.BackoffMs < 0 {
		return errors.New("journal.backoffMs must be >= 0")
	}
	if cfg.HeartbeatMs < 0 {
		return errors.New("heartbeatMs must be >= 0")
	}
	return nil
}

func validateRisk(rc risk.Config) error {
	if rc.RiskFrac <= 0 || rc.RiskFrac >= 1 {
		return fmt.Errorf("risk.riskFrac must be in (0,1), got %f", rc.RiskFrac)
	}
	if rc.ATRStopMult <= 0 {
		return fmt.Errorf("risk.atrStopMult must be > 0, got %f", rc.ATRStopMult)
	}
	if rc.MaxPositionValuePerSymbol < 0 || rc.MaxPositionValuePerSymbol > 1 {
		return fmt.Errorf("risk.maxPositionValuePerSymbol must be in [0,1], got %f", rc.MaxPositionValuePerSymbol)
	}
	if rc.DailyLossCapPct < 0 || rc.DailyLossCapPct >= 1 {
		return fmt.Errorf("risk.dailyLossCapPct must be in [0,1), got %f", rc.DailyLossCapPct)
	}
	if rc.KillSwitchEquityFloorPct < 0 || rc.KillSwitchEquityFloorPct >= 1 {
		return fmt.Errorf("risk.killSwitchEquityFloorPct must be in [0,1), got %f", rc.KillSwitchEquityFloorPct)
	}
	if rc.MaxPositions < 0 {
		return errors.New("risk.maxPositions must be >= 0")
	}
	switch rc.CapPolicy {
	case "", risk.CapPolicyClamp, risk.CapPolicyBlock:
	default:
		return fmt.Errorf("risk.capPolicy must be clamp or block, got %q", rc.CapPolicy)
	}
	return nil
}

func validateExec(ec exec.Config) error {
	if ec.LiquidityFraction < 0 || ec.LiquidityFraction > 1 {
		return fmt.Errorf("exec.liquidityFraction must be in [0,1], got %f", ec.LiquidityFraction)
	}
	if ec.MaxBarsOpen < 0 {
		return errors.New("exec.maxBarsOpen must be >= 0")
	}
	switch ec.Slippage.Model {
	case "", exec.SlippageFixedBps, exec.SlippageATRScaled, exec.SlippageRandomBps:
	default:
		return fmt.Errorf("exec.slippage.model unknown: %q", ec.Slippage.Model)
	}
	if ec.Slippage.Bps < 0 || ec.Slippage.MaxBps < 0 {
		return errors.New("exec.slippage bps must be >= 0")
	}
	return nil
}
