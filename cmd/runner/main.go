package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"paperbot-go/config"
	"paperbot-go/events"
	"paperbot-go/exchange"
	"paperbot-go/exec"
	"paperbot-go/infrastructure/alert"
	"paperbot-go/infrastructure/logger"
	"paperbot-go/infrastructure/monitor"
	"paperbot-go/internal/engine"
	"paperbot-go/journal"
	"paperbot-go/ledger"
	"paperbot-go/market"
	"paperbot-go/metrics"
	"paperbot-go/risk"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	candlesDir := flag.String("candlesDir", "data/candles", "K线 CSV 目录，文件名为 {symbol}.csv")
	intentsPath := flag.String("intents", "", "交易意图 CSV 路径（ts-ms,symbol,side,strength,strategy,reason），留空表示只回放行情")
	watchConfig := flag.Bool("watchConfig", false, "监听配置文件变化（仅校验并告警，不热切换会话）")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Close()

	// 事件总线与各 sink：指标、告警、bbolt 决策日志
	bus := events.NewBus()
	mon := monitor.New(monitor.DefaultConfig())
	bus.Subscribe(mon)

	alerts := alert.NewManager([]alert.Channel{alert.NewConsoleChannel("console")}, time.Minute)
	bus.Subscribe(alerts)

	if cfg.EventLog.Path != "" {
		eventLog, err := journal.NewEventLog(cfg.EventLog.Path)
		if err != nil {
			log.Fatalf("打开事件日志失败: %v", err)
		}
		defer eventLog.Close()
		bus.Subscribe(eventLog)
	}
	bus.OnSinkError = func(sinkIdx int, env events.Envelope, err error) {
		mon.IncJournalError("events")
		zlog.LogError(err, map[string]interface{}{"sink": sinkIdx, "event": env.Event.Type})
	}

	// SQLite 成交/账本落盘
	var j journal.Journal
	if cfg.Journal.Path != "" {
		sj, err := journal.NewSQLite(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("打开交易日志失败: %v", err)
		}
		if cfg.Journal.MaxRetries > 0 {
			sj.MaxRetries = cfg.Journal.MaxRetries
		}
		if cfg.Journal.BackoffMs > 0 {
			sj.Backoff = time.Duration(cfg.Journal.BackoffMs) * time.Millisecond
		}
		defer sj.Close()
		j = sj
	}

	led := ledger.New(cfg.EquityStart, ledger.AvgCost{}, j)
	flagsReg := risk.NewRegistry()
	riskEng := risk.NewEngine(cfg.Risk, flagsReg, bus, cfg.EquityStart)

	session, err := engine.New(engine.Config{
		Venue:             cfg.Venue,
		Environment:       cfg.Env,
		Symbols:           cfg.Symbols,
		ATRPeriod:         cfg.ATRPeriod,
		HeartbeatInterval: time.Duration(cfg.HeartbeatMs) * time.Millisecond,
		Exec:              cfg.Exec,
	}, engine.Components{
		Risk:     riskEng,
		Flags:    flagsReg,
		Ledger:   led,
		Bus:      bus,
		Resolver: exchange.NewResolver(cfg.ProfilesDir),
		Oracle:   exec.StaticOracle{},
		Monitor:  mon,
		AlertMgr: alerts,
		Logger:   zlog,
	})
	if err != nil {
		log.Fatalf("初始化会话失败: %v", err)
	}

	if cfg.MetricsAddr != "" {
		metrics.StartMetricsServer(cfg.MetricsAddr, mon.Handler())
		zlog.Info("metrics server started", zap.String("addr", cfg.MetricsAddr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *watchConfig {
		w := &config.Watcher{Path: *cfgPath, OnError: func(err error) {
			alerts.SendWarning("config reload rejected", map[string]interface{}{"error": err.Error()})
		}}
		go func() {
			_ = w.Start(ctx, func(config.AppConfig) {
				alerts.SendWarning("config changed on disk, restart to apply", nil)
			})
		}()
	}

	// 加载行情与意图，按时间排好序后喂入会话
	bars, err := loadCandles(*candlesDir, cfg.Symbols)
	if err != nil {
		log.Fatalf("加载K线失败: %v", err)
	}
	var intents []risk.Intent
	if *intentsPath != "" {
		intents, err = loadIntents(*intentsPath)
		if err != nil {
			log.Fatalf("加载意图失败: %v", err)
		}
	}
	zlog.Info("replay input loaded", zap.Int("bars", len(bars)), zap.Int("intents", len(intents)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		zlog.Info("signal received, shutting down")
		cancel()
	}()

	if err := session.Start(); err != nil {
		log.Fatalf("启动会话失败: %v", err)
	}

	// 意图先于同一时刻的 bar 提交：裁决用的是上一根 bar 收盘后的权益
	ii := 0
	for _, bar := range bars {
		select {
		case <-ctx.Done():
			_ = session.Stop("signal")
			return
		default:
		}
		for ii < len(intents) && !intents[ii].Ts.After(bar.Ts) {
			if _, err := session.SubmitIntent(intents[ii]); err != nil && risk.IsValidation(err) {
				zlog.LogError(err, map[string]interface{}{"symbol": intents[ii].Symbol})
			}
			ii++
		}
		if err := session.OnBar(bar); err != nil {
			zlog.LogError(err, map[string]interface{}{"symbol": bar.Symbol})
			_ = session.Stop("fatal error")
			os.Exit(1)
		}
	}
	_ = session.Stop("replay complete")

	snap := led.Latest()
	barsN, orders, fills, blocks := session.GetStatistics()
	fmt.Printf("bars=%d orders=%d fills=%d blocks=%d\n", barsN, orders, fills, blocks)
	fmt.Printf("equity=%.2f realized=%.2f fees=%.2f drawdown=%.4f\n",
		snap.Equity, snap.RealizedPnL, snap.CumFees, snap.DrawdownPct)
}

// loadCandles 读取每个 symbol 的 CSV 并按时间戳归并。
func loadCandles(dir string, symbols []string) ([]market.Kline, error) {
	var all []market.Kline
	for _, sym := range symbols {
		path := filepath.Join(dir, sym+".csv")
		bars, err := market.ReadCSV(path, sym)
		if err != nil {
			return nil, err
		}
		all = append(all, bars...)
	}
	sort.SliceStable(all, func(i, k int) bool { return all[i].Ts.Before(all[k].Ts) })
	return all, nil
}

// loadIntents 读取意图 CSV：ts-ms,symbol,side,strength,strategy,reason。
func loadIntents(path string) ([]risk.Intent, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open intents: %w", err)
	}
	defer fd.Close()

	r := csv.NewReader(fd)
	r.FieldsPerRecord = -1
	var out []risk.Intent
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read intents line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 4 {
			return nil, fmt.Errorf("intents line %d: want >= 4 columns, got %d", line, len(rec))
		}
		ms, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if line == 1 {
				continue // 表头
			}
			return nil, fmt.Errorf("intents line %d: bad timestamp %q", line, rec[0])
		}
		strength, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("intents line %d: bad strength %q", line, rec[3])
		}
		intent := risk.Intent{
			Ts:       time.UnixMilli(ms).UTC(),
			Symbol:   strings.ToUpper(rec[1]),
			Side:     risk.IntentSide(strings.ToLower(rec[2])),
			Strength: strength,
		}
		if len(rec) > 4 {
			intent.Strategy = rec[4]
		}
		if len(rec) > 5 {
			intent.Reason = rec[5]
		}
		out = append(out, intent)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].Ts.Before(out[k].Ts) })
	return out, nil
}
