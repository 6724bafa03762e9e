package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"tradelab/internal/backtest"
	tlcfg "tradelab/internal/config"
	"tradelab/internal/insight"
	"tradelab/internal/journal"
	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/playbook"
	httpapi "tradelab/internal/transport/http"
)

// AppBuilder 按配置逐层装配依赖，子构建函数可在测试里替换。
type AppBuilder struct {
	cfg *tlcfg.Config

	resultStoreFn func(tlcfg.BacktestConfig) (*backtest.ResultStore, error)
	journalFn     func(tlcfg.JournalConfig) (*journal.Store, error)
	playbookFn    func(tlcfg.PlaybookConfig) (*playbook.Registry, error)
	insightFn     func(tlcfg.InsightConfig) *insight.Service
	httpServerFn  func(httpapi.Config) (*httpapi.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *tlcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		resultStoreFn: buildResultStore,
		journalFn:     buildJournalStore,
		playbookFn:    buildPlaybookRegistry,
		insightFn:     buildInsightService,
		httpServerFn:  httpapi.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	results, err := b.resultStoreFn(cfg.Backtest)
	if err != nil {
		return nil, fmt.Errorf("初始化回测结果库失败: %w", err)
	}
	journalStore, err := b.journalFn(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("初始化交易日志库失败: %w", err)
	}
	registry, err := b.playbookFn(cfg.Playbook)
	if err != nil {
		return nil, fmt.Errorf("加载剧本失败: %w", err)
	}
	if registry != nil {
		logger.Infof("✓ 剧本已加载: %v", registry.IDs())
	}

	engine := backtest.NewEngine(backtest.EngineConfig{
		Synth: market.SynthConfig{
			BasePrice: cfg.Engine.BasePrice,
			JitterPct: cfg.Engine.JitterPct,
			DriftPct:  cfg.Engine.DriftPct,
			WickPct:   cfg.Engine.WickPct,
		},
		RSIPeriod:  cfg.Engine.RSIPeriod,
		MinCandles: cfg.Engine.MinCandles,
		MaxCandles: cfg.Engine.MaxCandles,
		Defaults: backtest.Defaults{
			InitialBalance: cfg.Backtest.DefaultBalance,
			StopLossPct:    cfg.Backtest.DefaultStopLossPct,
			TakeProfitPct:  cfg.Backtest.DefaultTakeProfitPct,
		},
		Results: results,
	})

	insightSvc := b.insightFn(cfg.Insight)

	httpServer, err := b.httpServerFn(httpapi.Config{
		Addr:      cfg.App.HTTPAddr,
		Engine:    engine,
		Results:   results,
		Journal:   journalStore,
		Playbooks: registry,
		Insight:   insightSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:     cfg,
		http:    httpServer,
		results: results,
		journal: journalStore,
	}, nil
}

func buildResultStore(cfg tlcfg.BacktestConfig) (*backtest.ResultStore, error) {
	return backtest.NewResultStore(cfg.ResultsPath)
}

func buildJournalStore(cfg tlcfg.JournalConfig) (*journal.Store, error) {
	return journal.NewStore(cfg.Path)
}

// buildPlaybookRegistry 对缺失的剧本文件降级为 nil registry，不阻塞启动。
func buildPlaybookRegistry(cfg tlcfg.PlaybookConfig) (*playbook.Registry, error) {
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		logger.Warnf("剧本文件 %s 不存在，playbook 功能不可用", cfg.Path)
		return nil, nil
	}
	return playbook.NewRegistry(cfg.Path)
}

func buildInsightService(cfg tlcfg.InsightConfig) *insight.Service {
	if !cfg.Enabled {
		return insight.NewService(nil, false)
	}
	client := &insight.ChatClient{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.MaxRetries,
	}
	return insight.NewService(client, true)
}
