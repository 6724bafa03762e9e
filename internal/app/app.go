package app

import (
	"context"
	"fmt"

	"tradelab/internal/backtest"
	tlcfg "tradelab/internal/config"
	"tradelab/internal/journal"
	"tradelab/internal/logger"
	httpapi "tradelab/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务。
type App struct {
	cfg     *tlcfg.Config
	http    *httpapi.Server
	results *backtest.ResultStore
	journal *journal.Store
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *tlcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.http == nil {
		return fmt.Errorf("http server not initialized")
	}
	logger.Infof("✓ tradelab 启动，HTTP 监听 %s", a.cfg.App.HTTPAddr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer a.closeStores()
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

func (a *App) closeStores() {
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			logger.Warnf("关闭结果库失败: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warnf("关闭日志库失败: %v", err)
		}
	}
}
