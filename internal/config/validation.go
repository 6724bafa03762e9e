package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Insight.validate(); err != nil {
		return err
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.DriftPct >= 50 {
		return fmt.Errorf("engine.drift_pct must be < 50")
	}
	if e.MinCandles <= e.RSIPeriod {
		return fmt.Errorf("engine.min_candles must exceed engine.rsi_period (%d <= %d)", e.MinCandles, e.RSIPeriod)
	}
	if e.MaxCandles < e.MinCandles {
		return fmt.Errorf("engine.max_candles must be >= engine.min_candles")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.DefaultStopLossPct >= 100 {
		return fmt.Errorf("backtest.default_stop_loss_pct must be < 100")
	}
	return nil
}

func (i *InsightConfig) validate() error {
	if !i.Enabled {
		return nil
	}
	if strings.TrimSpace(i.Model) == "" {
		return fmt.Errorf("insight.model is required when insight.enabled")
	}
	return nil
}
