package config

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9992"
	defaultAppLogPath  = ""

	defaultBasePrice  = 100.0
	defaultJitterPct  = 5.0
	defaultDriftPct   = 2.0
	defaultWickPct    = 1.0
	defaultMaxCandles = 50000
	defaultMinCandles = 20
	defaultRSIPeriod  = 14

	defaultResultsPath    = "data/backtests"
	defaultBalance        = 10000.0
	defaultStopLossPct    = 2.0
	defaultTakeProfitPct  = 4.0
	defaultJournalPath    = "data/journal.db"
	defaultPlaybookPath   = "configs/playbooks.yaml"
	defaultInsightTimeout = 60
	defaultInsightRetries = 2
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.App.LogPath == "" {
		c.App.LogPath = defaultAppLogPath
	}
	if c.Engine.BasePrice <= 0 {
		c.Engine.BasePrice = defaultBasePrice
	}
	if c.Engine.JitterPct <= 0 {
		c.Engine.JitterPct = defaultJitterPct
	}
	if c.Engine.DriftPct <= 0 {
		c.Engine.DriftPct = defaultDriftPct
	}
	if c.Engine.WickPct <= 0 {
		c.Engine.WickPct = defaultWickPct
	}
	if c.Engine.MaxCandles <= 0 {
		c.Engine.MaxCandles = defaultMaxCandles
	}
	if c.Engine.MinCandles <= 0 {
		c.Engine.MinCandles = defaultMinCandles
	}
	if c.Engine.RSIPeriod <= 0 {
		c.Engine.RSIPeriod = defaultRSIPeriod
	}
	if c.Backtest.ResultsPath == "" {
		c.Backtest.ResultsPath = defaultResultsPath
	}
	if c.Backtest.DefaultBalance <= 0 {
		c.Backtest.DefaultBalance = defaultBalance
	}
	if c.Backtest.DefaultStopLossPct <= 0 {
		c.Backtest.DefaultStopLossPct = defaultStopLossPct
	}
	if c.Backtest.DefaultTakeProfitPct <= 0 {
		c.Backtest.DefaultTakeProfitPct = defaultTakeProfitPct
	}
	if c.Journal.Path == "" {
		c.Journal.Path = defaultJournalPath
	}
	if c.Playbook.Path == "" {
		c.Playbook.Path = defaultPlaybookPath
	}
	if c.Insight.TimeoutSeconds <= 0 {
		c.Insight.TimeoutSeconds = defaultInsightTimeout
	}
	if c.Insight.MaxRetries <= 0 {
		c.Insight.MaxRetries = defaultInsightRetries
	}
}
