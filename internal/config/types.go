package config

// Config 是 tradelab 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Engine   EngineConfig   `toml:"engine"`
	Backtest BacktestConfig `toml:"backtest"`
	Journal  JournalConfig  `toml:"journal"`
	Playbook PlaybookConfig `toml:"playbook"`
	Insight  InsightConfig  `toml:"insight"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// EngineConfig 控制合成行情与指标引擎的参数。
type EngineConfig struct {
	BasePrice  float64 `toml:"base_price"`  // 合成序列的初始价格基准
	JitterPct  float64 `toml:"jitter_pct"`  // 首根 K 线相对基准的抖动幅度
	DriftPct   float64 `toml:"drift_pct"`   // 每根 K 线收盘漂移上限（百分比）
	WickPct    float64 `toml:"wick_pct"`    // 高低影线相对实体的扩展上限
	MaxCandles int     `toml:"max_candles"` // 单次回测允许生成的最大 K 线数
	MinCandles int     `toml:"min_candles"` // 低于该数量拒绝回测
	RSIPeriod  int     `toml:"rsi_period"`
}

// BacktestConfig 提供回测请求的缺省参数与结果库路径。
type BacktestConfig struct {
	ResultsPath           string  `toml:"results_path"`
	DefaultBalance        float64 `toml:"default_balance"`
	DefaultStopLossPct    float64 `toml:"default_stop_loss_pct"`
	DefaultTakeProfitPct  float64 `toml:"default_take_profit_pct"`
	ForceCloseEndDefaults bool    `toml:"force_close_end"`
}

type JournalConfig struct {
	Path string `toml:"path"`
}

type PlaybookConfig struct {
	Path string `toml:"path"`
}

// InsightConfig 描述外部文本生成服务（OpenAI 兼容接口）的访问方式。
type InsightConfig struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
}
