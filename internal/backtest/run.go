package backtest

import (
	"time"

	"tradelab/internal/strategy"
)

const (
	ExitReasonStopLoss   = "stop_loss"
	ExitReasonTakeProfit = "take_profit"
	ExitReasonRule       = "rule"
	ExitReasonForceClose = "force_close"
)

// Params 是一次回测请求的参数快照。
type Params struct {
	Symbol         string  `json:"symbol" binding:"required"`
	Timeframe      string  `json:"timeframe" binding:"required"`
	StartTS        int64   `json:"start_ts" binding:"required"`
	EndTS          int64   `json:"end_ts" binding:"required"`
	InitialBalance float64 `json:"initial_balance"`
	Rules          string  `json:"rules"`
	Playbook       string  `json:"playbook"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
	Seed           int64   `json:"seed"`
	ForceCloseEnd  bool    `json:"force_close_end"`
}

// ClosedTrade 记录一次完整的开平仓，落库后不可变。
type ClosedTrade struct {
	ID            int64   `json:"id,omitempty"`
	EntryTS       int64   `json:"entry_ts"`
	ExitTS        int64   `json:"exit_ts"`
	EntryPrice    float64 `json:"entry_price"`
	ExitPrice     float64 `json:"exit_price"`
	PositionSize  float64 `json:"position_size"`
	Profit        float64 `json:"profit"`
	ReturnPct     float64 `json:"return_pct"`
	DurationHours float64 `json:"duration_hours"`
	ExitReason    string  `json:"exit_reason"`
}

// EquityPoint 保存资金曲线上的一个点（每根 K 线一个）。
type EquityPoint struct {
	TS      int64   `json:"ts"`
	Balance float64 `json:"balance"`
}

// OpenPosition 描述回测结束时仍未平掉的仓位（默认不强制平仓）。
type OpenPosition struct {
	EntryTS      int64   `json:"entry_ts"`
	EntryPrice   float64 `json:"entry_price"`
	PositionSize float64 `json:"position_size"`
	StopPrice    float64 `json:"stop_price"`
	TargetPrice  float64 `json:"target_price"`
}

// Stats 汇总收益与风控指标，供前端展示。
type Stats struct {
	NetProfit      float64 `json:"net_profit"`
	NetProfitPct   float64 `json:"net_profit_pct"`
	WinRate        float64 `json:"win_rate"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	AvgTradeHours  float64 `json:"avg_trade_hours"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	FinalBalance   float64 `json:"final_balance"`
}

// Run 是一次已完成回测的持久化记录。
type Run struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	StartTS        int64     `json:"start_ts"`
	EndTS          int64     `json:"end_ts"`
	InitialBalance float64   `json:"initial_balance"`
	Seed           int64     `json:"seed"`
	Rules          string    `json:"rules"`
	StopLossPct    float64   `json:"stop_loss_pct"`
	TakeProfitPct  float64   `json:"take_profit_pct"`
	ForceCloseEnd  bool      `json:"force_close_end"`
	Stats          Stats     `json:"stats"`
	CreatedAt      time.Time `json:"created_at"`
}

// Report 是 runBacktest 的完整返回：记录 + 明细 + 曲线。
type Report struct {
	Run          Run              `json:"run"`
	RuleSet      strategy.RuleSet `json:"rule_set"`
	Trades       []ClosedTrade    `json:"trades"`
	Equity       []EquityPoint    `json:"equity"`
	OpenPosition *OpenPosition    `json:"open_position,omitempty"`
	Candles      int              `json:"candles"`
}
