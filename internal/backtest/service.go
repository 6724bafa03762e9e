package backtest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradelab/internal/indicator"
	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/pkg/faults"
	"tradelab/internal/strategy"
)

// Defaults 是请求未填字段的缺省值。
type Defaults struct {
	InitialBalance float64
	StopLossPct    float64
	TakeProfitPct  float64
}

type EngineConfig struct {
	Synth      market.SynthConfig
	RSIPeriod  int
	MinCandles int
	MaxCandles int
	Defaults   Defaults
	Results    *ResultStore // 可为空：为空时只计算不落库
}

// Engine 将 合成行情→指标→规则→模拟→汇总 串成一次同步调用。
// 每次调用持有自己的全部工作状态，多个调用可并发执行。
type Engine struct {
	synth      *market.Synthesizer
	rsiPeriod  int
	minCandles int
	maxCandles int
	defaults   Defaults
	results    *ResultStore
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = indicator.DefaultRSIPeriod
	}
	if cfg.MinCandles <= cfg.RSIPeriod {
		cfg.MinCandles = cfg.RSIPeriod + 6
	}
	if cfg.MaxCandles <= 0 {
		cfg.MaxCandles = 50000
	}
	if cfg.Defaults.InitialBalance <= 0 {
		cfg.Defaults.InitialBalance = 10000
	}
	if cfg.Defaults.StopLossPct <= 0 {
		cfg.Defaults.StopLossPct = 2
	}
	if cfg.Defaults.TakeProfitPct <= 0 {
		cfg.Defaults.TakeProfitPct = 4
	}
	return &Engine{
		synth:      market.NewSynthesizer(cfg.Synth),
		rsiPeriod:  cfg.RSIPeriod,
		minCandles: cfg.MinCandles,
		maxCandles: cfg.MaxCandles,
		defaults:   cfg.Defaults,
		results:    cfg.Results,
	}
}

// Run 执行一次完整回测。校验先于任何状态变更，失败不产生部分输出。
func (e *Engine) Run(ctx context.Context, p Params) (Report, error) {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return Report{}, faults.Validationf("symbol", "不能为空")
	}
	tf, err := market.ParseTimeframe(p.Timeframe)
	if err != nil {
		return Report{}, faults.Validationf("timeframe", "%v", err)
	}
	start, end := tf.AlignRange(p.StartTS, p.EndTS)
	if start <= 0 || end <= 0 || end <= start {
		return Report{}, faults.Validationf("range", "start/end 非法")
	}
	balance := p.InitialBalance
	if balance == 0 {
		balance = e.defaults.InitialBalance
	}
	if balance <= 0 {
		return Report{}, faults.Validationf("initial_balance", "必须 > 0")
	}
	stopLossPct := p.StopLossPct
	if stopLossPct == 0 {
		stopLossPct = e.defaults.StopLossPct
	}
	takeProfitPct := p.TakeProfitPct
	if takeProfitPct == 0 {
		takeProfitPct = e.defaults.TakeProfitPct
	}
	if stopLossPct <= 0 || stopLossPct >= 100 {
		return Report{}, faults.Validationf("stop_loss_pct", "必须落在 (0,100)")
	}
	if takeProfitPct <= 0 {
		return Report{}, faults.Validationf("take_profit_pct", "必须 > 0")
	}

	expected := tf.ExpectedCandles(start, end)
	if expected > int64(e.maxCandles) {
		return Report{}, faults.Validationf("range", "区间需要 %d 根 K 线，超出上限 %d", expected, e.maxCandles)
	}
	if expected < int64(e.minCandles) {
		return Report{}, &faults.InsufficientDataError{Need: e.minCandles, Got: int(expected)}
	}

	rules, err := strategy.Compile(p.Rules)
	if err != nil {
		return Report{}, err
	}

	candles, seed, err := e.synth.Generate(start, end, tf, p.Seed)
	if err != nil {
		return Report{}, err
	}
	rsi, err := indicator.RSI(market.Closes(candles), e.rsiPeriod)
	if err != nil {
		return Report{}, err
	}

	sim := simulate(candles, rsi, rules, simConfig{
		initialBalance: balance,
		stopLossPct:    stopLossPct,
		takeProfitPct:  takeProfitPct,
		forceCloseEnd:  p.ForceCloseEnd,
	})
	stats := summarize(sim.trades, sim.equity, balance, sim.finalBalance)

	run := Run{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Timeframe:      tf.Key,
		StartTS:        start,
		EndTS:          end,
		InitialBalance: balance,
		Seed:           seed,
		Rules:          p.Rules,
		StopLossPct:    stopLossPct,
		TakeProfitPct:  takeProfitPct,
		ForceCloseEnd:  p.ForceCloseEnd,
		Stats:          stats,
		CreatedAt:      time.Now().UTC(),
	}
	report := Report{
		Run:          run,
		RuleSet:      rules,
		Trades:       sim.trades,
		Equity:       sim.equity,
		OpenPosition: sim.open,
		Candles:      len(candles),
	}
	if e.results != nil {
		if err := e.results.SaveReport(ctx, report); err != nil {
			// 计算结果本身有效，落库失败只告警
			logger.Warnf("[backtest] run %s 落库失败: %v", run.ID, err)
		}
	}
	logger.Infof("[backtest] run %s %s@%s candles=%d trades=%d final=%.2f",
		run.ID, symbol, tf.Key, len(candles), stats.TotalTrades, stats.FinalBalance)
	return report, nil
}

// Regenerate 按历史 run 的参数重放合成行情（图表渲染用）。
func (e *Engine) Regenerate(run Run) ([]market.Candle, error) {
	tf, err := market.ParseTimeframe(run.Timeframe)
	if err != nil {
		return nil, err
	}
	candles, _, err := e.synth.Generate(run.StartTS, run.EndTS, tf, run.Seed)
	return candles, err
}
