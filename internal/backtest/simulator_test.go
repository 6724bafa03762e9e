package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/market"
	"tradelab/internal/strategy"
)

const hourMs = int64(3600_000)

// mkCandles 用收盘价序列构造平坦 K 线（高低点与收盘重合，便于精确控制触发）。
func mkCandles(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		ts := int64(i) * hourMs
		out[i] = market.Candle{
			OpenTime:  ts,
			CloseTime: ts + hourMs - 1,
			Open:      prev,
			High:      math.Max(prev, c),
			Low:       math.Min(prev, c),
			Close:     c,
			Volume:    1000,
		}
		prev = c
	}
	return out
}

func mustRules(t *testing.T) strategy.RuleSet {
	t.Helper()
	rules, err := strategy.Compile("BUY when RSI < 30\nSELL when RSI > 70")
	require.NoError(t, err)
	return rules
}

func TestSimulateBuySignalEntersFullBalance(t *testing.T) {
	candles := mkCandles(100, 100, 100, 100)
	rsi := []float64{math.NaN(), 25, 50, 50} // 第 1 根触发买入
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    2,
		takeProfitPct:  4,
	})

	require.NotNil(t, res.open)
	assert.Empty(t, res.trades)
	assert.InDelta(t, 100.0, res.open.EntryPrice, 1e-9)
	assert.InDelta(t, 100.0, res.open.PositionSize, 1e-9) // 10000/100 全仓
	assert.InDelta(t, 98.0, res.open.StopPrice, 1e-9)
	assert.InDelta(t, 104.0, res.open.TargetPrice, 1e-9)
	// 持仓未平时余额不变
	assert.InDelta(t, 10000.0, res.finalBalance, 1e-9)
}

func TestSimulateStopLossBeforeTakeProfit(t *testing.T) {
	// 第 2 根 K 线同时穿过止损与止盈，止损优先
	candles := mkCandles(100, 100, 100)
	candles[2].Low = 97
	candles[2].High = 105
	rsi := []float64{math.NaN(), 25, 50}
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    2,
		takeProfitPct:  4,
	})

	require.Len(t, res.trades, 1)
	trade := res.trades[0]
	assert.Equal(t, ExitReasonStopLoss, trade.ExitReason)
	assert.InDelta(t, 98.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, -200.0, trade.Profit, 1e-9) // 100 份 × -2
	assert.InDelta(t, 9800.0, res.finalBalance, 1e-9)
	assert.Nil(t, res.open)
}

func TestSimulateTakeProfitExit(t *testing.T) {
	candles := mkCandles(100, 100, 100)
	candles[2].High = 105
	rsi := []float64{math.NaN(), 25, 50}
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    2,
		takeProfitPct:  4,
	})

	require.Len(t, res.trades, 1)
	trade := res.trades[0]
	assert.Equal(t, ExitReasonTakeProfit, trade.ExitReason)
	assert.InDelta(t, 104.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 10400.0, res.finalBalance, 1e-9)
}

func TestSimulateRuleExitAtClose(t *testing.T) {
	// 价格未触及止损/止盈，RSI 超过卖出阈值时按收盘价离场
	candles := mkCandles(100, 100, 101)
	rsi := []float64{math.NaN(), 25, 75}
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    5,
		takeProfitPct:  10,
	})

	require.Len(t, res.trades, 1)
	trade := res.trades[0]
	assert.Equal(t, ExitReasonRule, trade.ExitReason)
	assert.InDelta(t, 101.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 10100.0, res.finalBalance, 1e-9)
}

func TestSimulateNaNWarmupNeverTriggers(t *testing.T) {
	candles := mkCandles(100, 100, 100, 100)
	rsi := []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    2,
		takeProfitPct:  4,
	})

	assert.Empty(t, res.trades)
	assert.Nil(t, res.open)
	assert.InDelta(t, 10000.0, res.finalBalance, 1e-9)
}

func TestSimulateForceCloseEnd(t *testing.T) {
	candles := mkCandles(100, 100, 102)
	rsi := []float64{math.NaN(), 25, 50}
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    5,
		takeProfitPct:  10,
		forceCloseEnd:  true,
	})

	require.Len(t, res.trades, 1)
	assert.Equal(t, ExitReasonForceClose, res.trades[0].ExitReason)
	assert.InDelta(t, 102.0, res.trades[0].ExitPrice, 1e-9)
	assert.Nil(t, res.open)
	assert.InDelta(t, 10200.0, res.finalBalance, 1e-9)
}

func TestSimulateEquityMarkToMarket(t *testing.T) {
	candles := mkCandles(100, 100, 103)
	rsi := []float64{math.NaN(), 25, 50}
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    10,
		takeProfitPct:  20,
	})

	// 从第 1 根开始每根一个资金点
	require.Len(t, res.equity, 2)
	assert.InDelta(t, 10000.0, res.equity[0].Balance, 1e-9) // 进场当根，收盘即成本价
	assert.InDelta(t, 10300.0, res.equity[1].Balance, 1e-9) // 100 份 × +3 未实现
}

func TestSimulateReentryAfterExit(t *testing.T) {
	// 离场后再次满足买入条件应重新进场
	candles := mkCandles(100, 100, 100, 100, 100)
	candles[2].High = 105
	rsi := []float64{math.NaN(), 25, 50, 25, 50}
	res := simulate(candles, rsi, mustRules(t), simConfig{
		initialBalance: 10000,
		stopLossPct:    2,
		takeProfitPct:  4,
	})

	require.Len(t, res.trades, 1)
	require.NotNil(t, res.open)
	// 第二次进场用的是第一笔盈利后的余额
	assert.InDelta(t, 10400.0/100.0, res.open.PositionSize, 1e-9)
}
