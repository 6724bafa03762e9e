package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeNoTrades(t *testing.T) {
	stats := summarize(nil, nil, 10000, 10000)

	assert.Equal(t, 0, stats.TotalTrades)
	assert.Zero(t, stats.WinRate) // 不得除零
	assert.Zero(t, stats.AvgTradeHours)
	assert.Zero(t, stats.NetProfit)
	assert.Zero(t, stats.MaxDrawdownPct)
	assert.InDelta(t, 10000.0, stats.FinalBalance, 1e-9)
}

func TestSummarizeWinRateAndAverages(t *testing.T) {
	trades := []ClosedTrade{
		{Profit: 200, DurationHours: 4},
		{Profit: -100, DurationHours: 2},
		{Profit: 50, DurationHours: 6},
		{Profit: 0, DurationHours: 4}, // 零盈亏计入亏损侧
	}
	stats := summarize(trades, nil, 10000, 10150)

	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 2, stats.WinningTrades)
	assert.Equal(t, 2, stats.LosingTrades)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 4.0, stats.AvgTradeHours, 1e-9)
	assert.InDelta(t, 150.0, stats.NetProfit, 1e-9)
	assert.InDelta(t, 1.5, stats.NetProfitPct, 1e-9)
}

func TestSummarizeDrawdownZeroOnMonotonicCurve(t *testing.T) {
	equity := []EquityPoint{
		{TS: 1, Balance: 10000},
		{TS: 2, Balance: 10100},
		{TS: 3, Balance: 10500},
	}
	stats := summarize(nil, equity, 10000, 10500)
	assert.Zero(t, stats.MaxDrawdownPct)
}

func TestSummarizeDrawdownAgainstRunningPeak(t *testing.T) {
	equity := []EquityPoint{
		{TS: 1, Balance: 10000},
		{TS: 2, Balance: 12000}, // 峰值
		{TS: 3, Balance: 9000},  // 回撤 25%
		{TS: 4, Balance: 11000},
	}
	stats := summarize(nil, equity, 10000, 11000)
	assert.InDelta(t, 25.0, stats.MaxDrawdownPct, 1e-9)
}

func TestSummarizeDrawdownPeakStartsAtInitialBalance(t *testing.T) {
	// 曲线从未超过初始资金，回撤仍相对初始资金计算
	equity := []EquityPoint{
		{TS: 1, Balance: 9500},
		{TS: 2, Balance: 9000},
	}
	stats := summarize(nil, equity, 10000, 9000)
	assert.InDelta(t, 10.0, stats.MaxDrawdownPct, 1e-9)
}
