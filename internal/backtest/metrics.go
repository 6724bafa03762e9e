package backtest

// summarize 把成交明细与资金曲线归并为汇总统计。
// 无成交时胜率与平均持仓时长取 0，绝不除零。
func summarize(trades []ClosedTrade, equity []EquityPoint, initialBalance, finalBalance float64) Stats {
	stats := Stats{
		NetProfit:    finalBalance - initialBalance,
		FinalBalance: finalBalance,
		TotalTrades:  len(trades),
	}
	if initialBalance > 0 {
		stats.NetProfitPct = stats.NetProfit / initialBalance * 100
	}

	var totalHours float64
	for _, t := range trades {
		if t.Profit > 0 {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
		totalHours += t.DurationHours
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
		stats.AvgTradeHours = totalHours / float64(stats.TotalTrades)
	}

	// 回撤相对运行峰值计算，峰值从初始资金起算
	peak := initialBalance
	maxDrawdown := 0.0
	for _, p := range equity {
		if p.Balance > peak {
			peak = p.Balance
		}
		if peak > 0 {
			dd := (peak - p.Balance) / peak
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	stats.MaxDrawdownPct = maxDrawdown * 100
	return stats
}
