package insight

import (
	"context"
	"fmt"
	"strings"

	"tradelab/internal/backtest"
	"tradelab/internal/pkg/faults"
)

const systemPrompt = `你是一名严谨的交易复盘助手。根据给出的回测统计给出 3-5 条中文点评：
策略的优点、明显的风险点、以及下一步可以尝试的参数调整。不要编造数据，只基于给定数字。`

// Service 把回测结果整理成提示词并请求模型点评。
type Service struct {
	client  *ChatClient
	enabled bool
}

func NewService(client *ChatClient, enabled bool) *Service {
	return &Service{client: client, enabled: enabled}
}

func (s *Service) Enabled() bool {
	return s != nil && s.enabled && s.client != nil
}

// Review 对一次回测生成复盘点评。未启用时返回 ConfigurationError。
func (s *Service) Review(ctx context.Context, run backtest.Run, trades []backtest.ClosedTrade) (string, error) {
	if !s.Enabled() {
		return "", faults.Configurationf("insight 未启用或缺少模型配置")
	}
	return s.client.CallWithMessages(ctx, systemPrompt, buildPrompt(run, trades))
}

func buildPrompt(run backtest.Run, trades []backtest.ClosedTrade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## 回测概览\n")
	fmt.Fprintf(&b, "- 标的: %s，周期: %s\n", run.Symbol, run.Timeframe)
	fmt.Fprintf(&b, "- 规则:\n%s\n", indent(run.Rules, "  "))
	fmt.Fprintf(&b, "- 止损 %.2f%% / 止盈 %.2f%%\n", run.StopLossPct, run.TakeProfitPct)
	fmt.Fprintf(&b, "\n## 统计\n")
	fmt.Fprintf(&b, "- 初始资金 %.2f，终值 %.2f，净收益 %.2f (%.2f%%)\n",
		run.InitialBalance, run.Stats.FinalBalance, run.Stats.NetProfit, run.Stats.NetProfitPct)
	fmt.Fprintf(&b, "- 交易 %d 笔（胜 %d / 负 %d），胜率 %.1f%%\n",
		run.Stats.TotalTrades, run.Stats.WinningTrades, run.Stats.LosingTrades, run.Stats.WinRate)
	fmt.Fprintf(&b, "- 最大回撤 %.2f%%，平均持仓 %.1f 小时\n",
		run.Stats.MaxDrawdownPct, run.Stats.AvgTradeHours)

	// 离场原因分布比逐笔明细对模型更有用
	reasons := map[string]int{}
	for _, t := range trades {
		reasons[t.ExitReason]++
	}
	if len(reasons) > 0 {
		fmt.Fprintf(&b, "\n## 离场原因分布\n")
		for _, reason := range []string{
			backtest.ExitReasonStopLoss,
			backtest.ExitReasonTakeProfit,
			backtest.ExitReasonRule,
			backtest.ExitReasonForceClose,
		} {
			if n := reasons[reason]; n > 0 {
				fmt.Fprintf(&b, "- %s: %d\n", reason, n)
			}
		}
	}
	return b.String()
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = prefix + strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
