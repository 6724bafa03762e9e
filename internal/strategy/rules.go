package strategy

import (
	"regexp"
	"strconv"
	"strings"

	"tradelab/internal/pkg/faults"
)

const (
	ActionBuy  = "buy"
	ActionSell = "sell"

	IndicatorRSI = "rsi"

	OpLess    = "<"
	OpGreater = ">"
)

// Rule 是规则文本编译后的单条谓词（带标签的比较节点）。
type Rule struct {
	Action    string  `json:"action"`
	Indicator string  `json:"indicator"`
	Operator  string  `json:"operator"`
	Threshold float64 `json:"threshold"`
}

// Holds 判断指标值是否满足该规则。NaN（指标未预热）一律不满足。
func (r Rule) Holds(value float64) bool {
	switch r.Operator {
	case OpLess:
		return value < r.Threshold
	case OpGreater:
		return value > r.Threshold
	default:
		return false
	}
}

// RuleSet 是一次回测使用的完整规则集：恰好一条买入 + 一条卖出。
type RuleSet struct {
	Buy  Rule `json:"buy"`
	Sell Rule `json:"sell"`
}

// 每行一条指令：`BUY when RSI < 30` / `SELL when RSI > 70`，大小写不敏感。
var rulePattern = regexp.MustCompile(`(?i)^\s*(BUY|SELL)\s+when\s+RSI\s*([<>])\s*(\d+(?:\.\d+)?)\s*$`)

// Compile 将自由文本规则编译为 RuleSet，每次回测编译一次。
// 不匹配语法的行静默忽略；缺少买入或卖出规则视为配置错误。
func Compile(text string) (RuleSet, error) {
	var (
		set     RuleSet
		hasBuy  bool
		hasSell bool
	)
	for _, line := range strings.Split(text, "\n") {
		m := rulePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		threshold, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		rule := Rule{
			Action:    strings.ToLower(m[1]),
			Indicator: IndicatorRSI,
			Operator:  m[2],
			Threshold: threshold,
		}
		// 同类规则出现多条时保留第一条
		switch rule.Action {
		case ActionBuy:
			if !hasBuy {
				set.Buy = rule
				hasBuy = true
			}
		case ActionSell:
			if !hasSell {
				set.Sell = rule
				hasSell = true
			}
		}
	}
	if !hasBuy {
		return RuleSet{}, faults.Configurationf("策略缺少 BUY 规则（示例：BUY when RSI < 30）")
	}
	if !hasSell {
		return RuleSet{}, faults.Configurationf("策略缺少 SELL 规则（示例：SELL when RSI > 70）")
	}
	return set, nil
}
