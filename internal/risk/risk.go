package risk

import (
	"strings"

	"github.com/shopspring/decimal"

	"tradelab/internal/pkg/faults"
)

const (
	DirectionLong  = "long"
	DirectionShort = "short"

	MethodFixedPercentage = "fixed_percentage"
	MethodFixedAmount     = "fixed_amount"
	MethodKelly           = "kelly"
)

// ladderMultiples 是固定的止盈阶梯（R 倍数），不开放配置。
var ladderMultiples = []float64{1.5, 2, 3}

// TradeParameters 描述一次计算请求的全部输入，调用方每次新建、引擎不持久化。
type TradeParameters struct {
	Symbol          string  `json:"symbol"`
	AccountCurrency string  `json:"account_currency"`
	AccountBalance  float64 `json:"account_balance"`
	EntryPrice      float64 `json:"entry_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	TargetPrice     float64 `json:"target_price"`
	Direction       string  `json:"direction"` // long/short
	Leverage        float64 `json:"leverage"`

	Method         string  `json:"method"` // fixed_percentage/fixed_amount/kelly
	RiskPercent    float64 `json:"risk_percent,omitempty"`
	RiskAmount     float64 `json:"risk_amount,omitempty"`
	WinProbability float64 `json:"win_probability,omitempty"`
	WinLossRatio   float64 `json:"win_loss_ratio,omitempty"`
}

// TakeProfitLevel 是阶梯中的一档：R 倍数、触发价以及按当前仓位的利润。
type TakeProfitLevel struct {
	Multiple float64 `json:"multiple"`
	Price    float64 `json:"price"`
	Profit   float64 `json:"profit"`
}

// Result 汇总仓位规模与风险指标。
type Result struct {
	Symbol            string            `json:"symbol"`
	Direction         string            `json:"direction"`
	Method            string            `json:"method"`
	RiskAmount        float64           `json:"risk_amount"`
	StopDistance      float64           `json:"stop_distance"`
	PositionSizeAsset float64           `json:"position_size_asset"`
	PositionSizeFiat  float64           `json:"position_size_fiat"`
	Notional          float64           `json:"notional"`
	MaxLoss           float64           `json:"max_loss"`
	MaxLossPct        float64           `json:"max_loss_pct"`
	RewardRiskRatio   float64           `json:"reward_risk_ratio"`
	KellyFraction     float64           `json:"kelly_fraction,omitempty"`
	TakeProfits       []TakeProfitLevel `json:"take_profits"`
}

// Compute 根据交易参数推导仓位与风险指标。
// 校验失败返回 faults.ValidationError，绝不返回部分结果。
func Compute(p TradeParameters) (Result, error) {
	direction := strings.ToLower(strings.TrimSpace(p.Direction))
	if direction != DirectionLong && direction != DirectionShort {
		return Result{}, faults.Validationf("direction", "必须为 long 或 short")
	}
	if p.AccountBalance <= 0 {
		return Result{}, faults.Validationf("account_balance", "必须 > 0")
	}
	if p.EntryPrice <= 0 {
		return Result{}, faults.Validationf("entry_price", "必须 > 0")
	}
	if p.StopLossPrice <= 0 {
		return Result{}, faults.Validationf("stop_loss_price", "必须 > 0")
	}
	if p.TargetPrice <= 0 {
		return Result{}, faults.Validationf("target_price", "必须 > 0")
	}
	leverage := p.Leverage
	if leverage < 1 {
		leverage = 1
	}

	entry := decimal.NewFromFloat(p.EntryPrice)
	stop := decimal.NewFromFloat(p.StopLossPrice)
	target := decimal.NewFromFloat(p.TargetPrice)
	balance := decimal.NewFromFloat(p.AccountBalance)

	// 止损/止盈必须落在方向正确的一侧，否则风险距离无意义。
	var stopDist, targetDist decimal.Decimal
	switch direction {
	case DirectionLong:
		stopDist = entry.Sub(stop)
		targetDist = target.Sub(entry)
		if stopDist.Sign() <= 0 {
			return Result{}, faults.Validationf("stop_loss_price", "做多止损必须低于入场价")
		}
		if targetDist.Sign() <= 0 {
			return Result{}, faults.Validationf("target_price", "做多目标必须高于入场价")
		}
	case DirectionShort:
		stopDist = stop.Sub(entry)
		targetDist = entry.Sub(target)
		if stopDist.Sign() <= 0 {
			return Result{}, faults.Validationf("stop_loss_price", "做空止损必须高于入场价")
		}
		if targetDist.Sign() <= 0 {
			return Result{}, faults.Validationf("target_price", "做空目标必须低于入场价")
		}
	}

	riskAmount, kellyFraction, err := resolveRiskAmount(p, balance)
	if err != nil {
		return Result{}, err
	}
	if riskAmount.Sign() <= 0 {
		return Result{}, faults.Validationf("risk", "风险金额必须 > 0")
	}
	if riskAmount.GreaterThan(balance) {
		return Result{}, faults.Validationf("risk", "风险金额 %s 超过账户余额 %s", riskAmount, balance)
	}

	sizeAsset := riskAmount.Div(stopDist)
	sizeFiat := sizeAsset.Mul(entry)
	notional := sizeFiat.Mul(decimal.NewFromFloat(leverage))
	rr := targetDist.Div(stopDist)
	maxLossPct := riskAmount.Div(balance).Mul(decimal.NewFromInt(100))

	ladder := make([]TakeProfitLevel, 0, len(ladderMultiples))
	for _, m := range ladderMultiples {
		mult := decimal.NewFromFloat(m)
		offset := stopDist.Mul(mult)
		price := entry.Add(offset)
		if direction == DirectionShort {
			price = entry.Sub(offset)
		}
		ladder = append(ladder, TakeProfitLevel{
			Multiple: m,
			Price:    toFloat(price),
			Profit:   toFloat(riskAmount.Mul(mult)),
		})
	}

	return Result{
		Symbol:            strings.ToUpper(strings.TrimSpace(p.Symbol)),
		Direction:         direction,
		Method:            normalizeMethod(p.Method),
		RiskAmount:        toFloat(riskAmount),
		StopDistance:      toFloat(stopDist),
		PositionSizeAsset: toFloat(sizeAsset),
		PositionSizeFiat:  toFloat(sizeFiat),
		Notional:          toFloat(notional),
		MaxLoss:           toFloat(riskAmount),
		MaxLossPct:        toFloat(maxLossPct),
		RewardRiskRatio:   toFloat(rr),
		KellyFraction:     kellyFraction,
		TakeProfits:       ladder,
	}, nil
}

func resolveRiskAmount(p TradeParameters, balance decimal.Decimal) (decimal.Decimal, float64, error) {
	switch normalizeMethod(p.Method) {
	case MethodFixedPercentage:
		if p.RiskPercent <= 0 {
			return decimal.Zero, 0, faults.Validationf("risk_percent", "必须 > 0")
		}
		pct := decimal.NewFromFloat(p.RiskPercent).Div(decimal.NewFromInt(100))
		return balance.Mul(pct), 0, nil
	case MethodFixedAmount:
		if p.RiskAmount <= 0 {
			return decimal.Zero, 0, faults.Validationf("risk_amount", "必须 > 0")
		}
		return decimal.NewFromFloat(p.RiskAmount), 0, nil
	case MethodKelly:
		if p.WinProbability <= 0 || p.WinProbability >= 1 {
			return decimal.Zero, 0, faults.Validationf("win_probability", "必须落在 (0,1)")
		}
		if p.WinLossRatio <= 0 {
			return decimal.Zero, 0, faults.Validationf("win_loss_ratio", "必须 > 0")
		}
		prob := decimal.NewFromFloat(p.WinProbability)
		ratio := decimal.NewFromFloat(p.WinLossRatio)
		one := decimal.NewFromInt(1)
		// f = p - (1-p)/R，f<=0 表示没有正期望，拒绝给出仓位。
		fraction := prob.Sub(one.Sub(prob).Div(ratio))
		if fraction.Sign() <= 0 {
			return decimal.Zero, 0, faults.Validationf("kelly", "凯利分数 <= 0，该参数组合没有正期望")
		}
		return balance.Mul(fraction), toFloat(fraction), nil
	default:
		return decimal.Zero, 0, faults.Validationf("method", "未知风险计算方式: %s", p.Method)
	}
}

func normalizeMethod(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", MethodFixedPercentage, "percentage", "pct":
		return MethodFixedPercentage
	case MethodFixedAmount, "amount":
		return MethodFixedAmount
	case MethodKelly, "kelly_criterion":
		return MethodKelly
	default:
		return strings.ToLower(strings.TrimSpace(method))
	}
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
