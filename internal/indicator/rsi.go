package indicator

import (
	"math"

	"tradelab/internal/pkg/faults"
)

const DefaultRSIPeriod = 14

// RSI 计算 Wilder 平滑的相对强弱指标，输出与输入等长。
// 前 period 个位置没有足够历史，填充 NaN 表示未定义；其余取值范围 [0,100]。
func RSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(closes) < period+1 {
		return nil, &faults.InsufficientDataError{Need: period + 1, Got: len(closes)}
	}
	out := make([]float64, len(closes))
	for i := 0; i < period && i < len(out); i++ {
		out[i] = math.NaN()
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Defined 判断序列第 i 位是否已有有效指标值。
func Defined(series []float64, i int) bool {
	return i >= 0 && i < len(series) && !math.IsNaN(series[i])
}
