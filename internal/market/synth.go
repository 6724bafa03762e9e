package market

import (
	"math/rand"
	"time"

	"tradelab/internal/pkg/faults"
)

// SynthConfig 控制随机游走的幅度参数（均为百分比）。
type SynthConfig struct {
	BasePrice float64
	JitterPct float64 // 首根收盘相对 BasePrice 的抖动上限
	DriftPct  float64 // 每根收盘相对开盘的漂移上限
	WickPct   float64 // 影线相对实体端点的扩展上限
}

// Synthesizer 生成合成 K 线序列。不回放真实行情，仅用于策略推演。
type Synthesizer struct {
	cfg SynthConfig
}

func NewSynthesizer(cfg SynthConfig) *Synthesizer {
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100
	}
	if cfg.JitterPct <= 0 {
		cfg.JitterPct = 5
	}
	if cfg.DriftPct <= 0 {
		cfg.DriftPct = 2
	}
	if cfg.WickPct <= 0 {
		cfg.WickPct = 1
	}
	return &Synthesizer{cfg: cfg}
}

// Generate 生成 [start,end]（毫秒，闭区间）按 tf 步进的 K 线。
// seed=0 时取当前纳秒时间作为种子（每次探索得到新路径）；非零种子保证可复现。
// 返回实际使用的种子，便于把探索性的一次运行固化为可重放的配置。
func (s *Synthesizer) Generate(start, end int64, tf Timeframe, seed int64) ([]Candle, int64, error) {
	start, end = tf.AlignRange(start, end)
	count := tf.ExpectedCandles(start, end)
	if count <= 0 {
		return nil, 0, faults.Validationf("range", "start/end 区间无效")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	step := tf.DurationMillis()

	candles := make([]Candle, 0, count)
	prevClose := s.cfg.BasePrice * (1 + symmetric(rng)*s.cfg.JitterPct/100)
	ts := start
	for i := int64(0); i < count; i++ {
		open := prevClose
		close := open * (1 + symmetric(rng)*s.cfg.DriftPct/100)
		bodyHigh := open
		bodyLow := close
		if close > open {
			bodyHigh, bodyLow = close, open
		}
		high := bodyHigh * (1 + rng.Float64()*s.cfg.WickPct/100)
		low := bodyLow * (1 - rng.Float64()*s.cfg.WickPct/100)
		candles = append(candles, Candle{
			OpenTime:  ts,
			CloseTime: ts + step - 1,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + rng.Float64()*9000,
		})
		prevClose = close
		ts += step
	}
	return candles, seed, nil
}

// symmetric 返回 [-1,1) 的均匀随机数。
func symmetric(rng *rand.Rand) float64 {
	return rng.Float64()*2 - 1
}
