package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", tf.Key)
	assert.Equal(t, time.Hour, tf.Duration)

	_, err = ParseTimeframe("2h")
	assert.Error(t, err)
}

func TestExpectedCandles(t *testing.T) {
	tf, _ := ParseTimeframe("1h")
	start := int64(0)
	end := start + 9*tf.DurationMillis()
	assert.Equal(t, int64(10), tf.ExpectedCandles(start, end))
	assert.Equal(t, int64(0), tf.ExpectedCandles(end, start))
}

func TestGenerateInvariants(t *testing.T) {
	tf, _ := ParseTimeframe("1h")
	synth := NewSynthesizer(SynthConfig{BasePrice: 100})
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := start + 499*tf.DurationMillis()

	candles, seed, err := synth.Generate(start, end, tf, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seed)
	require.Len(t, candles, 500)

	step := tf.DurationMillis()
	for i, c := range candles {
		if i > 0 {
			assert.Equal(t, candles[i-1].OpenTime+step, c.OpenTime, "时间戳必须严格按步长递增")
			assert.Equal(t, candles[i-1].Close, c.Open, "开盘必须衔接上一根收盘")
		}
		bodyHigh := c.Open
		bodyLow := c.Close
		if c.Close > c.Open {
			bodyHigh, bodyLow = c.Close, c.Open
		}
		assert.LessOrEqual(t, c.Low, bodyLow, "low <= min(open,close)")
		assert.GreaterOrEqual(t, c.High, bodyHigh, "high >= max(open,close)")
		assert.Positive(t, c.Volume)
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	tf, _ := ParseTimeframe("15m")
	synth := NewSynthesizer(SynthConfig{BasePrice: 250})
	start := int64(1_700_000_000_000)
	end := start + 199*tf.DurationMillis()

	a, _, err := synth.Generate(start, end, tf, 7)
	require.NoError(t, err)
	b, _, err := synth.Generate(start, end, tf, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, _, err := synth.Generate(start, end, tf, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestGenerateFreshSeedWhenZero(t *testing.T) {
	tf, _ := ParseTimeframe("1d")
	synth := NewSynthesizer(SynthConfig{BasePrice: 100})
	_, seed, err := synth.Generate(0, 9*tf.DurationMillis(), tf, 0)
	require.NoError(t, err)
	assert.NotZero(t, seed)
}
