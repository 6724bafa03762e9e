package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/backtest"
	"tradelab/internal/market"
)

func testInput() ChartInput {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	step := int64(3600_000)
	candles := make([]market.Candle, 0, 30)
	equity := make([]backtest.EquityPoint, 0, 30)
	price := 100.0
	for i := 0; i < 30; i++ {
		ts := base + int64(i)*step
		candles = append(candles, market.Candle{
			OpenTime:  ts,
			CloseTime: ts + step - 1,
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price + 0.5,
			Volume:    1000,
		})
		equity = append(equity, backtest.EquityPoint{TS: ts, Balance: 10000 + float64(i)*10})
		price += 0.5
	}
	return ChartInput{
		Run: backtest.Run{
			ID:        "test-run",
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Stats:     backtest.Stats{TotalTrades: 1, WinRate: 100, NetProfitPct: 2.5},
		},
		Candles: candles,
		Equity:  equity,
		Trades: []backtest.ClosedTrade{
			{EntryTS: candles[3].OpenTime, ExitTS: candles[8].OpenTime, EntryPrice: 101, ExitPrice: 104},
		},
	}
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, testInput()))

	html := buf.String()
	assert.Contains(t, html, "BTCUSDT")
	assert.Contains(t, html, "Equity")
	assert.Contains(t, html, "echarts")
}

func TestRenderHTMLNoCandles(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHTML(&buf, ChartInput{Run: backtest.Run{ID: "empty"}})
	require.Error(t, err)
}
