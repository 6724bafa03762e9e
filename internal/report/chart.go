package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"tradelab/internal/backtest"
	"tradelab/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorEquity        = "#3b82f6"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	equityHeightPx = 300
)

// ChartInput 聚合一次回测的行情、资金曲线与成交点。
type ChartInput struct {
	Run     backtest.Run
	Candles []market.Candle
	Equity  []backtest.EquityPoint
	Trades  []backtest.ClosedTrade
}

// RenderHTML 渲染 K 线 + 资金曲线的自包含 HTML 页面。
func RenderHTML(w io.Writer, input ChartInput) error {
	if len(input.Candles) == 0 {
		return fmt.Errorf("no candles to render for run %s", input.Run.ID)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = fmt.Sprintf("%s %s backtest", input.Run.Symbol, input.Run.Timeframe)

	xAxis := buildXAxis(input.Candles)
	page.AddCharts(
		buildKlineChart(input, xAxis),
		buildEquityChart(input),
	)
	return page.Render(w)
}

func buildKlineChart(input ChartInput, xAxis []string) *charts.Kline {
	candles := input.Candles
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s %s", strings.ToUpper(input.Run.Symbol), input.Run.Timeframe),
			Subtitle: fmt.Sprintf("trades=%d win=%.1f%% net=%.2f%%",
				input.Run.Stats.TotalTrades, input.Run.Stats.WinRate, input.Run.Stats.NetProfitPct),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	if markers := buildTradeMarkers(input.Candles, input.Trades); markers != nil {
		kline.Overlap(markers)
	}
	return kline
}

// buildTradeMarkers 把进出场点画成散点叠在 K 线上。
func buildTradeMarkers(candles []market.Candle, trades []backtest.ClosedTrade) *charts.Scatter {
	if len(trades) == 0 {
		return nil
	}
	index := make(map[int64]int, len(candles))
	for i, c := range candles {
		index[c.OpenTime] = i
	}
	entries := make([]opts.ScatterData, 0, len(trades))
	exits := make([]opts.ScatterData, 0, len(trades))
	xAxis := buildXAxis(candles)
	for _, t := range trades {
		if i, ok := index[t.EntryTS]; ok {
			entries = append(entries, opts.ScatterData{Value: []interface{}{xAxis[i], t.EntryPrice}, Symbol: "triangle", SymbolSize: 12})
		}
		if i, ok := index[t.ExitTS]; ok {
			exits = append(exits, opts.ScatterData{Value: []interface{}{xAxis[i], t.ExitPrice}, Symbol: "diamond", SymbolSize: 12})
		}
	}
	scatter := charts.NewScatter()
	scatter.SetXAxis(xAxis)
	scatter.AddSeries("Entry", entries, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBull}))
	scatter.AddSeries("Exit", exits, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBear}))
	return scatter
}

func buildEquityChart(input ChartInput) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "Equity",
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary, FontSize: 14},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
	)
	xAxis := make([]string, 0, len(input.Equity))
	data := make([]opts.LineData, 0, len(input.Equity))
	for _, p := range input.Equity {
		xAxis = append(xAxis, formatTS(p.TS))
		data = append(data, opts.LineData{Value: round(p.Balance, 2)})
	}
	line.SetXAxis(xAxis)
	line.AddSeries("Balance", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity}),
	)
	return line
}

func buildXAxis(candles []market.Candle) []string {
	out := make([]string, 0, len(candles))
	for _, c := range candles {
		out = append(out, formatTS(c.OpenTime))
	}
	return out
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("01-02 15:04")
}

func priceBounds(candles []market.Candle) (float64, float64) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, c := range candles {
		if c.Low < min {
			min = c.Low
		}
		if c.High > max {
			max = c.High
		}
	}
	return min, max
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
