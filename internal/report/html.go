package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	colorEquity   = "#3b82f6"
	colorDrawdown = "#f87171"
	colorBuy      = "#34d399"
	colorSell     = "#fb7185"

	chartWidth  = "1200px"
	chartHeight = "420px"
)

// RenderHTML writes a standalone page with the equity curve, trade markers
// and the drawdown curve.
func RenderHTML(w io.Writer, result backtest.Result, metrics analysis.Metrics) error {
	if len(result.EquityCurve) == 0 {
		return fmt.Errorf("Report | nothing to render for %s", result.Strategy)
	}

	xAxis := make([]string, len(result.Timestamps))
	for i, ts := range result.Timestamps {
		xAxis[i] = time.UnixMilli(ts).UTC().Format("2006-01-02 15:04")
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s %s %s", result.Strategy, result.Symbol, result.Timeframe)
	page.AddCharts(equityChart(result, xAxis), drawdownChart(metrics, xAxis))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("Report | rendering html: %w", err)
	}
	return nil
}

func equityChart(result backtest.Result, xAxis []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Equity %s %s", result.Symbol, result.Timeframe),
			Subtitle: fmt.Sprintf("%s, return %.2f%%, %d trades", result.Strategy, result.TotalReturn, result.TotalTrades),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)

	equity := make([]opts.LineData, len(result.EquityCurve))
	for i, v := range result.EquityCurve {
		equity[i] = opts.LineData{Value: round(v, 2)}
	}

	// Trades are keyed by bar timestamp. The first curve point is the seed,
	// so markers land on the bar that triggered them.
	buys := make([]opts.LineData, len(result.EquityCurve))
	sells := make([]opts.LineData, len(result.EquityCurve))
	for i := range buys {
		buys[i] = opts.LineData{Value: nil}
		sells[i] = opts.LineData{Value: nil}
	}
	for _, t := range result.Trades {
		idx := barIndex(result.Timestamps, t.Timestamp)
		if idx < 0 {
			continue
		}
		switch t.Signal {
		case signal.Buy:
			buys[idx] = opts.LineData{Value: round(result.EquityCurve[idx], 2)}
		case signal.Sell:
			sells[idx] = opts.LineData{Value: round(result.EquityCurve[idx], 2)}
		}
	}

	line.SetXAxis(xAxis).
		AddSeries("Equity", equity,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2})).
		AddSeries("Buy", buys,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true), Symbol: "triangle", SymbolSize: 10}),
			charts.WithLineStyleOpts(opts.LineStyle{Opacity: opts.Float(0)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorBuy})).
		AddSeries("Sell", sells,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true), Symbol: "pin", SymbolSize: 14}),
			charts.WithLineStyleOpts(opts.LineStyle{Opacity: opts.Float(0)}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colorSell}))
	return line
}

func drawdownChart(metrics analysis.Metrics, xAxis []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Drawdown",
			Subtitle: fmt.Sprintf("max %.2f%%, sharpe %.4f", metrics.MaxDrawdown*100, metrics.SharpeRatio),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
	)

	data := make([]opts.LineData, len(xAxis))
	for i := range data {
		if i < len(metrics.DrawdownCurve) {
			data[i] = opts.LineData{Value: round(-metrics.DrawdownCurve[i]*100, 4)}
		} else {
			data[i] = opts.LineData{Value: nil}
		}
	}

	line.SetXAxis(xAxis).AddSeries("Drawdown %", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 1}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: colorDrawdown, Opacity: opts.Float(0.3)}))
	return line
}

// barIndex finds the last curve point stamped ts, skipping the seed at 0.
func barIndex(timestamps []int64, ts int64) int {
	for i := len(timestamps) - 1; i > 0; i-- {
		if timestamps[i] == ts {
			return i
		}
	}
	return -1
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
