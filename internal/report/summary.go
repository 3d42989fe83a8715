package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/utils"
)

// maxSummaryTrades caps the trade log in Summary.
const maxSummaryTrades = 10

// Summary renders a run as a plain text block. params may be nil.
func Summary(result backtest.Result, metrics analysis.Metrics, params map[string]float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Backtest Results (%s) %s %s\n", result.Strategy, result.Symbol, result.Timeframe)
	fmt.Fprintf(&b, "  Trades=%d, Wins=%d, Losses=%d, WinRate=%.2f%%\n",
		result.TotalTrades, result.WinningTrades, result.LosingTrades, result.WinRate()*100)
	fmt.Fprintf(&b, "  Starting Balance=%s, Final Capital=%s, Final Equity=%s, Return=%.2f%%\n",
		fixed(result.InitialCapital, moneyPlaces), fixed(result.FinalCapital, moneyPlaces),
		fixed(result.FinalEquity, moneyPlaces), result.TotalReturn)
	fmt.Fprintf(&b, "  CumulativeReturn=%.2f%%, AnnualizedReturn=%.2f%%\n",
		metrics.CumulativeReturn*100, metrics.AnnualizedReturn*100)
	fmt.Fprintf(&b, "  MaxDrawdown=%.2f%%, Volatility=%.6f, DownsideDeviation=%.6f\n",
		metrics.MaxDrawdown*100, metrics.Volatility, metrics.DownsideDeviation)
	fmt.Fprintf(&b, "  Sharpe=%.4f, Sortino=%.4f, Calmar=%.4f\n",
		metrics.SharpeRatio, metrics.SortinoRatio, metrics.CalmarRatio)
	if factor := analysis.AnnualizationFactor(result.Timeframe); factor > 0 {
		fmt.Fprintf(&b, "  Sharpe (annualized)=%.4f, Sortino (annualized)=%.4f\n",
			metrics.AnnualizedSharpe(factor), metrics.AnnualizedSortino(factor))
	}
	fmt.Fprintf(&b, "  ProfitLossRatio=%.4f, MaxConsecWins=%d, MaxConsecLosses=%d\n",
		metrics.ProfitLossRatio, metrics.MaxConsecutiveWins, metrics.MaxConsecutiveLosses)
	fmt.Fprintf(&b, "  AvgHoldingPeriod=%.2f days, TradeFrequency=%.2f per year\n",
		metrics.AvgHoldingPeriod, metrics.TradeFrequencyPerYear)

	if len(params) > 0 {
		b.WriteString("  Strategy Params:\n")
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s: %g\n", k, params[k])
		}
	}

	if len(result.Trades) > 0 {
		fmt.Fprintf(&b, "Trade Log (last %d trades):\n", min(maxSummaryTrades, len(result.Trades)))
		start := max(0, len(result.Trades)-maxSummaryTrades)
		if start > 0 {
			fmt.Fprintf(&b, "  ... %d earlier trades omitted\n", start)
		}
		for i, t := range result.Trades[start:] {
			fmt.Fprintf(&b, "  Trade %d: %s %s Price=%s Qty=%s PnL=%s at %s\n",
				start+i+1, t.Signal, t.Symbol, fixed(t.Price, 2), fixed(t.Quantity, 6),
				fixed(t.PnL, moneyPlaces), formatTime(t.Timestamp))
		}
	}
	return b.String()
}

// LogSummary writes Summary through the shared logger, one line at a time.
func LogSummary(result backtest.Result, metrics analysis.Metrics, params map[string]float64) {
	for line := range strings.SplitSeq(strings.TrimRight(Summary(result, metrics, params), "\n"), "\n") {
		utils.GetLogger().Println(line)
	}
}
