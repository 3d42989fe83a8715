// Package analysis turns an equity curve and a trade log into performance statistics.
package analysis

import (
	"encoding/json"
	"math"

	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
	"github.com/amirphl/simple-backtest/internal/tfutils"
)

const (
	epsilon    = 1e-8
	msPerDay   = 86_400_000.0
	daysInYear = 365.25
	msPerYear  = daysInYear * msPerDay
)

// Metrics are plain values. Ratios and returns are fractions, not percent.
type Metrics struct {
	AnnualizedReturn      float64 `json:"annualized_return"`
	CumulativeReturn      float64 `json:"cumulative_return"`
	MaxDrawdown           float64 `json:"max_drawdown"`
	SharpeRatio           float64 `json:"sharpe_ratio"`
	SortinoRatio          float64 `json:"sortino_ratio"`
	CalmarRatio           float64 `json:"calmar_ratio"`
	Volatility            float64 `json:"volatility"`
	DownsideDeviation     float64 `json:"downside_deviation"`
	ProfitLossRatio       float64 `json:"profit_loss_ratio"`
	MaxConsecutiveWins    int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses  int     `json:"max_consecutive_losses"`
	AvgHoldingPeriod      float64 `json:"avg_holding_period"` // days
	TradeFrequencyPerYear float64 `json:"trade_frequency_per_year"`

	EquityCurve   []float64 `json:"equity_curve"`
	DrawdownCurve []float64 `json:"drawdown_curve"`
}

// Analyze computes Metrics for one run. The equity curve and timestamps must
// be index aligned; otherwise, or when either is empty, the zero Metrics is
// returned. Analyze never mutates its inputs.
func Analyze(equity []float64, timestamps []int64, trades []strategy.Trade, initialCapital float64) Metrics {
	if len(equity) == 0 || len(timestamps) == 0 || len(equity) != len(timestamps) {
		return Metrics{}
	}

	m := Metrics{
		EquityCurve: append([]float64(nil), equity...),
	}

	returns := periodReturns(equity)
	finalCapital := equity[len(equity)-1]
	years := float64(timestamps[len(timestamps)-1]-timestamps[0]) / msPerYear

	m.CumulativeReturn = cumulativeReturn(initialCapital, finalCapital)
	m.AnnualizedReturn = annualizedReturn(initialCapital, finalCapital, years)

	m.DrawdownCurve = drawdownCurve(equity)
	for _, dd := range m.DrawdownCurve {
		m.MaxDrawdown = math.Max(m.MaxDrawdown, dd)
	}

	m.Volatility = volatility(returns)
	m.DownsideDeviation = downsideDeviation(returns)

	if len(returns) >= 2 && m.Volatility > 0 {
		m.SharpeRatio = mean(returns) / m.Volatility
	}
	if m.DownsideDeviation > 0 {
		m.SortinoRatio = mean(returns) / m.DownsideDeviation
	}
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	}

	m.ProfitLossRatio = profitLossRatio(trades)
	m.MaxConsecutiveWins, m.MaxConsecutiveLosses = consecutiveStreaks(trades)
	m.AvgHoldingPeriod = avgHoldingPeriod(trades)
	m.TradeFrequencyPerYear = tradeFrequency(trades, years)

	return m
}

// MarshalJSON writes null for an annualized return or Calmar ratio that is
// not finite. Short profitable runs push math.Pow past the float64 range.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	return json.Marshal(struct {
		plain
		AnnualizedReturn *float64 `json:"annualized_return"`
		CalmarRatio      *float64 `json:"calmar_ratio"`
	}{
		plain:            plain(m),
		AnnualizedReturn: finiteOrNil(m.AnnualizedReturn),
		CalmarRatio:      finiteOrNil(m.CalmarRatio),
	})
}

func finiteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// AnnualizedSharpe scales the per-bar Sharpe ratio by sqrt(factor), where
// factor is the number of bars in a year (see AnnualizationFactor).
func (m Metrics) AnnualizedSharpe(factor float64) float64 {
	if factor <= 0 {
		return 0
	}
	return m.SharpeRatio * math.Sqrt(factor)
}

// AnnualizedSortino is AnnualizedSharpe for the Sortino ratio.
func (m Metrics) AnnualizedSortino(factor float64) float64 {
	if factor <= 0 {
		return 0
	}
	return m.SortinoRatio * math.Sqrt(factor)
}

// AnnualizationFactor is the number of bars of the given timeframe in a year,
// or 0 for an unknown timeframe.
func AnnualizationFactor(timeframe string) float64 {
	return tfutils.BarsPerYear(timeframe)
}

func periodReturns(equity []float64) []float64 {
	returns := make([]float64, 0, len(equity))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	return returns
}

func cumulativeReturn(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial
}

func annualizedReturn(initial, final, years float64) float64 {
	if initial <= 0 || final <= 0 || years <= 0 {
		return 0
	}
	return math.Pow(final/initial, 1/years) - 1
}

// drawdownCurve measures each point against the running peak. While the
// peak is not positive the drawdown is reported as 0.
func drawdownCurve(equity []float64) []float64 {
	curve := make([]float64, len(equity))
	peak := equity[0]
	for i, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			curve[i] = (peak - e) / peak
		}
	}
	return curve
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// volatility is the population standard deviation.
func volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mu := mean(returns)
	var sq float64
	for _, r := range returns {
		sq += (r - mu) * (r - mu)
	}
	return math.Sqrt(sq / float64(len(returns)))
}

// downsideDeviation is the root mean square of the negative returns about zero.
func downsideDeviation(returns []float64) float64 {
	var sq float64
	var n int
	for _, r := range returns {
		if r < 0 {
			sq += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sq / float64(n))
}

func profitLossRatio(trades []strategy.Trade) float64 {
	var winSum, lossSum float64
	var wins, losses int
	for _, t := range trades {
		switch {
		case t.PnL > epsilon:
			winSum += t.PnL
			wins++
		case t.PnL < -epsilon:
			lossSum += -t.PnL
			losses++
		}
	}
	if wins == 0 || losses == 0 {
		return 0
	}
	return (winSum / float64(wins)) / (lossSum / float64(losses))
}

// consecutiveStreaks ignores trades whose PnL is within epsilon of zero, so
// BUY legs neither extend nor break a streak.
func consecutiveStreaks(trades []strategy.Trade) (maxWins, maxLosses int) {
	var wins, losses int
	for _, t := range trades {
		switch {
		case t.PnL > epsilon:
			wins++
			losses = 0
		case t.PnL < -epsilon:
			losses++
			wins = 0
		default:
			continue
		}
		maxWins = max(maxWins, wins)
		maxLosses = max(maxLosses, losses)
	}
	return maxWins, maxLosses
}

// avgHoldingPeriod pairs each BUY with the next unused SELL of the same
// symbol in the log. A pair whose SELL is not strictly later is consumed but
// not counted. Unmatched BUYs are ignored.
func avgHoldingPeriod(trades []strategy.Trade) float64 {
	used := make([]bool, len(trades))
	var total float64
	var pairs int
	for i, buy := range trades {
		if buy.Signal != signal.Buy {
			continue
		}
		for j := i + 1; j < len(trades); j++ {
			sell := trades[j]
			if used[j] || sell.Signal != signal.Sell || sell.Symbol != buy.Symbol {
				continue
			}
			used[j] = true
			if gap := sell.Timestamp - buy.Timestamp; gap > 0 {
				total += float64(gap) / msPerDay
				pairs++
			}
			break
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}

func tradeFrequency(trades []strategy.Trade, years float64) float64 {
	if years < epsilon {
		return 0
	}
	var sells int
	for _, t := range trades {
		if t.Signal == signal.Sell {
			sells++
		}
	}
	return float64(sells) / years
}
