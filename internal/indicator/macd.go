package indicator

import "fmt"

const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// MACDResult holds the three MACD series. Histogram[i] pairs with Dea[i] and
// with Dif[i+signal-1].
type MACDResult struct {
	Dif       []float64 `json:"dif"`
	Dea       []float64 `json:"dea"`
	Histogram []float64 `json:"histogram"`
}

// MACD computes DIF = EMA(fast) - EMA(slow), DEA = EMA(DIF, signal) and the
// histogram DIF - DEA. Dea and Histogram are empty while DIF is shorter than
// signal.
func MACD(prices []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || signal <= 0 {
		return MACDResult{}, &InvalidArgumentError{
			Indicator: "MACD",
			Reason:    fmt.Sprintf("periods must be positive, got fast=%d signal=%d", fast, signal),
		}
	}
	if fast > slow {
		return MACDResult{}, &InvalidArgumentError{
			Indicator: "MACD",
			Reason:    fmt.Sprintf("fast period %d must not exceed slow period %d", fast, slow),
		}
	}
	if err := validate(prices, slow, slow, "MACD"); err != nil {
		return MACDResult{}, err
	}

	fastEMA, err := ExponentialMovingAverage(prices, fast)
	if err != nil {
		return MACDResult{}, fmt.Errorf("MACD fast EMA: %w", err)
	}
	slowEMA, err := ExponentialMovingAverage(prices, slow)
	if err != nil {
		return MACDResult{}, fmt.Errorf("MACD slow EMA: %w", err)
	}

	offset := slow - fast
	dif := make([]float64, len(slowEMA))
	for i := range slowEMA {
		dif[i] = fastEMA[i+offset] - slowEMA[i]
	}

	res := MACDResult{Dif: dif, Dea: []float64{}, Histogram: []float64{}}
	if len(dif) < signal {
		return res, nil
	}

	dea, err := ExponentialMovingAverage(dif, signal)
	if err != nil {
		return MACDResult{}, fmt.Errorf("MACD signal EMA: %w", err)
	}
	hist := make([]float64, len(dea))
	for i := range dea {
		hist[i] = dif[i+signal-1] - dea[i]
	}

	res.Dea = dea
	res.Histogram = hist
	return res, nil
}
