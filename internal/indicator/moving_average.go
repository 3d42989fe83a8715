package indicator

// mean is a running mean, exact when every value is identical.
func mean(values []float64) float64 {
	var m float64
	for i, v := range values {
		m += (v - m) / float64(i+1)
	}
	return m
}

// MovingAverage returns the simple moving average of prices. out[0] is the
// mean of prices[0:period].
func MovingAverage(prices []float64, period int) ([]float64, error) {
	if err := validate(prices, period, period, "MA"); err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(prices)-period+1)
	for end := period; end <= len(prices); end++ {
		out = append(out, mean(prices[end-period:end]))
	}
	return out, nil
}

// ExponentialMovingAverage seeds with the simple average of the first period
// values and smooths with alpha = 2/(period+1).
func ExponentialMovingAverage(prices []float64, period int) ([]float64, error) {
	if err := validate(prices, period, period, "EMA"); err != nil {
		return nil, err
	}

	alpha := 2.0 / float64(period+1)
	out := make([]float64, 0, len(prices)-period+1)

	ema := mean(prices[:period])
	out = append(out, ema)

	for i := period; i < len(prices); i++ {
		ema = alpha*prices[i] + (1-alpha)*ema
		out = append(out, ema)
	}
	return out, nil
}
