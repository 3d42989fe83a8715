package indicator

import "github.com/amirphl/simple-backtest/internal/candle"

func extract(candles []candle.Candle, field func(c *candle.Candle) float64) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = field(&candles[i])
	}
	return out
}

func ClosePrices(candles []candle.Candle) []float64 {
	return extract(candles, func(c *candle.Candle) float64 { return c.Close })
}

func OpenPrices(candles []candle.Candle) []float64 {
	return extract(candles, func(c *candle.Candle) float64 { return c.Open })
}

func HighPrices(candles []candle.Candle) []float64 {
	return extract(candles, func(c *candle.Candle) float64 { return c.High })
}

func LowPrices(candles []candle.Candle) []float64 {
	return extract(candles, func(c *candle.Candle) float64 { return c.Low })
}

func Volumes(candles []candle.Candle) []float64 {
	return extract(candles, func(c *candle.Candle) float64 { return c.Volume })
}

// MovingAverageFromCandles is MovingAverage over closing prices.
func MovingAverageFromCandles(candles []candle.Candle, period int) ([]float64, error) {
	return MovingAverage(ClosePrices(candles), period)
}
