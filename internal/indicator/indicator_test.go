package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertSeries(t *testing.T, expected, actual []float64, delta float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], delta, "index %d", i)
	}
}

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
		wantErr  bool
	}{
		{
			name:     "Rising prices",
			prices:   []float64{10, 12, 14, 16, 18},
			period:   3,
			expected: []float64{12, 14, 16},
		},
		{
			name:     "Period equals length",
			prices:   []float64{1, 2, 3, 4},
			period:   4,
			expected: []float64{2.5},
		},
		{
			name:     "Period one",
			prices:   []float64{3, 1, 4},
			period:   1,
			expected: []float64{3, 1, 4},
		},
		{name: "Zero period", prices: []float64{1, 2}, period: 0, wantErr: true},
		{name: "Negative period", prices: []float64{1, 2}, period: -3, wantErr: true},
		{name: "Too short", prices: []float64{1, 2}, period: 3, wantErr: true},
		{name: "Empty", prices: nil, period: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MovingAverage(tt.prices, tt.period)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assertSeries(t, tt.expected, result, 1e-12)
		})
	}
}

func TestMovingAverage_ConstantInput(t *testing.T) {
	for _, p := range []float64{0.1, 1.0 / 3.0, 42, 12345.6789} {
		prices := make([]float64, 50)
		for i := range prices {
			prices[i] = p
		}
		for _, period := range []int{1, 3, 7, 50} {
			result, err := MovingAverage(prices, period)
			require.NoError(t, err)
			require.Len(t, result, len(prices)-period+1)
			for _, v := range result {
				assert.Equal(t, p, v)
			}
		}
	}
}

func TestExponentialMovingAverage(t *testing.T) {
	t.Run("Seeded by simple average", func(t *testing.T) {
		result, err := ExponentialMovingAverage([]float64{1, 2, 3, 4, 5}, 3)
		require.NoError(t, err)
		assertSeries(t, []float64{2, 3, 4}, result, 1e-12)
	})

	t.Run("Period one returns input", func(t *testing.T) {
		prices := []float64{5, 7.25, 1, 9, 3.5}
		result, err := ExponentialMovingAverage(prices, 1)
		require.NoError(t, err)
		assert.Equal(t, prices, result)
	})

	t.Run("Shorter period converges faster", func(t *testing.T) {
		prices := make([]float64, 0, 40)
		for i := 0; i < 20; i++ {
			prices = append(prices, 100)
		}
		for i := 0; i < 20; i++ {
			prices = append(prices, 200)
		}
		fast, err := ExponentialMovingAverage(prices, 3)
		require.NoError(t, err)
		slow, err := ExponentialMovingAverage(prices, 10)
		require.NoError(t, err)
		assert.Less(t, 200-fast[len(fast)-1], 200-slow[len(slow)-1])
	})

	t.Run("Matches talib", func(t *testing.T) {
		prices := samplePrices()
		for _, period := range []int{2, 5, 12, 26} {
			result, err := ExponentialMovingAverage(prices, period)
			require.NoError(t, err)
			reference := talib.Ema(prices, period)
			assertSeries(t, reference[period-1:], result, 1e-9)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ExponentialMovingAverage([]float64{1}, 2)
		var argErr *InvalidArgumentError
		require.ErrorAs(t, err, &argErr)
		assert.Equal(t, "EMA", argErr.Indicator)
	})
}

func TestMACD(t *testing.T) {
	prices := []float64{10, 11, 12, 11, 13, 14, 13, 15, 16, 15}

	t.Run("Aligned series", func(t *testing.T) {
		result, err := MACD(prices, 2, 4, 3)
		require.NoError(t, err)

		assertSeries(t, []float64{
			0.16666666666666785, 0.5888888888888886, 0.7829629629629622, 0.3463209876543196,
			0.6999736625514412, 0.8507112208504797, 0.38733574028349516,
		}, result.Dif, 1e-9)
		assertSeries(t, []float64{
			0.5128395061728396, 0.4295802469135796, 0.5647769547325104, 0.7077440877914951, 0.5475399140374951,
		}, result.Dea, 1e-9)
		assertSeries(t, []float64{
			0.2701234567901226, -0.08325925925925998, 0.13519670781893078, 0.14296713305898456, -0.16020417375399998,
		}, result.Histogram, 1e-9)
	})

	t.Run("Length invariants with defaults", func(t *testing.T) {
		data := samplePrices()
		result, err := MACD(data, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
		require.NoError(t, err)
		assert.Len(t, result.Dif, len(data)-DefaultMACDSlow+1)
		assert.Equal(t, len(result.Histogram), len(result.Dea))
		assert.LessOrEqual(t, len(result.Dea), len(result.Dif))
		for i := range result.Histogram {
			assert.InDelta(t, result.Dif[i+DefaultMACDSignal-1]-result.Dea[i], result.Histogram[i], 1e-12)
		}
	})

	t.Run("DIF shorter than signal", func(t *testing.T) {
		result, err := MACD(prices[:5], 2, 4, 3)
		require.NoError(t, err)
		assert.Len(t, result.Dif, 2)
		assert.Empty(t, result.Dea)
		assert.Empty(t, result.Histogram)
	})

	t.Run("Not enough data", func(t *testing.T) {
		_, err := MACD(prices, 12, 26, 9)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("Fast exceeds slow", func(t *testing.T) {
		_, err := MACD(prices, 5, 3, 2)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
		wantErr  bool
	}{
		{
			name:     "Up then down",
			prices:   []float64{1, 2, 3, 2, 1},
			period:   2,
			expected: []float64{100, 50, 25},
		},
		{
			name:     "All increasing prices",
			prices:   []float64{10, 11, 12, 13, 14, 15},
			period:   3,
			expected: []float64{100, 100, 100},
		},
		{
			name:     "All decreasing prices",
			prices:   []float64{20, 19, 18, 17, 16},
			period:   3,
			expected: []float64{0, 0},
		},
		{
			name:     "Flat prices",
			prices:   []float64{10, 10, 10, 10},
			period:   2,
			expected: []float64{100, 100},
		},
		{name: "Exactly period values", prices: []float64{1, 2, 3}, period: 3, wantErr: true},
		{name: "Zero period", prices: []float64{1, 2, 3}, period: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := RSI(tt.prices, tt.period)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assertSeries(t, tt.expected, result, 1e-9)
		})
	}

	t.Run("Matches talib", func(t *testing.T) {
		prices := samplePrices()
		result, err := RSI(prices, DefaultRSIPeriod)
		require.NoError(t, err)
		reference := talib.Rsi(prices, DefaultRSIPeriod)
		assertSeries(t, reference[DefaultRSIPeriod:], result, 1e-6)
	})
}

func TestExtractors(t *testing.T) {
	candles := []candle.Candle{
		{Open: 1, High: 4, Low: 0.5, Close: 2, Volume: 10},
		{Open: 2, High: 5, Low: 1.5, Close: 3, Volume: 20},
	}
	assert.Equal(t, []float64{2, 3}, ClosePrices(candles))
	assert.Equal(t, []float64{1, 2}, OpenPrices(candles))
	assert.Equal(t, []float64{4, 5}, HighPrices(candles))
	assert.Equal(t, []float64{0.5, 1.5}, LowPrices(candles))
	assert.Equal(t, []float64{10, 20}, Volumes(candles))

	ma, err := MovingAverageFromCandles(candles, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, ma)
}

func TestIndicatorInterface(t *testing.T) {
	prices := []float64{10, 12, 14, 16, 18}

	ind, err := ByName("sma")
	require.NoError(t, err)
	assert.Equal(t, "MA", ind.Name())
	out, err := ind.Calculate(prices, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 14, 16}, out)

	rsi, err := ByName("rsi")
	require.NoError(t, err)
	_, err = rsi.Calculate(prices)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	macd, err := ByName("macd")
	require.NoError(t, err)
	hist, err := macd.Calculate([]float64{10, 11, 12, 11, 13, 14, 13, 15, 16, 15}, 2, 4, 3)
	require.NoError(t, err)
	assert.Len(t, hist, 5)

	_, err = ByName("bollinger")
	assert.Error(t, err)
}

// samplePrices is a deterministic, noisy series long enough for default periods.
func samplePrices() []float64 {
	prices := make([]float64, 120)
	for i := range prices {
		x := float64(i)
		prices[i] = 100 + 10*math.Sin(x/7) + 3*math.Cos(x/2.3) + 0.05*x
	}
	return prices
}
