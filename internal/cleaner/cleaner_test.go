package cleaner

import (
	"io"
	"os"
	"testing"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	base   = int64(1700000400000)
	minute = int64(60_000)
)

func TestMain(m *testing.M) {
	utils.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func bar(i int64, close, volume float64) candle.Candle {
	return candle.Candle{
		Timestamp: base + i*minute,
		Symbol:    "BTCUSDT",
		Exchange:  "binance",
		Timeframe: "1m",
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    volume,
	}
}

func TestClean_SortAndDeduplicate(t *testing.T) {
	first := bar(1, 101, 5)
	dup := bar(1, 999, 5)
	input := []candle.Candle{bar(2, 102, 5), first, bar(0, 100, 5), dup}

	opts := DefaultOptions()
	opts.FillMissing = false
	out, report, err := New(opts).Clean(input, "1m")
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, []int64{base, base + minute, base + 2*minute},
		[]int64{out[0].Timestamp, out[1].Timestamp, out[2].Timestamp})
	assert.Equal(t, 101.0, out[1].Close, "first occurrence wins")
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 4, report.Input)
	assert.Equal(t, 3, report.Output)

	assert.Equal(t, 999.0, input[3].Close, "input is untouched")
	assert.Equal(t, candle.QualityGood, out[0].Quality)
}

func TestClean_DropsBadBars(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *candle.Candle)
	}{
		{"zero open", func(c *candle.Candle) { c.Open = 0 }},
		{"negative close", func(c *candle.Candle) { c.Close = -1 }},
		{"high below low", func(c *candle.Candle) { c.High, c.Low = 90, 110 }},
		{"close above high", func(c *candle.Candle) { c.Close = c.High + 1 }},
		{"open below low", func(c *candle.Candle) { c.Open = c.Low - 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := bar(1, 100, 5)
			tt.mutate(&broken)

			opts := DefaultOptions()
			opts.FillMissing = false
			out, report, err := New(opts).Clean([]candle.Candle{bar(0, 100, 5), broken, bar(2, 100, 5)}, "1m")
			require.NoError(t, err)
			assert.Len(t, out, 2)
			assert.Equal(t, 1, report.Bad)
		})
	}
}

func TestClean_PriceJump(t *testing.T) {
	opts := DefaultOptions()
	opts.FillMissing = false

	out, report, err := New(opts).Clean([]candle.Candle{
		bar(0, 100, 5),
		bar(1, 151, 5), // +51%
		bar(2, 150, 5),
		bar(3, 74, 5), // -50.67%
		bar(4, 111, 5), // +50% exactly is not a jump
	}, "1m")
	require.NoError(t, err)

	got := make([]candle.Quality, len(out))
	for i, c := range out {
		got[i] = c.Quality
	}
	assert.Equal(t, []candle.Quality{
		candle.QualityGood, candle.QualitySuspicious, candle.QualityGood,
		candle.QualitySuspicious, candle.QualityGood,
	}, got)
	assert.Equal(t, 2, report.Suspicious)
}

func TestClean_VolumeAnomaly(t *testing.T) {
	opts := DefaultOptions()
	opts.FillMissing = false

	var input []candle.Candle
	for i := int64(0); i < 9; i++ {
		input = append(input, bar(i, 100, 1))
	}
	// Tenth bar: average of ten including itself is (9+200)/10 = 20.9, 200 > 209 is false.
	input = append(input, bar(9, 100, 200))
	// Eleventh: average (9+200+1000)/11 ~ 109.9, 1000 > 1099 is false.
	input = append(input, bar(10, 100, 1000))
	for i := int64(11); i < 40; i++ {
		input = append(input, bar(i, 100, 1))
	}
	input = append(input, bar(40, 100, 5000))

	out, report, err := New(opts).Clean(input, "1m")
	require.NoError(t, err)
	require.Len(t, out, 41)

	assert.Equal(t, candle.QualityGood, out[9].Quality)
	assert.Equal(t, candle.QualityGood, out[10].Quality)
	// (38 + 200 + 1000 + 5000)/41 ~ 152.1, 5000 > 1521.
	assert.Equal(t, candle.QualitySuspicious, out[40].Quality)
	assert.Equal(t, 1, report.Suspicious)
}

func TestClean_VolumeNeedsMinimumSamples(t *testing.T) {
	opts := DefaultOptions()
	opts.FillMissing = false
	out, _, err := New(opts).Clean([]candle.Candle{bar(0, 100, 1), bar(1, 100, 1000)}, "1m")
	require.NoError(t, err)
	assert.Equal(t, candle.QualityGood, out[1].Quality)
}

func TestClean_FillMissing(t *testing.T) {
	out, report, err := New(DefaultOptions()).Clean([]candle.Candle{
		bar(0, 100, 5),
		bar(3, 103, 5),
		bar(4, 104, 5),
	}, "1m")
	require.NoError(t, err)

	require.Len(t, out, 5)
	assert.Equal(t, 2, report.Filled)
	assert.Equal(t, 5, report.Output)
	for i, c := range out {
		assert.Equal(t, base+int64(i)*minute, c.Timestamp)
	}

	synthetic := out[1]
	assert.Equal(t, candle.QualityMissing, synthetic.Quality)
	assert.Equal(t, 100.0, synthetic.Open)
	assert.Equal(t, 100.0, synthetic.High)
	assert.Equal(t, 100.0, synthetic.Low)
	assert.Equal(t, 100.0, synthetic.Close)
	assert.Equal(t, 0.0, synthetic.Volume)
	assert.Equal(t, "BTCUSDT", synthetic.Symbol)
	assert.Equal(t, "binance", synthetic.Exchange)
	assert.Equal(t, "1m", synthetic.Timeframe)
	assert.Equal(t, candle.QualityMissing, out[2].Quality)
	assert.Equal(t, candle.QualityGood, out[3].Quality)
}

func TestClean_Errors(t *testing.T) {
	_, _, err := New(DefaultOptions()).Clean([]candle.Candle{bar(0, 1, 1)}, "7x")
	assert.Error(t, err)

	out, report, err := New(DefaultOptions()).Clean(nil, "7x")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, Report{}, report)
}

func TestFillMissing_Unaligned(t *testing.T) {
	a := bar(0, 100, 1)
	b := bar(2, 100, 1)
	b.Timestamp += 30_000

	out, filled, err := FillMissing([]candle.Candle{a, b}, "1m")
	require.NoError(t, err)
	assert.Equal(t, 2, filled)
	require.Len(t, out, 4)
	assert.Equal(t, base+2*minute, out[2].Timestamp)
	assert.Equal(t, b.Timestamp, out[3].Timestamp)
}

func TestTrim(t *testing.T) {
	input := []candle.Candle{bar(0, 1, 1), bar(1, 1, 1), bar(2, 1, 1), bar(3, 1, 1)}
	out := Trim(input, base+minute, base+3*minute)
	require.Len(t, out, 2)
	assert.Equal(t, base+minute, out[0].Timestamp)
	assert.Equal(t, base+2*minute, out[1].Timestamp)
}

func TestDeduplicate_KeysOnSymbolAndExchange(t *testing.T) {
	a := bar(0, 1, 1)
	b := a
	b.Exchange = "wallex"
	c := a
	c.Symbol = "ETHUSDT"
	assert.Len(t, Deduplicate([]candle.Candle{a, b, c, a}), 3)
}
