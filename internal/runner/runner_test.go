package runner

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/db"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	utils.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeSource serves a sine wave of hourly bars inside the requested range.
type fakeSource struct {
	err      error
	calls    int
	lastSym  string
	dropEven bool
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchCandles(_ context.Context, symbol, timeframe string, from, to time.Time) ([]candle.Candle, error) {
	f.calls++
	f.lastSym = symbol
	if f.err != nil {
		return nil, f.err
	}
	var out []candle.Candle
	for i, ts := 0, from; ts.Before(to); i, ts = i+1, ts.Add(time.Hour) {
		if f.dropEven && i%2 == 0 && i > 0 {
			continue
		}
		c := 100 + 10*math.Sin(float64(i)/6)
		out = append(out, candle.Candle{
			Timestamp: ts.UnixMilli(),
			Symbol:    symbol,
			Exchange:  "fake",
			Timeframe: timeframe,
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    10,
		})
	}
	// Reversed and duplicated so the cleaner has work to do.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > 0 {
		out = append(out, out[0])
	}
	return out, nil
}

func request() Request {
	return Request{
		Symbol:    "btc-usdt",
		Timeframe: "1h",
		Start:     start,
		End:       start.Add(200 * time.Hour),
		Strategy:  strategy.DefaultConfig(),
		Backtest:  backtest.DefaultConfig(),
	}
}

func TestRunner_Run(t *testing.T) {
	src := &fakeSource{}
	store := db.NewMemory()
	r := New(src, nil, store)

	out, err := r.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", src.lastSym)
	assert.Len(t, out.Bars, 200)
	assert.Equal(t, 1, out.Clean.Duplicates)
	assert.Equal(t, 201, out.Clean.Input)
	assert.Len(t, out.Record.Result.EquityCurve, 201)
	assert.Equal(t, "MA Cross Strategy", out.Record.Strategy)
	assert.Equal(t, float64(5), out.Record.Params["fast_period"])

	saved, err := store.GetRun(context.Background(), out.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Record.ID, saved.ID)
	assert.Equal(t, out.Record.Result.FinalEquity, saved.Result.FinalEquity)
}

func TestRunner_FillsGapsAndAggregates(t *testing.T) {
	src := &fakeSource{dropEven: true}
	r := New(src, nil, nil)

	req := request()
	req.Aggregate = "4h"
	bars, report, err := r.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Positive(t, report.Filled)
	assert.Len(t, bars, 50)
	for _, b := range bars {
		assert.Equal(t, "4h", b.Timeframe)
	}
}

func TestRunner_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		runner  *Runner
		mutate  func(*Request)
		wantErr error
	}{
		{"no source", New(nil, nil, nil), nil, ErrNoSource},
		{"source failure", New(&fakeSource{err: boom}, nil, nil), nil, boom},
		{"empty range", New(&fakeSource{}, nil, nil), func(r *Request) { r.End = r.Start }, nil},
		{"bad timeframe", New(&fakeSource{}, nil, nil), func(r *Request) { r.Timeframe = "7m" }, nil},
		{"bad strategy", New(&fakeSource{}, nil, nil), func(r *Request) { r.Strategy.Name = "nope" }, nil},
		{"bad config", New(&fakeSource{}, nil, nil), func(r *Request) { r.Backtest.InitialCapital = 0 }, nil},
		{"missing symbol", New(&fakeSource{}, nil, nil), func(r *Request) { r.Symbol = "" }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request()
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			_, err := tt.runner.Run(context.Background(), req)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRunner_RunBarsWithoutData(t *testing.T) {
	r := New(nil, nil, nil)
	_, err := r.RunBars(context.Background(), nil, strategy.DefaultConfig(), backtest.DefaultConfig())
	assert.ErrorIs(t, err, backtest.ErrNoData)
}

func TestRunner_RunBarsShortProfitableSpan(t *testing.T) {
	// Two hours of minute bars: flat, then a steady rally.
	bars := make([]candle.Candle, 120)
	price := 100.0
	for i := range bars {
		if i >= 40 {
			price *= 1.02
		}
		bars[i] = candle.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute).UnixMilli(),
			Symbol:    "BTCUSDT",
			Exchange:  "fake",
			Timeframe: "1m",
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    10,
		}
	}

	store := db.NewMemory()
	r := New(nil, nil, store)
	rec, err := r.RunBars(context.Background(), bars, strategy.DefaultConfig(), backtest.DefaultConfig())
	require.NoError(t, err)

	assert.Positive(t, rec.Result.TotalTrades)
	assert.Greater(t, rec.Metrics.CumulativeReturn, 0.5)
	assert.True(t, math.IsInf(rec.Metrics.AnnualizedReturn, 1))

	saved, err := store.GetRun(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, saved.Metrics.AnnualizedReturn)
	assert.Equal(t, 0.0, saved.Metrics.CalmarRatio)
	assert.InDelta(t, rec.Metrics.CumulativeReturn, saved.Metrics.CumulativeReturn, 1e-12)
	assert.Equal(t, rec.Result.FinalEquity, saved.Result.FinalEquity)
}
