package feed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/amirphl/simple-backtest/internal/utils"
	wallex "github.com/wallexchange/wallex-go"
)

// Wallex resolutions are minutes, or D/W for daily and weekly bars.
var wallexResolutions = map[string]string{
	"1m":  "1",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"2h":  "120",
	"4h":  "240",
	"6h":  "360",
	"12h": "720",
	"1d":  "1D",
	"1w":  "1W",
}

type wallexCandlesFunc func(symbol, resolution string, from, to time.Time) ([]*wallex.Candle, error)

type Wallex struct {
	candles  wallexCandlesFunc
	attempts int
	delay    time.Duration
}

func NewWallex(opts Options) *Wallex {
	client := wallex.New(wallex.ClientOptions{APIKey: opts.APIKey})
	return &Wallex{
		candles:  client.Candles,
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
	}
}

func (w *Wallex) Name() string {
	return "wallex"
}

func (w *Wallex) FetchCandles(ctx context.Context, symbol string, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	resolution, ok := wallexResolutions[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}
	normalizedSymbol := NormalizeSymbol(symbol)

	var raw []*wallex.Candle
	err := retry(ctx, w.Name(), w.attempts, w.delay, func() error {
		var err error
		raw, err = w.candles(normalizedSymbol, resolution, start, end)
		if err != nil {
			return fmt.Errorf("fetching candles: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Feed | %s FetchCandles failed: %w", w.Name(), err)
	}

	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	candles := make([]candle.Candle, 0, len(raw))
	for _, wc := range raw {
		if wc == nil {
			continue
		}
		c, err := fromWallex(wc, normalizedSymbol, timeframe)
		if err != nil {
			utils.GetLogger().Printf("Feed | [%s %s] Skipping wallex candle: %v", normalizedSymbol, timeframe, err)
			continue
		}
		if c.Timestamp < startMs || c.Timestamp >= endMs {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func fromWallex(wc *wallex.Candle, symbol, timeframe string) (candle.Candle, error) {
	var values [5]float64
	for i, s := range []wallex.Number{wc.Open, wc.High, wc.Low, wc.Close, wc.Volume} {
		v, err := strconv.ParseFloat(string(s), 64)
		if err != nil {
			return candle.Candle{}, fmt.Errorf("parsing %q: %w", s, err)
		}
		values[i] = v
	}

	ts := wc.Timestamp.UTC()
	if d := tfutils.GetTimeframeDuration(timeframe); d > 0 {
		ts = ts.Truncate(d)
	}
	return candle.Candle{
		Timestamp: ts.UnixMilli(),
		Symbol:    symbol,
		Exchange:  "wallex",
		Timeframe: timeframe,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
