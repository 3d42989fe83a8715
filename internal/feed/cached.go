package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/amirphl/simple-backtest/internal/utils"
)

// CandleStore is the part of db.Storage the cache needs.
type CandleStore interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, start, end int64) ([]candle.Candle, error)
}

// Cached serves candles from a store and only goes to the upstream source
// when the stored range is incomplete. Fetched candles are written back.
type Cached struct {
	upstream Source
	store    CandleStore
}

func NewCached(upstream Source, store CandleStore) *Cached {
	return &Cached{upstream: upstream, store: store}
}

func (c *Cached) Name() string {
	return c.upstream.Name()
}

func (c *Cached) FetchCandles(ctx context.Context, symbol string, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	interval := tfutils.TimeframeMillis(timeframe)
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}
	normalizedSymbol := NormalizeSymbol(symbol)
	startMs, endMs := start.UnixMilli(), end.UnixMilli()

	stored, err := c.store.GetCandles(ctx, normalizedSymbol, timeframe, startMs, endMs)
	if err != nil {
		utils.GetLogger().Printf("Feed | [%s %s] Reading cached candles failed: %v", normalizedSymbol, timeframe, err)
	} else if expected := (endMs - startMs) / interval; expected > 0 && int64(len(stored)) >= expected {
		return stored, nil
	}

	fetched, err := c.upstream.FetchCandles(ctx, normalizedSymbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveCandles(ctx, fetched); err != nil {
		utils.GetLogger().Printf("Feed | [%s %s] Caching %d candles failed: %v", normalizedSymbol, timeframe, len(fetched), err)
	}
	return fetched, nil
}
