package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/amirphl/simple-backtest/internal/utils"
)

// Binance returns at most this many klines per request.
const binanceMaxLimit = 1000

type Binance struct {
	client   *binance.Client
	attempts int
	delay    time.Duration
}

func NewBinance(opts Options) *Binance {
	client := binance.NewClient(opts.APIKey, opts.APISecret)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	return &Binance{
		client:   client,
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
	}
}

func (b *Binance) Name() string {
	return "binance"
}

// FetchCandles pages through klines binanceMaxLimit at a time. Klines that
// have not closed by end are left out.
func (b *Binance) FetchCandles(ctx context.Context, symbol string, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	interval := tfutils.TimeframeMillis(timeframe)
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}
	normalizedSymbol := NormalizeSymbol(symbol)
	if normalizedSymbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	var out []candle.Candle
	for cursor := startMs; cursor < endMs; {
		var page []*binance.Kline
		err := retry(ctx, b.Name(), b.attempts, b.delay, func() error {
			var err error
			page, err = b.client.NewKlinesService().
				Symbol(normalizedSymbol).
				Interval(timeframe).
				StartTime(cursor).
				EndTime(endMs - 1).
				Limit(binanceMaxLimit).
				Do(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("Feed | %s FetchCandles failed: %w", b.Name(), err)
		}
		if len(page) == 0 {
			break
		}

		next := cursor
		for _, kl := range page {
			if kl == nil {
				continue
			}
			next = max(next, kl.OpenTime+interval)
			if kl.OpenTime < startMs || kl.OpenTime+interval > endMs {
				continue
			}
			c, err := fromKline(kl, normalizedSymbol, timeframe)
			if err != nil {
				utils.GetLogger().Printf("Feed | [%s %s] Skipping binance kline: %v", normalizedSymbol, timeframe, err)
				continue
			}
			out = append(out, c)
		}

		if len(page) < binanceMaxLimit || next <= cursor {
			break
		}
		cursor = next
	}

	utils.GetLogger().Printf("Feed | [%s %s] Fetched %d candles from %s", normalizedSymbol, timeframe, len(out), b.Name())
	return out, nil
}

func fromKline(kl *binance.Kline, symbol, timeframe string) (candle.Candle, error) {
	fields := []string{kl.Open, kl.High, kl.Low, kl.Close, kl.Volume, kl.QuoteAssetVolume}
	values := make([]float64, len(fields))
	for i, s := range fields {
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return candle.Candle{}, fmt.Errorf("parsing %q: %w", s, err)
		}
		values[i] = v
	}
	return candle.Candle{
		Timestamp:   kl.OpenTime,
		Symbol:      symbol,
		Exchange:    "binance",
		Timeframe:   timeframe,
		Open:        values[0],
		High:        values[1],
		Low:         values[2],
		Close:       values[3],
		Volume:      values[4],
		QuoteVolume: values[5],
		TradeCount:  kl.TradeNum,
	}, nil
}
