// Package feed downloads historical candles from exchanges.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/amirphl/simple-backtest/internal/utils"
)

var (
	ErrUnsupportedTimeframe = tfutils.ErrUnsupportedTimeframe
	ErrUnknownSource        = errors.New("unknown candle source")
	ErrRetriesExhausted     = errors.New("all retry attempts failed")
)

// Source fetches closed candles with start <= Timestamp < end, sorted by time.
type Source interface {
	Name() string
	FetchCandles(ctx context.Context, symbol string, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

// FetchLatest fetches roughly the last count candles ending now.
func FetchLatest(ctx context.Context, src Source, symbol, timeframe string, count int) ([]candle.Candle, error) {
	duration := tfutils.GetTimeframeDuration(timeframe)
	if duration == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimeframe, timeframe)
	}
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}

	end := time.Now().UTC().Truncate(duration)
	start := end.Add(-duration * time.Duration(count))
	return src.FetchCandles(ctx, symbol, timeframe, start, end)
}

type Options struct {
	Name          string        `yaml:"name" json:"name"`
	APIKey        string        `yaml:"-" json:"-"`
	APISecret     string        `yaml:"-" json:"-"`
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

func DefaultOptions() Options {
	return Options{
		Name:          "binance",
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// New builds the named exchange source.
func New(opts Options) (Source, error) {
	switch strings.ToLower(opts.Name) {
	case "binance", "":
		return NewBinance(opts), nil
	case "wallex":
		return NewWallex(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, opts.Name)
	}
}

// NormalizeSymbol turns "btc-usdt" or "BTC/USDT" into "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "/", "")
}

// retry calls fn until it succeeds, attempts run out or ctx is done, doubling
// the delay after each failure up to maxBackoff.
func retry(ctx context.Context, name string, attempts int, delay time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	backoff := delay
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if i == attempts {
			break
		}
		utils.GetLogger().Printf("Feed | %s Retry attempt %d/%d failed: %v. Backing off for %v", name, i, attempts, lastErr, backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

const maxBackoff = 5 * time.Minute
