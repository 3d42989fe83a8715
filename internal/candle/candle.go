// Package candle
package candle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirphl/simple-backtest/internal/tfutils"
)

// Quality marks how much a bar can be trusted after cleaning.
type Quality int8

const (
	QualityGood Quality = iota
	QualitySuspicious
	QualityBad
	QualityMissing
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "GOOD"
	case QualitySuspicious:
		return "SUSPICIOUS"
	case QualityBad:
		return "BAD"
	case QualityMissing:
		return "MISSING"
	default:
		return "UNKNOWN"
	}
}

// Candle is one OHLCV bar. Timestamp is the bar open time in Unix milliseconds.
type Candle struct {
	Timestamp   int64   `json:"timestamp"`
	Symbol      string  `json:"symbol"`
	Exchange    string  `json:"exchange"`
	Timeframe   string  `json:"timeframe"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	QuoteVolume float64 `json:"quote_volume"`
	TradeCount  int64   `json:"trade_count"`
	Quality     Quality `json:"quality"`
}

// Time returns the bar open time in UTC.
func (c *Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp <= 0 {
		return errors.New("candle timestamp must be positive")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.Timeframe == "" {
		return errors.New("candle timeframe cannot be empty")
	}
	return nil
}

// Aggregate folds candles of one symbol and timeframe into buckets of a larger
// timeframe. Buckets are aligned to the Unix epoch. The worst quality of the
// members is carried onto the aggregated bar.
func Aggregate(candles []Candle, timeframe string) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}

	target := tfutils.TimeframeMillis(timeframe)
	if target <= 0 {
		return nil, fmt.Errorf("invalid timeframe %s: %w", timeframe, tfutils.ErrUnsupportedTimeframe)
	}
	source := tfutils.TimeframeMillis(candles[0].Timeframe)
	if source <= 0 {
		return nil, fmt.Errorf("invalid timeframe %s: %w", candles[0].Timeframe, tfutils.ErrUnsupportedTimeframe)
	}
	if source >= target {
		return nil, fmt.Errorf("source timeframe %s must be smaller than target timeframe %s", candles[0].Timeframe, timeframe)
	}

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	first := sorted[0]
	var result []Candle
	var cur *Candle
	for i, c := range sorted {
		if c.Symbol != first.Symbol {
			return nil, fmt.Errorf("candle at index %d has different symbol: %s, expected: %s", i, c.Symbol, first.Symbol)
		}
		if c.Timeframe != first.Timeframe {
			return nil, fmt.Errorf("candle at index %d has different timeframe: %s, expected: %s", i, c.Timeframe, first.Timeframe)
		}

		bucket := c.Timestamp - c.Timestamp%target
		if cur == nil || cur.Timestamp != bucket {
			result = append(result, Candle{
				Timestamp: bucket,
				Symbol:    c.Symbol,
				Exchange:  c.Exchange,
				Timeframe: timeframe,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Quality:   c.Quality,
			})
			cur = &result[len(result)-1]
		}

		cur.High = max(cur.High, c.High)
		cur.Low = min(cur.Low, c.Low)
		cur.Close = c.Close
		cur.Volume += c.Volume
		cur.QuoteVolume += c.QuoteVolume
		cur.TradeCount += c.TradeCount
		if c.Quality > cur.Quality {
			cur.Quality = c.Quality
		}
	}

	return result, nil
}
