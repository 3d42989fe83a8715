// Package cleaner prepares raw candles for a backtest: it orders them, drops
// duplicates and broken bars, flags anomalies and optionally fills gaps.
package cleaner

import (
	"fmt"
	"sort"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/amirphl/simple-backtest/internal/utils"
)

type Options struct {
	// A close that moves more than this fraction from the previous close is suspicious.
	PriceJumpThreshold float64 `yaml:"price_jump_threshold" json:"price_jump_threshold"`
	// Volume above VolumeAnomalyFactor times the rolling average is suspicious.
	VolumeAnomalyFactor float64 `yaml:"volume_anomaly_factor" json:"volume_anomaly_factor"`
	VolumeWindow        int     `yaml:"volume_window" json:"volume_window"`
	VolumeMinSamples    int     `yaml:"volume_min_samples" json:"volume_min_samples"`
	FillMissing         bool    `yaml:"fill_missing" json:"fill_missing"`
}

func DefaultOptions() Options {
	return Options{
		PriceJumpThreshold:  0.5,
		VolumeAnomalyFactor: 10,
		VolumeWindow:        100,
		VolumeMinSamples:    10,
		FillMissing:         true,
	}
}

// Report counts what Clean did to a batch.
type Report struct {
	Input      int `json:"input"`
	Duplicates int `json:"duplicates"`
	Bad        int `json:"bad"`
	Suspicious int `json:"suspicious"`
	Filled     int `json:"filled"`
	Output     int `json:"output"`
}

func (r Report) String() string {
	return fmt.Sprintf("input=%d duplicates=%d bad=%d suspicious=%d filled=%d output=%d",
		r.Input, r.Duplicates, r.Bad, r.Suspicious, r.Filled, r.Output)
}

type Cleaner struct {
	opts Options
}

func New(opts Options) *Cleaner {
	if opts.VolumeWindow <= 0 {
		opts.VolumeWindow = DefaultOptions().VolumeWindow
	}
	return &Cleaner{opts: opts}
}

// Clean never modifies its input. Bars with non-positive prices or broken
// OHLC relations are dropped; price jumps and volume spikes are kept and
// marked QualitySuspicious. With FillMissing, gaps are forward filled with
// QualityMissing bars.
func (c *Cleaner) Clean(candles []candle.Candle, timeframe string) ([]candle.Candle, Report, error) {
	report := Report{Input: len(candles)}
	if len(candles) == 0 {
		return []candle.Candle{}, report, nil
	}
	if c.opts.FillMissing && !tfutils.IsValidTimeframe(timeframe) {
		return nil, report, fmt.Errorf("Cleaner | %w: %q", tfutils.ErrUnsupportedTimeframe, timeframe)
	}

	sorted := make([]candle.Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	unique := Deduplicate(sorted)
	report.Duplicates = len(sorted) - len(unique)

	kept := make([]candle.Candle, 0, len(unique))
	volumes := make([]float64, 0, c.opts.VolumeWindow)
	var lastClose float64
	for _, bar := range unique {
		if !validPrices(bar) {
			report.Bad++
			continue
		}
		bar.Quality = candle.QualityGood

		if lastClose > 0 && c.opts.PriceJumpThreshold > 0 && priceJump(bar.Close, lastClose) > c.opts.PriceJumpThreshold {
			bar.Quality = candle.QualitySuspicious
		}
		lastClose = bar.Close

		volumes = append(volumes, bar.Volume)
		if len(volumes) > c.opts.VolumeWindow {
			volumes = volumes[1:]
		}
		if c.opts.VolumeAnomalyFactor > 0 && len(volumes) >= c.opts.VolumeMinSamples {
			if avg := average(volumes); avg > 0 && bar.Volume > avg*c.opts.VolumeAnomalyFactor {
				bar.Quality = candle.QualitySuspicious
			}
		}

		if bar.Quality == candle.QualitySuspicious {
			report.Suspicious++
		}
		kept = append(kept, bar)
	}

	out := kept
	if c.opts.FillMissing {
		var err error
		out, report.Filled, err = FillMissing(kept, timeframe)
		if err != nil {
			return nil, report, err
		}
	}
	report.Output = len(out)

	if len(out) > 0 {
		utils.GetLogger().Printf("Cleaner | [%s %s] %s", out[0].Symbol, timeframe, report)
	}
	return out, report, nil
}

// Deduplicate keeps the first bar seen for each timestamp, symbol and exchange.
func Deduplicate(candles []candle.Candle) []candle.Candle {
	type key struct {
		ts       int64
		symbol   string
		exchange string
	}
	seen := make(map[key]struct{}, len(candles))
	out := make([]candle.Candle, 0, len(candles))
	for _, c := range candles {
		k := key{c.Timestamp, c.Symbol, c.Exchange}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FillMissing inserts a flat bar at the previous close, with zero volume, for
// every interval missing between two consecutive candles. Input must be sorted.
func FillMissing(candles []candle.Candle, timeframe string) ([]candle.Candle, int, error) {
	interval := tfutils.TimeframeMillis(timeframe)
	if interval <= 0 {
		return nil, 0, fmt.Errorf("Cleaner | %w: %q", tfutils.ErrUnsupportedTimeframe, timeframe)
	}
	if len(candles) == 0 {
		return []candle.Candle{}, 0, nil
	}

	out := make([]candle.Candle, 0, len(candles))
	filled := 0
	out = append(out, candles[0])
	for i := 1; i < len(candles); i++ {
		prev := out[len(out)-1]
		for ts := prev.Timestamp + interval; ts < candles[i].Timestamp; ts += interval {
			out = append(out, candle.Candle{
				Timestamp: ts,
				Symbol:    prev.Symbol,
				Exchange:  prev.Exchange,
				Timeframe: timeframe,
				Open:      prev.Close,
				High:      prev.Close,
				Low:       prev.Close,
				Close:     prev.Close,
				Quality:   candle.QualityMissing,
			})
			filled++
		}
		out = append(out, candles[i])
	}
	return out, filled, nil
}

// Trim keeps candles with start <= Timestamp < end.
func Trim(candles []candle.Candle, start, end int64) []candle.Candle {
	out := make([]candle.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Timestamp >= start && c.Timestamp < end {
			out = append(out, c)
		}
	}
	return out
}

func validPrices(c candle.Candle) bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	if c.High < c.Low || c.High < c.Open || c.High < c.Close {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close {
		return false
	}
	return true
}

func priceJump(current, previous float64) float64 {
	change := (current - previous) / previous
	if change < 0 {
		return -change
	}
	return change
}

func average(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
