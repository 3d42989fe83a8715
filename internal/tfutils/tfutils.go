package tfutils

import (
	"errors"
	"time"
)

var ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

var durations = map[string]time.Duration{
	"1s":  time.Second,
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// ParseTimeframe parses timeframe string (e.g., "5m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	d, ok := durations[timeframe]
	if !ok {
		return 0, ErrUnsupportedTimeframe
	}
	return d, nil
}

// GetTimeframeDuration returns the duration for a given timeframe, 0 if unknown
func GetTimeframeDuration(timeframe string) time.Duration {
	return durations[timeframe]
}

// TimeframeMillis returns the bar interval in milliseconds.
func TimeframeMillis(timeframe string) int64 {
	return GetTimeframeDuration(timeframe).Milliseconds()
}

// GetSupportedTimeframes returns all supported timeframes, shortest first
func GetSupportedTimeframes() []string {
	return []string{"1s", "1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M"}
}

// IsValidTimeframe checks if a timeframe is supported
func IsValidTimeframe(timeframe string) bool {
	return GetTimeframeDuration(timeframe) > 0
}

// BarsPerYear is the number of bars of the given timeframe in a 365.25 day year.
func BarsPerYear(timeframe string) float64 {
	d := GetTimeframeDuration(timeframe)
	if d <= 0 {
		return 0
	}
	return float64(365.25*24*time.Hour) / float64(d)
}
