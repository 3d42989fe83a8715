package indicator

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is matched by every precondition failure in this package.
var ErrInvalidArgument = errors.New("invalid argument")

// InvalidArgumentError names the indicator and the violated constraint.
type InvalidArgumentError struct {
	Indicator string
	Reason    string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument: %s", e.Indicator, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// validate fails when period is not positive or fewer than required values exist.
func validate(prices []float64, period, required int, name string) error {
	if period <= 0 {
		return &InvalidArgumentError{Indicator: name, Reason: fmt.Sprintf("period must be positive, got %d", period)}
	}
	if len(prices) == 0 {
		return &InvalidArgumentError{Indicator: name, Reason: "price series is empty"}
	}
	if len(prices) < required {
		return &InvalidArgumentError{
			Indicator: name,
			Reason:    fmt.Sprintf("need at least %d values, got %d", required, len(prices)),
		}
	}
	return nil
}

// Indicator is the interface for all technical indicators.
type Indicator interface {
	Name() string
	Calculate(values []float64, params ...float64) ([]float64, error)
}

// SMA adapts MovingAverage. params[0] overrides Period.
type SMA struct{ Period int }

func (s SMA) Name() string { return "MA" }

func (s SMA) Calculate(values []float64, params ...float64) ([]float64, error) {
	return MovingAverage(values, periodParam(s.Period, params))
}

// EMA adapts ExponentialMovingAverage. params[0] overrides Period.
type EMA struct{ Period int }

func (e EMA) Name() string { return "EMA" }

func (e EMA) Calculate(values []float64, params ...float64) ([]float64, error) {
	return ExponentialMovingAverage(values, periodParam(e.Period, params))
}

// RSIIndicator adapts RSI. params[0] overrides Period.
type RSIIndicator struct{ Period int }

func (r RSIIndicator) Name() string { return "RSI" }

func (r RSIIndicator) Calculate(values []float64, params ...float64) ([]float64, error) {
	return RSI(values, periodParam(r.Period, params))
}

// MACDHistogram adapts MACD and returns only the histogram series.
type MACDHistogram struct{ Fast, Slow, Signal int }

func (m MACDHistogram) Name() string { return "MACD" }

func (m MACDHistogram) Calculate(values []float64, params ...float64) ([]float64, error) {
	fast, slow, signal := m.Fast, m.Slow, m.Signal
	if len(params) >= 3 {
		fast, slow, signal = int(params[0]), int(params[1]), int(params[2])
	}
	res, err := MACD(values, fast, slow, signal)
	if err != nil {
		return nil, err
	}
	return res.Histogram, nil
}

func periodParam(def int, params []float64) int {
	if len(params) > 0 {
		return int(params[0])
	}
	return def
}

// ByName returns an indicator with default parameters.
func ByName(name string) (Indicator, error) {
	switch name {
	case "ma", "sma":
		return SMA{Period: 20}, nil
	case "ema":
		return EMA{Period: 20}, nil
	case "rsi":
		return RSIIndicator{Period: DefaultRSIPeriod}, nil
	case "macd":
		return MACDHistogram{Fast: DefaultMACDFast, Slow: DefaultMACDSlow, Signal: DefaultMACDSignal}, nil
	default:
		return nil, fmt.Errorf("unknown indicator %q", name)
	}
}
