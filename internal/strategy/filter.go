package strategy

import "github.com/amirphl/simple-backtest/internal/strategy/signal"

// signalFilter gates a raw cross signal against the position and the last
// emitted signal. The position check runs before the repeat check.
type signalFilter struct {
	last signal.Signal
}

func (f *signalFilter) apply(raw signal.Signal, holding bool) signal.Signal {
	if raw == signal.Buy && holding {
		return signal.Hold
	}
	if raw == signal.Sell && !holding {
		return signal.Hold
	}
	if raw == f.last {
		return signal.Hold
	}
	if raw != signal.None {
		f.last = raw
	}
	return raw
}

func (f *signalFilter) reset() {
	f.last = signal.None
}

// pushLastTwo appends v and keeps only the two newest values.
func pushLastTwo(values []float64, v float64) []float64 {
	values = append(values, v)
	if len(values) > 2 {
		values = values[len(values)-2:]
	}
	return values
}

// crossOf compares two consecutive readings of a fast and a slow line.
func crossOf(fastPrev, slowPrev, fastCur, slowCur float64) signal.Signal {
	if fastPrev <= slowPrev && fastCur > slowCur {
		return signal.Buy
	}
	if fastPrev >= slowPrev && fastCur < slowCur {
		return signal.Sell
	}
	return signal.None
}
