package indicator

import "fmt"

// EMAState folds prices into an exponential moving average one at a time.
// Its readings match ExponentialMovingAverage over the full history.
type EMAState struct {
	period int
	alpha  float64
	n      int
	value  float64
}

func NewEMAState(period int) (*EMAState, error) {
	if period <= 0 {
		return nil, &InvalidArgumentError{Indicator: "EMA", Reason: fmt.Sprintf("period must be positive, got %d", period)}
	}
	return &EMAState{period: period, alpha: 2.0 / float64(period+1)}, nil
}

// Update adds price and reports the average once period prices were seen.
func (s *EMAState) Update(price float64) (float64, bool) {
	s.n++
	if s.n <= s.period {
		// Seeded with the running mean of the first period prices.
		s.value += (price - s.value) / float64(s.n)
		return s.value, s.n == s.period
	}
	s.value = s.alpha*price + (1-s.alpha)*s.value
	return s.value, true
}

func (s *EMAState) Reset() {
	s.n = 0
	s.value = 0
}

// RSIState keeps the Wilder averages between prices, so a reading after any
// number of updates equals the last value of RSI over every price seen.
type RSIState struct {
	period  int
	n       int
	prev    float64
	avgGain float64
	avgLoss float64
}

func NewRSIState(period int) (*RSIState, error) {
	if period <= 0 {
		return nil, &InvalidArgumentError{Indicator: "RSI", Reason: fmt.Sprintf("period must be positive, got %d", period)}
	}
	return &RSIState{period: period}, nil
}

// Update adds price and reports the RSI once period deltas exist.
func (s *RSIState) Update(price float64) (float64, bool) {
	s.n++
	if s.n == 1 {
		s.prev = price
		return 0, false
	}

	var gain, loss float64
	if change := price - s.prev; change > 0 {
		gain = change
	} else {
		loss = -change
	}
	s.prev = price

	switch {
	case s.n <= s.period:
		s.avgGain += gain
		s.avgLoss += loss
		return 0, false
	case s.n == s.period+1:
		s.avgGain = (s.avgGain + gain) / float64(s.period)
		s.avgLoss = (s.avgLoss + loss) / float64(s.period)
	default:
		s.avgGain = (s.avgGain*float64(s.period-1) + gain) / float64(s.period)
		s.avgLoss = (s.avgLoss*float64(s.period-1) + loss) / float64(s.period)
	}
	return rsiValue(s.avgGain, s.avgLoss), true
}

func (s *RSIState) Reset() {
	s.n = 0
	s.prev = 0
	s.avgGain = 0
	s.avgLoss = 0
}

// MACDState is the incremental form of MACD. Update reports DIF as soon as
// the slow average is seeded and DEA once signal DIF values exist.
type MACDState struct {
	fast   *EMAState
	slow   *EMAState
	signal *EMAState
}

func NewMACDState(fast, slow, signal int) (*MACDState, error) {
	if fast <= 0 || signal <= 0 {
		return nil, &InvalidArgumentError{
			Indicator: "MACD",
			Reason:    fmt.Sprintf("periods must be positive, got fast=%d signal=%d", fast, signal),
		}
	}
	if fast > slow {
		return nil, &InvalidArgumentError{
			Indicator: "MACD",
			Reason:    fmt.Sprintf("fast period %d must not exceed slow period %d", fast, slow),
		}
	}
	s := &MACDState{}
	s.fast, _ = NewEMAState(fast)
	s.slow, _ = NewEMAState(slow)
	s.signal, _ = NewEMAState(signal)
	return s, nil
}

// Update returns the newest DIF and DEA. hasDif and hasDea tell which of the
// two are defined yet.
func (s *MACDState) Update(price float64) (dif, dea float64, hasDif, hasDea bool) {
	fast, _ := s.fast.Update(price)
	slow, ok := s.slow.Update(price)
	if !ok {
		return 0, 0, false, false
	}
	dif = fast - slow
	dea, hasDea = s.signal.Update(dif)
	if !hasDea {
		dea = 0
	}
	return dif, dea, true, hasDea
}

func (s *MACDState) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.signal.Reset()
}
