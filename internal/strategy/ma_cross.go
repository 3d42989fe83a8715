package strategy

import (
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/indicator"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
	"github.com/amirphl/simple-backtest/internal/utils"
)

// MACrossConfig configures the moving average cross. The strategy keeps
// SlowPeriod+HistoryMargin closes.
type MACrossConfig struct {
	FastPeriod    int `yaml:"fast_period" json:"fast_period"`
	SlowPeriod    int `yaml:"slow_period" json:"slow_period"`
	HistoryMargin int `yaml:"history_margin" json:"history_margin"`
}

func DefaultMACrossConfig() MACrossConfig {
	return MACrossConfig{FastPeriod: 5, SlowPeriod: 20, HistoryMargin: 10}
}

// MACross buys on a golden cross of the fast simple moving average over the
// slow one and sells on a death cross.
type MACross struct {
	Account

	cfg     MACrossConfig
	history *priceWindow
	fastMA  []float64
	slowMA  []float64
	filter  signalFilter
	lastBar candle.Candle
}

func NewMACross(cfg MACrossConfig) *MACross {
	if cfg.FastPeriod >= cfg.SlowPeriod {
		utils.GetLogger().Printf("Strategy | [MA Cross] Warning: fast period %d should be smaller than slow period %d",
			cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.HistoryMargin < 0 {
		cfg.HistoryMargin = 0
	}
	return &MACross{
		cfg:     cfg,
		history: newPriceWindow(cfg.SlowPeriod + cfg.HistoryMargin),
	}
}

func (s *MACross) Name() string { return "MA Cross Strategy" }

func (s *MACross) Config() MACrossConfig { return s.cfg }

// OnInit resets the account and all rolling state.
func (s *MACross) OnInit(initialCapital float64) {
	s.Account.OnInit(initialCapital)
	s.history.Reset()
	s.fastMA = nil
	s.slowMA = nil
	s.filter.reset()
	s.lastBar = candle.Candle{}
}

func (s *MACross) OnBar(c candle.Candle) {
	s.lastBar = c
	s.history.Push(c.Close)
	s.updateMA()

	if s.Position().HasPosition() {
		s.UpdatePositionPrice(c.Close)
	}
}

func (s *MACross) updateMA() {
	if v, ok := s.latestMA(s.cfg.FastPeriod); ok {
		s.fastMA = pushLastTwo(s.fastMA, v)
	}
	if v, ok := s.latestMA(s.cfg.SlowPeriod); ok {
		s.slowMA = pushLastTwo(s.slowMA, v)
	}
}

func (s *MACross) latestMA(period int) (float64, bool) {
	if period <= 0 || s.history.Len() < period {
		return 0, false
	}
	ma, err := indicator.MovingAverage(s.history.Last(period), period)
	if err != nil {
		utils.GetLogger().Printf("Strategy | [MA Cross] Error calculating MA(%d): %v", period, err)
		return 0, false
	}
	return ma[len(ma)-1], true
}

func (s *MACross) detectCross() signal.Signal {
	if len(s.fastMA) < 2 || len(s.slowMA) < 2 {
		return signal.None
	}
	return crossOf(s.fastMA[0], s.slowMA[0], s.fastMA[1], s.slowMA[1])
}

func (s *MACross) GenerateSignal() signal.Signal {
	if s.history.Len() < s.cfg.SlowPeriod {
		return signal.None
	}
	sig := s.filter.apply(s.detectCross(), s.Position().HasPosition())
	if sig.IsTrade() {
		utils.GetLogger().Printf("Strategy | [%s MA Cross] %s at %.8f (fast %.8f, slow %.8f)",
			s.lastBar.Symbol, sig, s.lastBar.Close, s.FastMA(), s.SlowMA())
	}
	return sig
}

// FastMA returns the newest fast average, 0 before the first one.
func (s *MACross) FastMA() float64 {
	if len(s.fastMA) == 0 {
		return 0
	}
	return s.fastMA[len(s.fastMA)-1]
}

// SlowMA returns the newest slow average, 0 before the first one.
func (s *MACross) SlowMA() float64 {
	if len(s.slowMA) == 0 {
		return 0
	}
	return s.slowMA[len(s.slowMA)-1]
}

func (s *MACross) Params() map[string]float64 {
	return map[string]float64{
		"fast_period":    float64(s.cfg.FastPeriod),
		"slow_period":    float64(s.cfg.SlowPeriod),
		"history_margin": float64(s.cfg.HistoryMargin),
		"history_size":   float64(s.history.Len()),
	}
}
