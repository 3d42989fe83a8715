package strategy

import (
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/indicator"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
	"github.com/amirphl/simple-backtest/internal/utils"
)

type RSIConfig struct {
	Period     int     `yaml:"period" json:"period"`
	Overbought float64 `yaml:"overbought" json:"overbought"`
	Oversold   float64 `yaml:"oversold" json:"oversold"`
}

func DefaultRSIConfig() RSIConfig {
	return RSIConfig{Period: indicator.DefaultRSIPeriod, Overbought: 70, Oversold: 30}
}

// RSIReversion buys when RSI climbs back above the oversold line and sells
// when it pushes above the overbought line. The Wilder averages carry over
// from bar to bar, so readings match RSI over the whole run.
type RSIReversion struct {
	Account

	cfg     RSIConfig
	state   *indicator.RSIState
	initErr error
	rsi     []float64
	filter  signalFilter
	lastBar candle.Candle
}

func NewRSIReversion(cfg RSIConfig) *RSIReversion {
	state, err := indicator.NewRSIState(cfg.Period)
	return &RSIReversion{cfg: cfg, state: state, initErr: err}
}

func (s *RSIReversion) Name() string { return "RSI" }

func (s *RSIReversion) OnInit(initialCapital float64) {
	s.Account.OnInit(initialCapital)
	if s.state != nil {
		s.state.Reset()
	}
	s.rsi = nil
	s.filter.reset()
	s.lastBar = candle.Candle{}
}

func (s *RSIReversion) OnBar(c candle.Candle) {
	s.lastBar = c
	if s.initErr != nil {
		utils.GetLogger().Printf("Strategy | [%s RSI] Error calculating RSI: %v", c.Symbol, s.initErr)
	} else if v, ok := s.state.Update(c.Close); ok {
		s.rsi = pushLastTwo(s.rsi, v)
	}

	if s.Position().HasPosition() {
		s.UpdatePositionPrice(c.Close)
	}
}

func (s *RSIReversion) GenerateSignal() signal.Signal {
	if len(s.rsi) < 2 {
		return signal.None
	}
	prev, cur := s.rsi[0], s.rsi[1]

	raw := signal.None
	switch {
	case prev < s.cfg.Oversold && cur >= s.cfg.Oversold:
		raw = signal.Buy
	case prev <= s.cfg.Overbought && cur > s.cfg.Overbought:
		raw = signal.Sell
	}

	sig := s.filter.apply(raw, s.Position().HasPosition())
	if sig.IsTrade() {
		utils.GetLogger().Printf("Strategy | [%s RSI] Signal %s - RSI: %.2f -> %.2f, Price: %.2f",
			s.lastBar.Symbol, sig, prev, cur, s.lastBar.Close)
	}
	return sig
}

// LastRSI returns the newest RSI reading, 0 during warmup.
func (s *RSIReversion) LastRSI() float64 {
	if len(s.rsi) == 0 {
		return 0
	}
	return s.rsi[len(s.rsi)-1]
}

func (s *RSIReversion) Params() map[string]float64 {
	return map[string]float64{
		"period":     float64(s.cfg.Period),
		"overbought": s.cfg.Overbought,
		"oversold":   s.cfg.Oversold,
	}
}
