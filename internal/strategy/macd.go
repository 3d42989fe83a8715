package strategy

import (
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/indicator"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
	"github.com/amirphl/simple-backtest/internal/utils"
)

type MACDConfig struct {
	Fast   int `yaml:"fast" json:"fast"`
	Slow   int `yaml:"slow" json:"slow"`
	Signal int `yaml:"signal" json:"signal"`
}

func DefaultMACDConfig() MACDConfig {
	return MACDConfig{Fast: indicator.DefaultMACDFast, Slow: indicator.DefaultMACDSlow, Signal: indicator.DefaultMACDSignal}
}

// MACDCross trades DIF crossing its DEA signal line. Both EMAs run over
// every bar since OnInit.
type MACDCross struct {
	Account

	cfg     MACDConfig
	state   *indicator.MACDState
	initErr error
	dif     []float64
	dea     []float64
	filter  signalFilter
	lastBar candle.Candle
}

func NewMACDCross(cfg MACDConfig) *MACDCross {
	state, err := indicator.NewMACDState(cfg.Fast, cfg.Slow, cfg.Signal)
	return &MACDCross{cfg: cfg, state: state, initErr: err}
}

func (s *MACDCross) Name() string { return "MACD" }

func (s *MACDCross) OnInit(initialCapital float64) {
	s.Account.OnInit(initialCapital)
	if s.state != nil {
		s.state.Reset()
	}
	s.dif = nil
	s.dea = nil
	s.filter.reset()
	s.lastBar = candle.Candle{}
}

func (s *MACDCross) OnBar(c candle.Candle) {
	s.lastBar = c
	if s.initErr != nil {
		utils.GetLogger().Printf("Strategy | [%s MACD] Error calculating MACD: %v", c.Symbol, s.initErr)
	} else if dif, dea, _, ok := s.state.Update(c.Close); ok {
		s.dif = pushLastTwo(s.dif, dif)
		s.dea = pushLastTwo(s.dea, dea)
	}

	if s.Position().HasPosition() {
		s.UpdatePositionPrice(c.Close)
	}
}

func (s *MACDCross) GenerateSignal() signal.Signal {
	if len(s.dif) < 2 || len(s.dea) < 2 {
		return signal.None
	}
	raw := crossOf(s.dif[0], s.dea[0], s.dif[1], s.dea[1])
	sig := s.filter.apply(raw, s.Position().HasPosition())
	if sig.IsTrade() {
		utils.GetLogger().Printf("Strategy | [%s MACD] Signal %s - DIF %.6f DEA %.6f, Price: %.2f",
			s.lastBar.Symbol, sig, s.dif[1], s.dea[1], s.lastBar.Close)
	}
	return sig
}

func (s *MACDCross) Params() map[string]float64 {
	return map[string]float64{
		"fast":   float64(s.cfg.Fast),
		"slow":   float64(s.cfg.Slow),
		"signal": float64(s.cfg.Signal),
	}
}
