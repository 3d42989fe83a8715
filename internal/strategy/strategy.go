// Package strategy
package strategy

import (
	"fmt"
	"sort"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/strategy/position"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
)

// Ledger is the capital and position bookkeeping shared by every strategy.
// Account implements it; strategies embed Account.
type Ledger interface {
	OpenPosition(symbol string, quantity, price float64)
	ClosePosition(price float64) float64
	UpdatePositionPrice(price float64)
	Capital() float64
	InitialCapital() float64
	TotalEquity() float64
	TotalReturn() float64
	Position() position.Position
	AddTrade(t Trade)
	Trades() []Trade
}

// Strategy is the interface for all trading strategies.
type Strategy interface {
	Ledger
	Name() string
	// OnInit resets capital, position and indicator state. Call once before the first bar.
	OnInit(initialCapital float64)
	// OnBar feeds one bar. Call before each GenerateSignal.
	OnBar(c candle.Candle)
	// GenerateSignal reads accumulated state and never touches capital or position.
	GenerateSignal() signal.Signal
	// Params returns the strategy parameters for reporting.
	Params() map[string]float64
}

// Trade is one fill recorded by the engine. BUY legs carry PnL 0; SELL legs
// close the whole position so they carry Quantity 0 and the net PnL.
type Trade struct {
	Timestamp int64         `json:"timestamp"`
	Symbol    string        `json:"symbol"`
	Signal    signal.Signal `json:"signal"`
	Price     float64       `json:"price"`
	Quantity  float64       `json:"quantity"`
	PnL       float64       `json:"pnl"`
}

// Config selects one strategy variant and carries the parameters of each.
type Config struct {
	Name    string        `yaml:"name" json:"name"`
	MACross MACrossConfig `yaml:"ma_cross" json:"ma_cross"`
	RSI     RSIConfig     `yaml:"rsi" json:"rsi"`
	MACD    MACDConfig    `yaml:"macd" json:"macd"`
}

const (
	NameMACross = "ma-cross"
	NameRSI     = "rsi"
	NameMACD    = "macd"
)

func DefaultConfig() Config {
	return Config{
		Name:    NameMACross,
		MACross: DefaultMACrossConfig(),
		RSI:     DefaultRSIConfig(),
		MACD:    DefaultMACDConfig(),
	}
}

// New builds the strategy named by cfg.Name. An empty name selects the MA cross.
func New(cfg Config) (Strategy, error) {
	switch cfg.Name {
	case NameMACross, "ma_cross", "":
		return NewMACross(cfg.MACross), nil
	case NameRSI:
		return NewRSIReversion(cfg.RSI), nil
	case NameMACD:
		return NewMACDCross(cfg.MACD), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: %v)", cfg.Name, Names())
	}
}

// Names lists the strategies New accepts.
func Names() []string {
	names := []string{NameMACross, NameRSI, NameMACD}
	sort.Strings(names)
	return names
}
