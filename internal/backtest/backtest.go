// Package backtest
package backtest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
	"github.com/amirphl/simple-backtest/internal/utils"
)

var (
	ErrNoStrategy = errors.New("no strategy attached")
	ErrNoData     = errors.New("no candles to backtest")
)

// Config holds the simulated order economics. Rates are fractions, so 0.001 is 0.1%.
type Config struct {
	InitialCapital   float64 `yaml:"initial_capital" json:"initial_capital"`
	CommissionRate   float64 `yaml:"commission_rate" json:"commission_rate"`
	SlippageRate     float64 `yaml:"slippage_rate" json:"slippage_rate"`
	PositionFraction float64 `yaml:"position_fraction" json:"position_fraction"`
}

func DefaultConfig() Config {
	return Config{
		InitialCapital:   10000,
		CommissionRate:   0.001,
		SlippageRate:     0.001,
		PositionFraction: 0.5,
	}
}

// Validate rejects configurations that cannot produce a meaningful run.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("commission rate must be in [0, 1), got %v", c.CommissionRate)
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return fmt.Errorf("slippage rate must be in [0, 1), got %v", c.SlippageRate)
	}
	if c.PositionFraction <= 0 || c.PositionFraction > 1 {
		return fmt.Errorf("position fraction must be in (0, 1], got %v", c.PositionFraction)
	}
	return nil
}

// Result is a plain value snapshot of one run.
type Result struct {
	Strategy       string           `json:"strategy"`
	Symbol         string           `json:"symbol"`
	Timeframe      string           `json:"timeframe"`
	InitialCapital float64          `json:"initial_capital"`
	FinalCapital   float64          `json:"final_capital"`
	FinalEquity    float64          `json:"final_equity"`
	TotalReturn    float64          `json:"total_return"` // percent
	TotalTrades    int              `json:"total_trades"`
	WinningTrades  int              `json:"winning_trades"`
	LosingTrades   int              `json:"losing_trades"`
	Trades         []strategy.Trade `json:"trades"`
	EquityCurve    []float64        `json:"equity_curve"`
	Timestamps     []int64          `json:"timestamps"`
}

// WinRate is winning over decided (non zero) closing trades.
func (r Result) WinRate() float64 {
	decided := r.WinningTrades + r.LosingTrades
	if decided == 0 {
		return 0
	}
	return float64(r.WinningTrades) / float64(decided)
}

// Engine drives one strategy over a candle sequence. An Engine and its
// strategy must not be shared between concurrent runs.
type Engine struct {
	cfg      Config
	strategy strategy.Strategy
	data     []candle.Candle
	result   Result
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:    cfg,
		result: Result{InitialCapital: cfg.InitialCapital},
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) SetStrategy(s strategy.Strategy) {
	e.strategy = s
}

// SetData attaches candles that are already sorted and cleaned.
func (e *Engine) SetData(candles []candle.Candle) {
	e.data = candles
}

// Run simulates the attached strategy bar by bar. Without a strategy or data
// it logs, leaves the result untouched and returns an error.
func (e *Engine) Run() error {
	if e.strategy == nil {
		utils.GetLogger().Printf("Backtest | %v", ErrNoStrategy)
		return ErrNoStrategy
	}
	if len(e.data) == 0 {
		utils.GetLogger().Printf("Backtest | [%s] %v", e.strategy.Name(), ErrNoData)
		return ErrNoData
	}

	e.strategy.OnInit(e.cfg.InitialCapital)

	first := e.data[0]
	e.result = Result{
		Strategy:       e.strategy.Name(),
		Symbol:         first.Symbol,
		Timeframe:      first.Timeframe,
		InitialCapital: e.cfg.InitialCapital,
		Trades:         []strategy.Trade{},
		EquityCurve:    make([]float64, 0, len(e.data)+1),
		Timestamps:     make([]int64, 0, len(e.data)+1),
	}
	e.result.EquityCurve = append(e.result.EquityCurve, e.cfg.InitialCapital)
	e.result.Timestamps = append(e.result.Timestamps, first.Timestamp)

	utils.GetLogger().Printf("Backtest | [%s %s] Running %s over %d candles",
		first.Symbol, first.Timeframe, e.strategy.Name(), len(e.data))

	for _, bar := range e.data {
		e.strategy.OnBar(bar)

		sig := e.strategy.GenerateSignal()
		if sig.IsTrade() {
			e.processSignal(sig, bar)
		}

		if e.strategy.Position().Quantity > 0 {
			e.strategy.UpdatePositionPrice(bar.Close)
		}

		e.result.EquityCurve = append(e.result.EquityCurve, e.strategy.TotalEquity())
		e.result.Timestamps = append(e.result.Timestamps, bar.Timestamp)
	}

	e.result.FinalCapital = e.strategy.Capital()
	e.result.FinalEquity = e.strategy.TotalEquity()
	e.result.TotalReturn = e.strategy.TotalReturn()

	utils.GetLogger().Printf("Backtest | [%s %s] Done: trades=%d wins=%d losses=%d final equity=%.2f return=%.2f%%",
		first.Symbol, first.Timeframe, e.result.TotalTrades, e.result.WinningTrades, e.result.LosingTrades,
		e.result.FinalEquity, e.result.TotalReturn)
	return nil
}

func (e *Engine) processSignal(sig signal.Signal, bar candle.Candle) {
	switch sig {
	case signal.Buy:
		amount := e.strategy.Capital() * e.cfg.PositionFraction
		price := bar.Close + e.slippage(bar.Close)
		commission := e.commission(amount)
		quantity := (amount - commission) / price

		e.strategy.OpenPosition(bar.Symbol, quantity, price)
		e.record(strategy.Trade{
			Timestamp: bar.Timestamp,
			Symbol:    bar.Symbol,
			Signal:    signal.Buy,
			Price:     price,
			Quantity:  quantity,
		})

	case signal.Sell:
		price := bar.Close - e.slippage(bar.Close)
		quantity := e.strategy.Position().Quantity

		pnl := e.strategy.ClosePosition(price)
		pnl -= e.commission(price * quantity)

		e.record(strategy.Trade{
			Timestamp: bar.Timestamp,
			Symbol:    bar.Symbol,
			Signal:    signal.Sell,
			Price:     price,
			PnL:       pnl,
		})
		if pnl > 0 {
			e.result.WinningTrades++
		} else if pnl < 0 {
			e.result.LosingTrades++
		}
	}
}

func (e *Engine) record(t strategy.Trade) {
	e.strategy.AddTrade(t)
	e.result.Trades = append(e.result.Trades, t)
	e.result.TotalTrades++
}

func (e *Engine) commission(amount float64) float64 {
	return amount * e.cfg.CommissionRate
}

func (e *Engine) slippage(price float64) float64 {
	return price * e.cfg.SlippageRate
}

// Result returns a copy of the last run's result.
func (e *Engine) Result() Result {
	r := e.result
	r.Trades = slices.Clone(e.result.Trades)
	r.EquityCurve = slices.Clone(e.result.EquityCurve)
	r.Timestamps = slices.Clone(e.result.Timestamps)
	return r
}
