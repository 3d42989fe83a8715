// Package sweep runs the MA cross strategy over a grid of parameters in parallel.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/utils"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyGrid = errors.New("empty parameter grid")

// Outcome is the result of one grid point.
type Outcome struct {
	Params  strategy.MACrossConfig `json:"params"`
	Result  backtest.Result        `json:"result"`
	Metrics analysis.Metrics       `json:"metrics"`
}

// Grid builds every fast/slow pair with fast < slow.
func Grid(fast, slow []int, historyMargin int) []strategy.MACrossConfig {
	var grid []strategy.MACrossConfig
	for _, f := range fast {
		for _, s := range slow {
			if f <= 0 || f >= s {
				continue
			}
			grid = append(grid, strategy.MACrossConfig{FastPeriod: f, SlowPeriod: s, HistoryMargin: historyMargin})
		}
	}
	return grid
}

// Run backtests every grid point on its own engine and strategy. bars is
// shared read-only. Outcomes keep grid order. workers <= 0 uses GOMAXPROCS.
func Run(ctx context.Context, bars []candle.Candle, grid []strategy.MACrossConfig, cfg backtest.Config, workers int) ([]Outcome, error) {
	if len(grid) == 0 {
		return nil, ErrEmptyGrid
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, backtest.ErrNoData
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	utils.GetLogger().Printf("Sweep | [%s %s] Running %d parameter sets on %d workers",
		bars[0].Symbol, bars[0].Timeframe, len(grid), workers)

	outcomes := make([]Outcome, len(grid))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, params := range grid {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			engine := backtest.NewEngine(cfg)
			engine.SetStrategy(strategy.NewMACross(params))
			engine.SetData(bars)
			if err := engine.Run(); err != nil {
				return fmt.Errorf("fast=%d slow=%d: %w", params.FastPeriod, params.SlowPeriod, err)
			}
			result := engine.Result()
			outcomes[i] = Outcome{
				Params:  params,
				Result:  result,
				Metrics: analysis.Analyze(result.EquityCurve, result.Timestamps, result.Trades, result.InitialCapital),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Best returns the outcome with the highest Sharpe ratio. Ties keep the
// earlier grid point. ok is false when outcomes is empty.
func Best(outcomes []Outcome) (best Outcome, ok bool) {
	bestSharpe := math.Inf(-1)
	for _, o := range outcomes {
		if o.Metrics.SharpeRatio > bestSharpe {
			best, bestSharpe, ok = o, o.Metrics.SharpeRatio, true
		}
	}
	return best, ok
}
