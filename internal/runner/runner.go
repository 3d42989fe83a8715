// Package runner wires a candle source, the cleaner, the engine and the
// analyzer into one backtest call and optionally stores the run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/cleaner"
	"github.com/amirphl/simple-backtest/internal/db"
	"github.com/amirphl/simple-backtest/internal/feed"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/amirphl/simple-backtest/internal/utils"
)

var ErrNoSource = errors.New("no candle source configured")

// Request describes one backtest. Start and End bound the fetched bars,
// End exclusive. A non-empty Aggregate runs the strategy on bars folded into
// that larger timeframe.
type Request struct {
	Symbol    string
	Timeframe string
	Aggregate string
	Start     time.Time
	End       time.Time
	Strategy  strategy.Config
	Backtest  backtest.Config
}

func (r Request) Validate() error {
	if r.Symbol == "" {
		return errors.New("symbol is required")
	}
	if !tfutils.IsValidTimeframe(r.Timeframe) {
		return fmt.Errorf("%w: %s", tfutils.ErrUnsupportedTimeframe, r.Timeframe)
	}
	if r.Aggregate != "" && !tfutils.IsValidTimeframe(r.Aggregate) {
		return fmt.Errorf("%w: %s", tfutils.ErrUnsupportedTimeframe, r.Aggregate)
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("end %s must be after start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return r.Backtest.Validate()
}

// Outcome is a finished run together with the bars it consumed.
type Outcome struct {
	Record db.RunRecord
	Bars   []candle.Candle
	Clean  cleaner.Report
}

type Runner struct {
	source  feed.Source
	cleaner *cleaner.Cleaner
	store   db.Storage
}

// New builds a Runner. store may be nil, in which case runs are not saved.
func New(source feed.Source, c *cleaner.Cleaner, store db.Storage) *Runner {
	if c == nil {
		c = cleaner.New(cleaner.DefaultOptions())
	}
	return &Runner{source: source, cleaner: c, store: store}
}

// Fetch downloads and cleans the bars of req.
func (r *Runner) Fetch(ctx context.Context, req Request) ([]candle.Candle, cleaner.Report, error) {
	if r.source == nil {
		return nil, cleaner.Report{}, ErrNoSource
	}
	symbol := feed.NormalizeSymbol(req.Symbol)
	raw, err := r.source.FetchCandles(ctx, symbol, req.Timeframe, req.Start, req.End)
	if err != nil {
		return nil, cleaner.Report{}, fmt.Errorf("fetching %s %s: %w", symbol, req.Timeframe, err)
	}
	bars, report, err := r.cleaner.Clean(raw, req.Timeframe)
	if err != nil {
		return nil, report, fmt.Errorf("cleaning %s %s: %w", symbol, req.Timeframe, err)
	}
	if req.Aggregate != "" && req.Aggregate != req.Timeframe {
		bars, err = candle.Aggregate(bars, req.Aggregate)
		if err != nil {
			return nil, report, fmt.Errorf("aggregating %s to %s: %w", symbol, req.Aggregate, err)
		}
	}
	return bars, report, nil
}

// Run fetches, cleans, backtests and analyzes req, then saves the record.
func (r *Runner) Run(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	bars, report, err := r.Fetch(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	utils.GetLogger().Printf("Runner | [%s %s] Cleaned bars: %s", req.Symbol, req.Timeframe, report)

	rec, err := r.RunBars(ctx, bars, req.Strategy, req.Backtest)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Record: rec, Bars: bars, Clean: report}, nil
}

// RunBars backtests already cleaned bars and saves the record.
func (r *Runner) RunBars(ctx context.Context, bars []candle.Candle, stratCfg strategy.Config, cfg backtest.Config) (db.RunRecord, error) {
	strat, err := strategy.New(stratCfg)
	if err != nil {
		return db.RunRecord{}, err
	}

	engine := backtest.NewEngine(cfg)
	engine.SetStrategy(strat)
	engine.SetData(bars)
	if err := engine.Run(); err != nil {
		return db.RunRecord{}, err
	}

	result := engine.Result()
	metrics := analysis.Analyze(result.EquityCurve, result.Timestamps, result.Trades, result.InitialCapital)
	rec := db.NewRunRecord(strat.Params(), cfg, result, metrics)

	if r.store != nil {
		if err := r.store.SaveRun(ctx, rec); err != nil {
			return rec, fmt.Errorf("saving run %s: %w", rec.ID, err)
		}
		utils.GetLogger().Printf("Runner | [%s %s] Saved run %s", rec.Symbol, rec.Timeframe, rec.ID)
	}
	return rec, nil
}
