// Package db persists candles and backtest runs.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("backtest run not found")

// Storage is the interface for all persistent storage.
type Storage interface {
	CandleStorage
	RunStorage
	Close() error
}

type CandleStorage interface {
	// SaveCandles upserts on (symbol, timeframe, timestamp, exchange).
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	// GetCandles returns candles with start <= timestamp < end (Unix ms), oldest first.
	GetCandles(ctx context.Context, symbol, timeframe string, start, end int64) ([]candle.Candle, error)
	GetLatestCandle(ctx context.Context, symbol, timeframe string) (*candle.Candle, error)
}

type RunStorage interface {
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	// ListRuns returns the newest runs first. A limit <= 0 means no limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// RunRecord is one finished backtest with everything needed to report on it.
type RunRecord struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Strategy  string             `json:"strategy"`
	Symbol    string             `json:"symbol"`
	Timeframe string             `json:"timeframe"`
	Params    map[string]float64 `json:"params"`
	Config    backtest.Config    `json:"config"`
	Result    backtest.Result    `json:"result"`
	Metrics   analysis.Metrics   `json:"metrics"`
}

// NewRunRecord stamps a fresh ID and creation time on a finished run.
func NewRunRecord(params map[string]float64, cfg backtest.Config, result backtest.Result, metrics analysis.Metrics) RunRecord {
	return RunRecord{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Strategy:  result.Strategy,
		Symbol:    result.Symbol,
		Timeframe: result.Timeframe,
		Params:    params,
		Config:    cfg,
		Result:    result,
		Metrics:   metrics,
	}
}
