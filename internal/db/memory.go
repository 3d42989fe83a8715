package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/amirphl/simple-backtest/internal/candle"
)

type MemoryStorage struct {
	mu sync.RWMutex

	// Candles keyed by symbol|timeframe|timestamp|exchange
	candles map[string]candle.Candle

	// Runs by ID, stored as JSON so callers never share slices with the store
	runs map[string][]byte
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		candles: make(map[string]candle.Candle),
		runs:    make(map[string][]byte),
	}
}

func (m *MemoryStorage) Close() error { return nil }

// -------- Candles --------

func candleKey(symbol, timeframe string, ts int64, exchange string) string {
	return strings.ToUpper(symbol) + "|" + timeframe + "|" + strconv.FormatInt(ts, 10) + "|" + exchange
}

func (m *MemoryStorage) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d for %s %s at %d: %w",
				i, candles[i].Symbol, candles[i].Timeframe, candles[i].Timestamp, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		m.candles[candleKey(c.Symbol, c.Timeframe, c.Timestamp, c.Exchange)] = c
	}
	return nil
}

func (m *MemoryStorage) GetCandles(ctx context.Context, symbol, timeframe string, start, end int64) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []candle.Candle{}
	for _, c := range m.candles {
		if !strings.EqualFold(c.Symbol, symbol) || c.Timeframe != timeframe {
			continue
		}
		if c.Timestamp >= start && c.Timestamp < end {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp == out[j].Timestamp {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (m *MemoryStorage) GetLatestCandle(ctx context.Context, symbol, timeframe string) (*candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *candle.Candle
	for _, c := range m.candles {
		if !strings.EqualFold(c.Symbol, symbol) || c.Timeframe != timeframe {
			continue
		}
		if latest == nil || c.Timestamp > latest.Timestamp {
			cc := c
			latest = &cc
		}
	}
	return latest, nil
}

// -------- Runs --------

func (m *MemoryStorage) SaveRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = data
	return nil
}

func (m *MemoryStorage) GetRun(ctx context.Context, id string) (RunRecord, error) {
	m.mu.RLock()
	data, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return RunRecord{}, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return run, nil
}

func (m *MemoryStorage) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	runs := make([]RunRecord, 0, len(m.runs))
	for id, data := range m.runs {
		var run RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			m.mu.RUnlock()
			return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
		}
		runs = append(runs, run)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
