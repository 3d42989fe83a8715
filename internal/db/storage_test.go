package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/strategy/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseTS = int64(1704067200000) // 2024-01-01T00:00:00Z

func testCandle(i int64, exchange string, close float64) candle.Candle {
	return candle.Candle{
		Timestamp:   baseTS + i*3_600_000,
		Symbol:      "BTCUSDT",
		Exchange:    exchange,
		Timeframe:   "1h",
		Open:        close,
		High:        close + 1,
		Low:         close - 1,
		Close:       close,
		Volume:      10,
		QuoteVolume: 10 * close,
		TradeCount:  42,
		Quality:     candle.QualityGood,
	}
}

func testRun(id string, createdAt time.Time) RunRecord {
	result := backtest.Result{
		Strategy:       "MA Cross Strategy",
		Symbol:         "BTCUSDT",
		Timeframe:      "1h",
		InitialCapital: 10000,
		FinalCapital:   10100.5,
		FinalEquity:    10100.5,
		TotalReturn:    1.005,
		TotalTrades:    2,
		WinningTrades:  1,
		Trades: []strategy.Trade{
			{Timestamp: baseTS, Symbol: "BTCUSDT", Signal: signal.Buy, Price: 100.1, Quantity: 49.9},
			{Timestamp: baseTS + 3_600_000, Symbol: "BTCUSDT", Signal: signal.Sell, Price: 102.2, PnL: 100.5},
		},
		EquityCurve: []float64{10000, 10000, 10100.5},
		Timestamps:  []int64{baseTS, baseTS, baseTS + 3_600_000},
	}
	metrics := analysis.Analyze(result.EquityCurve, result.Timestamps, result.Trades, result.InitialCapital)
	return RunRecord{
		ID:        id,
		CreatedAt: createdAt,
		Strategy:  result.Strategy,
		Symbol:    result.Symbol,
		Timeframe: result.Timeframe,
		Params:    map[string]float64{"fast_period": 5, "slow_period": 20},
		Config:    backtest.DefaultConfig(),
		Result:    result,
		Metrics:   metrics,
	}
}

// runStorageSuite exercises a Storage implementation end to end.
func runStorageSuite(t *testing.T, s Storage) {
	ctx := context.Background()

	t.Run("Candles", func(t *testing.T) {
		require.NoError(t, s.SaveCandles(ctx, []candle.Candle{
			testCandle(2, "binance", 102),
			testCandle(0, "binance", 100),
			testCandle(1, "binance", 101),
			testCandle(1, "wallex", 201),
		}))
		// Upsert replaces the stored bar.
		updated := testCandle(2, "binance", 150)
		updated.Quality = candle.QualitySuspicious
		require.NoError(t, s.SaveCandles(ctx, []candle.Candle{updated}))

		got, err := s.GetCandles(ctx, "BTCUSDT", "1h", baseTS, baseTS+3*3_600_000)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, testCandle(0, "binance", 100), got[0])
		assert.Equal(t, "binance", got[1].Exchange)
		assert.Equal(t, "wallex", got[2].Exchange)
		assert.Equal(t, updated, got[3])

		got, err = s.GetCandles(ctx, "BTCUSDT", "1h", baseTS+3_600_000, baseTS+2*3_600_000)
		require.NoError(t, err)
		assert.Len(t, got, 2, "end is exclusive")

		got, err = s.GetCandles(ctx, "BTCUSDT", "4h", baseTS, baseTS+3*3_600_000)
		require.NoError(t, err)
		assert.Empty(t, got)

		latest, err := s.GetLatestCandle(ctx, "BTCUSDT", "1h")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, updated.Timestamp, latest.Timestamp)

		latest, err = s.GetLatestCandle(ctx, "ETHUSDT", "1h")
		require.NoError(t, err)
		assert.Nil(t, latest)
	})

	t.Run("Invalid candles are rejected", func(t *testing.T) {
		bad := testCandle(10, "binance", 100)
		bad.High = 50
		assert.Error(t, s.SaveCandles(ctx, []candle.Candle{testCandle(11, "binance", 100), bad}))

		got, err := s.GetCandles(ctx, "BTCUSDT", "1h", baseTS+10*3_600_000, baseTS+12*3_600_000)
		require.NoError(t, err)
		assert.Empty(t, got, "nothing from a rejected batch is stored")
	})

	t.Run("Runs", func(t *testing.T) {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		older := testRun("run-older", now.Add(-time.Hour))
		newer := testRun("run-newer", now)
		require.NoError(t, s.SaveRun(ctx, older))
		require.NoError(t, s.SaveRun(ctx, newer))

		got, err := s.GetRun(ctx, "run-older")
		require.NoError(t, err)
		assert.Equal(t, older, got)

		runs, err := s.ListRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "run-newer", runs[0].ID)
		assert.Equal(t, "run-older", runs[1].ID)

		runs, err = s.ListRuns(ctx, 1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "run-newer", runs[0].ID)

		_, err = s.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)

		assert.Error(t, s.SaveRun(ctx, RunRecord{}))
	})
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	runStorageSuite(t, s)
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backtest.db")
	s, err := NewSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	runStorageSuite(t, s)

	// Migrating again is a no-op.
	require.NoError(t, s.Migrate(context.Background()))
}

func TestNewRunRecord(t *testing.T) {
	run := testRun("ignored", time.Time{})
	rec := NewRunRecord(run.Params, run.Config, run.Result, run.Metrics)

	assert.Len(t, rec.ID, 36)
	assert.NotEqual(t, rec.ID, NewRunRecord(run.Params, run.Config, run.Result, run.Metrics).ID)
	assert.Equal(t, "MA Cross Strategy", rec.Strategy)
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, "1h", rec.Timeframe)
	assert.WithinDuration(t, time.Now(), rec.CreatedAt, time.Minute)
	assert.Equal(t, rec.CreatedAt, rec.CreatedAt.Truncate(time.Millisecond))
}

func TestRebind(t *testing.T) {
	pg := &Default{dialect: postgres}
	lite := &Default{dialect: sqlite}
	q := `SELECT * FROM t WHERE a = $1 AND b IN ($2, $10) AND c = '$'`
	assert.Equal(t, q, pg.rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = ? AND b IN (?, ?) AND c = '$'`, lite.rebind(q))
}

func TestSchemaStatements(t *testing.T) {
	stmts := SchemaStatements()
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS candles")
	assert.Contains(t, stmts[2], "CREATE TABLE IF NOT EXISTS backtest_runs")
}
