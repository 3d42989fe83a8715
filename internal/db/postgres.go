package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/db/conf"
	_ "github.com/lib/pq"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

type dialect int

const (
	postgres dialect = iota
	sqlite
)

// Default is the SQL backed Storage. Queries are written with PostgreSQL
// placeholders and rebound for SQLite.
type Default struct {
	db      *sql.DB
	dialect dialect
}

var _ Storage = (*Default)(nil)

func New(c conf.Config) (*Default, error) {
	if c.DB == nil {
		return nil, errors.New("database handle is nil")
	}
	return &Default{db: c.DB, dialect: postgres}, nil
}

// NewPostgres opens a PostgreSQL connection with lib/pq.
func NewPostgres(ctx context.Context, connStr string) (*Default, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return New(conf.Config{DB: db, ConnStr: connStr})
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

func (p *Default) Close() error {
	return p.db.Close()
}

// rebind turns $1, $2, ... into ? for SQLite.
func (p *Default) rebind(query string) string {
	if p.dialect != sqlite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// executeWithTransaction executes a function with proper transaction management
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = p.rebind(query)
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Default) queryRowWithTransaction(ctx context.Context, query string, args ...any) *sql.Row {
	query = p.rebind(query)
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return p.db.QueryRowContext(ctx, query, args...)
}

// -------- Candles --------

const candleColumns = `symbol, timeframe, timestamp, exchange, open, high, low, close, volume, quote_volume, trade_count, quality`

func (p *Default) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d for %s %s at %d: %w",
				i, candles[i].Symbol, candles[i].Timeframe, candles[i].Timestamp, err)
		}
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, p.rebind(`
		INSERT INTO candles (`+candleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (symbol, timeframe, timestamp, exchange) DO UPDATE SET
			open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
			close=EXCLUDED.close, volume=EXCLUDED.volume, quote_volume=EXCLUDED.quote_volume,
			trade_count=EXCLUDED.trade_count, quality=EXCLUDED.quality`))
		if err != nil {
			return fmt.Errorf("failed to prepare candle insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range candles {
			_, err := stmt.ExecContext(ctx,
				c.Symbol, c.Timeframe, c.Timestamp, c.Exchange,
				c.Open, c.High, c.Low, c.Close, c.Volume, c.QuoteVolume, c.TradeCount, int(c.Quality))
			if err != nil {
				return fmt.Errorf("failed to save candle for %s %s at %d: %w", c.Symbol, c.Timeframe, c.Timestamp, err)
			}
		}
		return nil
	})
}

func (p *Default) GetCandles(ctx context.Context, symbol, timeframe string, start, end int64) ([]candle.Candle, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT `+candleColumns+`
		FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC, exchange ASC`,
		symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s %s: %w", symbol, timeframe, err)
	}
	defer rows.Close()

	candles := []candle.Candle{}
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle for %s %s: %w", symbol, timeframe, err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candles for %s %s: %w", symbol, timeframe, err)
	}
	return candles, nil
}

// GetLatestCandle returns nil when nothing is stored for the pair.
func (p *Default) GetLatestCandle(ctx context.Context, symbol, timeframe string) (*candle.Candle, error) {
	row := p.queryRowWithTransaction(ctx, `
		SELECT `+candleColumns+`
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY timestamp DESC
		LIMIT 1`,
		symbol, timeframe)

	c, err := scanCandle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest candle for %s %s: %w", symbol, timeframe, err)
	}
	return &c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandle(s scanner) (candle.Candle, error) {
	var c candle.Candle
	var quality int
	err := s.Scan(&c.Symbol, &c.Timeframe, &c.Timestamp, &c.Exchange,
		&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.QuoteVolume, &c.TradeCount, &quality)
	c.Quality = candle.Quality(quality)
	return c, err
}

// -------- Runs --------

func (p *Default) SaveRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal run params: %w", err)
	}
	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal run config: %w", err)
	}
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal run metrics: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, p.rebind(`
		INSERT INTO backtest_runs (id, created_at, strategy, symbol, timeframe, params, config, result, metrics)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			strategy=EXCLUDED.strategy, symbol=EXCLUDED.symbol, timeframe=EXCLUDED.timeframe,
			params=EXCLUDED.params, config=EXCLUDED.config, result=EXCLUDED.result, metrics=EXCLUDED.metrics`),
			run.ID, run.CreatedAt.UnixMilli(), run.Strategy, run.Symbol, run.Timeframe,
			string(params), string(config), string(result), string(metrics))
		if err != nil {
			return fmt.Errorf("failed to save run %s: %w", run.ID, err)
		}
		return nil
	})
}

const runColumns = `id, created_at, strategy, symbol, timeframe, params, config, result, metrics`

func (p *Default) GetRun(ctx context.Context, id string) (RunRecord, error) {
	row := p.queryRowWithTransaction(ctx, `SELECT `+runColumns+` FROM backtest_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

func (p *Default) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM backtest_runs ORDER BY created_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := p.queryWithTransaction(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(s scanner) (RunRecord, error) {
	var run RunRecord
	var createdAt int64
	var params, config, result, metrics string
	if err := s.Scan(&run.ID, &createdAt, &run.Strategy, &run.Symbol, &run.Timeframe,
		&params, &config, &result, &metrics); err != nil {
		return RunRecord{}, err
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()

	for name, field := range map[string]struct {
		raw string
		dst any
	}{
		"params":  {params, &run.Params},
		"config":  {config, &run.Config},
		"result":  {result, &run.Result},
		"metrics": {metrics, &run.Metrics},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.dst); err != nil {
			return RunRecord{}, fmt.Errorf("failed to unmarshal run %s %s: %w", run.ID, name, err)
		}
	}
	return run, nil
}
