package db

import (
	"context"
	"fmt"
	"strings"
)

// Schema is kept in sync with scripts/schema.sql. Column types are chosen so
// the same statements run on PostgreSQL and SQLite.
const Schema = `
CREATE TABLE IF NOT EXISTS candles (
    symbol       TEXT             NOT NULL,
    timeframe    TEXT             NOT NULL,
    timestamp    BIGINT           NOT NULL,
    exchange     TEXT             NOT NULL DEFAULT '',
    open         DOUBLE PRECISION NOT NULL,
    high         DOUBLE PRECISION NOT NULL,
    low          DOUBLE PRECISION NOT NULL,
    close        DOUBLE PRECISION NOT NULL,
    volume       DOUBLE PRECISION NOT NULL DEFAULT 0,
    quote_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
    trade_count  BIGINT           NOT NULL DEFAULT 0,
    quality      SMALLINT         NOT NULL DEFAULT 0,
    PRIMARY KEY (symbol, timeframe, timestamp, exchange)
);

CREATE INDEX IF NOT EXISTS idx_candles_symbol_timeframe_timestamp
    ON candles (symbol, timeframe, timestamp);

CREATE TABLE IF NOT EXISTS backtest_runs (
    id         TEXT   PRIMARY KEY,
    created_at BIGINT NOT NULL,
    strategy   TEXT   NOT NULL,
    symbol     TEXT   NOT NULL,
    timeframe  TEXT   NOT NULL,
    params     TEXT   NOT NULL,
    config     TEXT   NOT NULL,
    result     TEXT   NOT NULL,
    metrics    TEXT   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_runs_created_at
    ON backtest_runs (created_at DESC);
`

// SchemaStatements splits Schema into individual statements.
func SchemaStatements() []string {
	var out []string
	for stmt := range strings.SplitSeq(Schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Migrate applies Schema. It is safe to run more than once.
func (p *Default) Migrate(ctx context.Context) error {
	for _, stmt := range SchemaStatements() {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", stmt, err)
		}
	}
	return nil
}
