// Package report renders backtest results as CSV, text and HTML charts.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/utils"
	"github.com/shopspring/decimal"
)

const (
	pricePlaces    = 8
	quantityPlaces = 8
	moneyPlaces    = 2
	ratioPlaces    = 6
)

var (
	tradesHeader = []string{"time", "timestamp", "symbol", "signal", "price", "quantity", "pnl"}
	equityHeader = []string{"time", "timestamp", "equity", "drawdown"}
)

// fixed formats v with exactly places decimals without exponent notation.
func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).StringFixed(places)
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func TradeRows(trades []strategy.Trade) [][]string {
	rows := make([][]string, 0, len(trades)+1)
	rows = append(rows, tradesHeader)
	for _, t := range trades {
		rows = append(rows, []string{
			formatTime(t.Timestamp),
			strconv.FormatInt(t.Timestamp, 10),
			t.Symbol,
			t.Signal.String(),
			fixed(t.Price, pricePlaces),
			fixed(t.Quantity, quantityPlaces),
			fixed(t.PnL, moneyPlaces),
		})
	}
	return rows
}

// EquityRows pairs every equity point with its drawdown. Metrics from a
// different run are ignored and the drawdown column is left empty.
func EquityRows(result backtest.Result, metrics analysis.Metrics) [][]string {
	rows := make([][]string, 0, len(result.EquityCurve)+1)
	rows = append(rows, equityHeader)
	aligned := len(metrics.DrawdownCurve) == len(result.EquityCurve)
	for i, equity := range result.EquityCurve {
		var ts int64
		if i < len(result.Timestamps) {
			ts = result.Timestamps[i]
		}
		dd := ""
		if aligned {
			dd = fixed(metrics.DrawdownCurve[i], ratioPlaces)
		}
		rows = append(rows, []string{
			formatTime(ts),
			strconv.FormatInt(ts, 10),
			fixed(equity, moneyPlaces),
			dd,
		})
	}
	return rows
}

func WriteTradesCSV(w io.Writer, trades []strategy.Trade) error {
	return writeCSV(w, TradeRows(trades))
}

func WriteEquityCSV(w io.Writer, result backtest.Result, metrics analysis.Metrics) error {
	return writeCSV(w, EquityRows(result, metrics))
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("Report | writing csv: %w", err)
	}
	return nil
}

// SaveCSV writes rows to filename, replacing it.
func SaveCSV(filename string, rows [][]string) error {
	f, err := os.Create(filename)
	if err != nil {
		utils.GetLogger().Printf("Report | Error creating CSV file %s: %v", filename, err)
		return err
	}
	defer f.Close()

	if err := writeCSV(f, rows); err != nil {
		utils.GetLogger().Printf("Report | Error writing to CSV file %s: %v", filename, err)
		return err
	}

	utils.GetLogger().Printf("Report | Saved results to %s", filename)
	return nil
}
