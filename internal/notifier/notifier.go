// Package notifier
package notifier

import (
	"fmt"

	"github.com/amirphl/simple-backtest/internal/db"
)

// Notifier interface for sending notifications (e.g., Telegram, email).
type Notifier interface {
	Send(msg string) error
	SendWithRetry(msg string) error
	RetryWithNotification(action func() error, description string) error
}

// RunMessage formats a finished run as a short chat message.
func RunMessage(rec db.RunRecord) string {
	r, m := rec.Result, rec.Metrics
	return fmt.Sprintf(
		"Backtest %s finished\n%s %s %s\nReturn: %.2f%%\nTrades: %d (W %d / L %d)\nMax drawdown: %.2f%%\nSharpe: %.4f\nRun: %s",
		rec.Strategy, r.Symbol, r.Timeframe, rec.CreatedAt.Format("2006-01-02 15:04 MST"),
		r.TotalReturn, r.TotalTrades, r.WinningTrades, r.LosingTrades,
		m.MaxDrawdown*100, m.SharpeRatio, rec.ID)
}

// SendRunSummary sends RunMessage(rec) through n with retries.
func SendRunSummary(n Notifier, rec db.RunRecord) error {
	return n.SendWithRetry(RunMessage(rec))
}
