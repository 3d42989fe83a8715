// Package utils
package utils

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	logger *log.Logger
	once   sync.Once
)

// GetLogger returns the process wide logger. It writes to simple-backtest.log
// unless SetOutput was called first.
func GetLogger() *log.Logger {
	once.Do(func() {
		file, err := os.OpenFile("simple-backtest.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal(err)
		}
		logger = log.New(file, "Simple Backtest: ", log.LstdFlags)
	})
	return logger
}

// SetOutput redirects the logger. Tests use it to keep log files out of
// package directories.
func SetOutput(w io.Writer) {
	once.Do(func() {
		logger = log.New(w, "Simple Backtest: ", log.LstdFlags)
	})
	logger.SetOutput(w)
}
