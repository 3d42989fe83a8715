package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/amirphl/simple-backtest/internal/cleaner"
	"github.com/amirphl/simple-backtest/internal/config"
	"github.com/amirphl/simple-backtest/internal/db"
	"github.com/amirphl/simple-backtest/internal/feed"
	"github.com/amirphl/simple-backtest/internal/notifier"
	"github.com/amirphl/simple-backtest/internal/report"
	"github.com/amirphl/simple-backtest/internal/runner"
	"github.com/amirphl/simple-backtest/internal/sweep"
	backtesthttp "github.com/amirphl/simple-backtest/internal/transport/http/backtest"
	"github.com/amirphl/simple-backtest/internal/utils"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()
	utils.SetOutput(io.MultiWriter(os.Stdout, logFile))
	logger := utils.GetLogger()
	logger.Println("Starting Simple Backtest in mode:", cfg.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	upstream, err := feed.New(cfg.Feed)
	if err != nil {
		logger.Fatalf("Failed to create candle source: %v", err)
	}
	source := feed.NewCached(upstream, store)
	run := runner.New(source, cleaner.New(cfg.Cleaner), store)

	var notify notifier.Notifier
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notify = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotificationRetries, cfg.NotificationDelay)
	}

	switch cfg.Mode {
	case config.ModeBacktest:
		err = runBacktest(ctx, cfg, run, notify)
	case config.ModeSweep:
		err = runSweep(ctx, cfg, run, store, notify)
	case config.ModeServe:
		err = serve(ctx, cfg, run, store)
	default:
		err = fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
	if err != nil {
		logger.Printf("%s failed: %v", cfg.Mode, err)
		if notify != nil {
			_ = notify.Send(fmt.Sprintf("simple-backtest %s failed: %v", cfg.Mode, err))
		}
		os.Exit(1)
	}
	logger.Println("Shutdown complete")
}

func openStorage(ctx context.Context, cfg config.Config) (db.Storage, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pg, err := db.NewPostgres(ctx, cfg.DBConnStr)
		if err != nil {
			return nil, err
		}
		pg.GetDB().SetMaxOpenConns(cfg.DBMaxOpen)
		pg.GetDB().SetMaxIdleConns(cfg.DBMaxIdle)
		utils.GetLogger().Println("Running database migrations...")
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		utils.GetLogger().Println("Connected to Postgres")
		return pg, nil
	case config.DriverSQLite:
		return db.NewSQLite(ctx, cfg.SQLitePath)
	default:
		return db.NewMemory(), nil
	}
}

func request(cfg config.Config) runner.Request {
	return runner.Request{
		Symbol:    cfg.Symbol,
		Timeframe: cfg.Timeframe,
		Aggregate: cfg.Aggregate,
		Start:     cfg.From,
		End:       cfg.To,
		Strategy:  cfg.StrategyConfig(),
		Backtest:  cfg.BacktestConfig(),
	}
}

func runBacktest(ctx context.Context, cfg config.Config, run *runner.Runner, notify notifier.Notifier) error {
	out, err := run.Run(ctx, request(cfg))
	if err != nil {
		return err
	}
	rec := out.Record
	report.LogSummary(rec.Result, rec.Metrics, rec.Params)

	if err := saveReports(cfg, rec); err != nil {
		return err
	}
	if notify != nil {
		if err := notifier.SendRunSummary(notify, rec); err != nil {
			utils.GetLogger().Printf("Notifier | %v", err)
		}
	}
	return nil
}

func saveReports(cfg config.Config, rec db.RunRecord) error {
	if !cfg.WriteCSV && !cfg.WriteHTML {
		return nil
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	prefix := filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s_%s", rec.Symbol, rec.Timeframe, rec.ID[:8]))

	if cfg.WriteCSV {
		if err := report.SaveCSV(prefix+"_trades.csv", report.TradeRows(rec.Result.Trades)); err != nil {
			return err
		}
		if err := report.SaveCSV(prefix+"_equity.csv", report.EquityRows(rec.Result, rec.Metrics)); err != nil {
			return err
		}
	}
	if cfg.WriteHTML {
		f, err := os.Create(prefix + ".html")
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.RenderHTML(f, rec.Result, rec.Metrics); err != nil {
			return err
		}
		utils.GetLogger().Printf("Report | Saved chart to %s", f.Name())
	}
	return nil
}

func runSweep(ctx context.Context, cfg config.Config, run *runner.Runner, store db.RunStorage, notify notifier.Notifier) error {
	req := request(cfg)
	if err := req.Validate(); err != nil {
		return err
	}
	bars, cleanReport, err := run.Fetch(ctx, req)
	if err != nil {
		return err
	}
	utils.GetLogger().Printf("Sweep | [%s %s] Cleaned bars: %s", cfg.Symbol, cfg.Timeframe, cleanReport)

	grid := sweep.Grid(cfg.SweepFast, cfg.SweepSlow, cfg.Strategy.MACross.HistoryMargin)
	outcomes, err := sweep.Run(ctx, bars, grid, cfg.BacktestConfig(), cfg.SweepWorkers)
	if err != nil {
		return err
	}

	rows := [][]string{{"fast", "slow", "total_return", "sharpe", "max_drawdown", "trades"}}
	for _, o := range outcomes {
		utils.GetLogger().Printf("Sweep | fast=%d slow=%d return=%.2f%% sharpe=%.4f maxDD=%.2f%% trades=%d",
			o.Params.FastPeriod, o.Params.SlowPeriod, o.Result.TotalReturn, o.Metrics.SharpeRatio,
			o.Metrics.MaxDrawdown*100, o.Result.TotalTrades)
		rows = append(rows, []string{
			strconv.Itoa(o.Params.FastPeriod),
			strconv.Itoa(o.Params.SlowPeriod),
			strconv.FormatFloat(o.Result.TotalReturn, 'f', 4, 64),
			strconv.FormatFloat(o.Metrics.SharpeRatio, 'f', 6, 64),
			strconv.FormatFloat(o.Metrics.MaxDrawdown, 'f', 6, 64),
			strconv.Itoa(o.Result.TotalTrades),
		})
	}
	if cfg.WriteCSV {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return err
		}
		name := fmt.Sprintf("%s_%s_sweep.csv", cfg.Symbol, cfg.Timeframe)
		if err := report.SaveCSV(filepath.Join(cfg.OutputDir, name), rows); err != nil {
			return err
		}
	}

	best, ok := sweep.Best(outcomes)
	if !ok {
		return nil
	}
	params := map[string]float64{
		"fast_period":    float64(best.Params.FastPeriod),
		"slow_period":    float64(best.Params.SlowPeriod),
		"history_margin": float64(best.Params.HistoryMargin),
	}
	rec := db.NewRunRecord(params, cfg.BacktestConfig(), best.Result, best.Metrics)
	if err := store.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("saving best run: %w", err)
	}
	utils.GetLogger().Printf("Sweep | Best of %d: fast=%d slow=%d sharpe=%.4f run=%s",
		len(outcomes), best.Params.FastPeriod, best.Params.SlowPeriod, best.Metrics.SharpeRatio, rec.ID)
	report.LogSummary(best.Result, best.Metrics, params)

	if err := saveReports(cfg, rec); err != nil {
		return err
	}
	if notify != nil {
		if err := notifier.SendRunSummary(notify, rec); err != nil {
			utils.GetLogger().Printf("Notifier | %v", err)
		}
	}
	return nil
}

func serve(ctx context.Context, cfg config.Config, run *runner.Runner, store db.RunStorage) error {
	srv, err := backtesthttp.NewServer(backtesthttp.Config{Addr: cfg.HTTPAddr, Runner: run, Store: store})
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
