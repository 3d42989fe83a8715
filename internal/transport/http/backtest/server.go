// Package backtesthttp exposes backtest runs over HTTP.
package backtesthttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/amirphl/simple-backtest/internal/analysis"
	"github.com/amirphl/simple-backtest/internal/backtest"
	"github.com/amirphl/simple-backtest/internal/db"
	"github.com/amirphl/simple-backtest/internal/runner"
	"github.com/amirphl/simple-backtest/internal/strategy"
	"github.com/amirphl/simple-backtest/internal/tfutils"
	"github.com/amirphl/simple-backtest/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultAddr      = ":8080"
	defaultListLimit = 50
	maxListLimit     = 500
)

// RunRequest is the body of POST /api/backtest/run. Omitted fields keep the
// defaults of defaultRunRequest.
type RunRequest struct {
	Symbol       string  `json:"symbol" binding:"required"`
	Interval     string  `json:"interval" binding:"required"`
	Limit        int     `json:"limit" binding:"min=100,max=5000"`
	StrategyName string  `json:"strategy_name"`
	FastPeriod   int     `json:"fast_period" binding:"min=2,max=100"`
	SlowPeriod   int     `json:"slow_period" binding:"min=5,max=200"`
	PositionSize float64 `json:"position_size" binding:"gte=0.1,lte=1"`

	InitialCapital float64 `json:"initial_capital" binding:"gt=0"`
	CommissionRate float64 `json:"commission_rate" binding:"gte=0,lte=0.01"`
	SlippageRate   float64 `json:"slippage_rate" binding:"gte=0,lte=0.01"`
}

func defaultRunRequest() RunRequest {
	return RunRequest{
		Symbol:         "BTCUSDT",
		Interval:       "1h",
		Limit:          500,
		StrategyName:   strategy.NameMACross,
		FastPeriod:     10,
		SlowPeriod:     30,
		PositionSize:   1.0,
		InitialCapital: 10000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
	}
}

// TradeInfo is one trade in a RunResponse.
type TradeInfo struct {
	Timestamp int64   `json:"timestamp"`
	Signal    string  `json:"signal"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	PnL       float64 `json:"pnl"`
}

type RunResponse struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	RunID          string           `json:"run_id"`
	InitialCapital float64          `json:"initial_capital"`
	FinalEquity    float64          `json:"final_equity"`
	TotalReturn    float64          `json:"total_return"`
	TotalTrades    int              `json:"total_trades"`
	WinningTrades  int              `json:"winning_trades"`
	LosingTrades   int              `json:"losing_trades"`
	EquityCurve    []float64        `json:"equity_curve"`
	DrawdownCurve  []float64        `json:"drawdown_curve"`
	Timestamps     []int64          `json:"timestamps"`
	Trades         []TradeInfo      `json:"trades"`
	Metrics        analysis.Metrics `json:"metrics"`
}

// RunSummary is one entry of GET /api/backtest/runs.
type RunSummary struct {
	ID          string             `json:"id"`
	CreatedAt   time.Time          `json:"created_at"`
	Strategy    string             `json:"strategy"`
	Symbol      string             `json:"symbol"`
	Timeframe   string             `json:"timeframe"`
	Params      map[string]float64 `json:"params"`
	TotalReturn float64            `json:"total_return"`
	TotalTrades int                `json:"total_trades"`
	MaxDrawdown float64            `json:"max_drawdown"`
	SharpeRatio float64            `json:"sharpe_ratio"`
}

type Config struct {
	Addr   string
	Runner *runner.Runner
	Store  db.RunStorage
}

type Server struct {
	addr   string
	runner *runner.Runner
	store  db.RunStorage
	router *gin.Engine
	now    func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:   cfg.Addr,
		runner: cfg.Runner,
		store:  cfg.Store,
		router: router,
		now:    time.Now,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	api := s.router.Group("/api/backtest")
	api.POST("/run", s.handleRun)
	api.GET("/strategies", s.handleStrategies)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
}

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleRun(c *gin.Context) {
	req := defaultRunRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	runReq, err := s.toRunnerRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := s.runner.Run(c.Request.Context(), runReq)
	if err != nil {
		utils.GetLogger().Printf("HTTP | [%s %s] Backtest failed: %v", req.Symbol, req.Interval, err)
		status := http.StatusInternalServerError
		if errors.Is(err, backtest.ErrNoData) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": fmt.Sprintf("backtest failed: %v", err)})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(out.Record))
}

func (s *Server) toRunnerRequest(req RunRequest) (runner.Request, error) {
	if req.FastPeriod >= req.SlowPeriod {
		return runner.Request{}, fmt.Errorf("fast_period %d must be smaller than slow_period %d", req.FastPeriod, req.SlowPeriod)
	}
	d := tfutils.GetTimeframeDuration(req.Interval)
	if d == 0 {
		return runner.Request{}, fmt.Errorf("%w: %s", tfutils.ErrUnsupportedTimeframe, req.Interval)
	}

	stratCfg := strategy.DefaultConfig()
	if req.StrategyName != "" {
		stratCfg.Name = req.StrategyName
	}
	stratCfg.MACross.FastPeriod = req.FastPeriod
	stratCfg.MACross.SlowPeriod = req.SlowPeriod

	end := s.now().UTC().Truncate(d)
	return runner.Request{
		Symbol:    req.Symbol,
		Timeframe: req.Interval,
		Start:     end.Add(-d * time.Duration(req.Limit)),
		End:       end,
		Strategy:  stratCfg,
		Backtest: backtest.Config{
			InitialCapital:   req.InitialCapital,
			CommissionRate:   req.CommissionRate,
			SlippageRate:     req.SlippageRate,
			PositionFraction: req.PositionSize,
		},
	}, nil
}

func toRunResponse(rec db.RunRecord) RunResponse {
	trades := make([]TradeInfo, 0, len(rec.Result.Trades))
	for _, t := range rec.Result.Trades {
		trades = append(trades, TradeInfo{
			Timestamp: t.Timestamp,
			Signal:    t.Signal.String(),
			Price:     t.Price,
			Quantity:  t.Quantity,
			PnL:       t.PnL,
		})
	}
	return RunResponse{
		Success:        true,
		Message:        "backtest finished",
		RunID:          rec.ID,
		InitialCapital: rec.Result.InitialCapital,
		FinalEquity:    rec.Result.FinalEquity,
		TotalReturn:    rec.Result.TotalReturn,
		TotalTrades:    rec.Result.TotalTrades,
		WinningTrades:  rec.Result.WinningTrades,
		LosingTrades:   rec.Result.LosingTrades,
		EquityCurve:    rec.Result.EquityCurve,
		DrawdownCurve:  rec.Metrics.DrawdownCurve,
		Timestamps:     rec.Result.Timestamps,
		Trades:         trades,
		Metrics:        rec.Metrics,
	}
}

func (s *Server) handleStrategies(c *gin.Context) {
	defaults := strategy.DefaultConfig()
	c.JSON(http.StatusOK, gin.H{"strategies": []gin.H{
		{
			"name":        strategy.NameMACross,
			"description": "Fast/slow simple moving average crossover",
			"parameters": gin.H{
				"fast_period":   gin.H{"type": "int", "default": defaults.MACross.FastPeriod, "min": 2, "max": 100},
				"slow_period":   gin.H{"type": "int", "default": defaults.MACross.SlowPeriod, "min": 5, "max": 200},
				"position_size": gin.H{"type": "float", "default": backtest.DefaultConfig().PositionFraction, "min": 0.1, "max": 1.0},
			},
		},
		{"name": strategy.NameRSI, "description": "RSI oversold/overbought reversion"},
		{"name": strategy.NameMACD, "description": "MACD line and signal line crossover"},
	}})
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run storage is not configured"})
		return
	}
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxListLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be in [1, %d]", maxListLimit)})
			return
		}
		limit = v
	}

	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	list := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		list = append(list, RunSummary{
			ID:          r.ID,
			CreatedAt:   r.CreatedAt,
			Strategy:    r.Strategy,
			Symbol:      r.Symbol,
			Timeframe:   r.Timeframe,
			Params:      r.Params,
			TotalReturn: r.Result.TotalReturn,
			TotalTrades: r.Result.TotalTrades,
			MaxDrawdown: r.Metrics.MaxDrawdown,
			SharpeRatio: r.Metrics.SharpeRatio,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": list})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run storage is not configured"})
		return
	}
	rec, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": rec})
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	utils.GetLogger().Printf("HTTP | Listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
