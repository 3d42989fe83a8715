package backtesthttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/simple-backtest/internal/candle"
	"github.com/amirphl/simple-backtest/internal/db"
	"github.com/amirphl/simple-backtest/internal/runner"
	"github.com/amirphl/simple-backtest/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	utils.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

type waveSource struct {
	err  error
	from time.Time
	to   time.Time
}

func (w *waveSource) Name() string { return "wave" }

func (w *waveSource) FetchCandles(_ context.Context, symbol, timeframe string, from, to time.Time) ([]candle.Candle, error) {
	w.from, w.to = from, to
	if w.err != nil {
		return nil, w.err
	}
	var out []candle.Candle
	for i, ts := 0, from; ts.Before(to); i, ts = i+1, ts.Add(time.Hour) {
		c := 100 + 15*math.Sin(float64(i)/10)
		out = append(out, candle.Candle{
			Timestamp: ts.UnixMilli(), Symbol: symbol, Exchange: "wave", Timeframe: timeframe,
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 5,
		})
	}
	return out, nil
}

func newTestServer(t *testing.T, src *waveSource) (*Server, *db.MemoryStorage) {
	t.Helper()
	store := db.NewMemory()
	s, err := NewServer(Config{Runner: runner.New(src, nil, store), Store: store})
	require.NoError(t, err)
	s.now = func() time.Time { return fixedNow }
	return s, store
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer_RequiresRunner(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &waveSource{})
	w := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRun(t *testing.T) {
	src := &waveSource{}
	s, store := newTestServer(t, src)

	w := do(t, s, http.MethodPost, "/api/backtest/run", `{"symbol":"ETH/USDT","interval":"1h","limit":300,"fast_period":5,"slow_period":20}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, float64(10000), resp.InitialCapital)
	assert.Len(t, resp.EquityCurve, 301)
	assert.Len(t, resp.DrawdownCurve, 301)
	assert.Len(t, resp.Timestamps, 301)
	assert.Len(t, resp.Trades, resp.TotalTrades)

	end := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, end, src.to.UTC())
	assert.Equal(t, end.Add(-300*time.Hour), src.from.UTC())

	rec, err := store.GetRun(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", rec.Symbol)
	assert.Equal(t, float64(5), rec.Params["fast_period"])
	assert.Equal(t, 1.0, rec.Config.PositionFraction)
	assert.Equal(t, 0.0005, rec.Config.SlippageRate)
}

func TestRun_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"symbol":`},
		{"limit too small", `{"limit":10}`},
		{"limit too large", `{"limit":5001}`},
		{"fast too small", `{"fast_period":1}`},
		{"slow too large", `{"slow_period":201}`},
		{"fast not below slow", `{"fast_period":30,"slow_period":30}`},
		{"position size", `{"position_size":0.05}`},
		{"capital", `{"initial_capital":0}`},
		{"commission", `{"commission_rate":0.02}`},
		{"slippage", `{"slippage_rate":-0.1}`},
		{"empty symbol", `{"symbol":""}`},
		{"unknown interval", `{"interval":"7m"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &waveSource{})
			w := do(t, s, http.MethodPost, "/api/backtest/run", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestRun_Failures(t *testing.T) {
	s, _ := newTestServer(t, &waveSource{err: errors.New("exchange down")})
	w := do(t, s, http.MethodPost, "/api/backtest/run", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "exchange down")

	s, _ = newTestServer(t, &waveSource{})
	w = do(t, s, http.MethodPost, "/api/backtest/run", `{"strategy_name":"nope"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRunsEndpoints(t *testing.T) {
	s, _ := newTestServer(t, &waveSource{})

	var ids []string
	for range 3 {
		w := do(t, s, http.MethodPost, "/api/backtest/run", `{}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp RunResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		ids = append(ids, resp.RunID)
	}

	w := do(t, s, http.MethodGet, "/api/backtest/runs?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Runs []RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Runs, 2)

	w = do(t, s, http.MethodGet, "/api/backtest/runs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/backtest/runs/"+ids[0], "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Run db.RunRecord `json:"run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, ids[0], detail.Run.ID)

	w = do(t, s, http.MethodGet, "/api/backtest/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunsEndpoints_NoStore(t *testing.T) {
	s, err := NewServer(Config{Runner: runner.New(&waveSource{}, nil, nil)})
	require.NoError(t, err)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/backtest/runs", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/api/backtest/runs/x", "").Code)
}

func TestStrategies(t *testing.T) {
	s, _ := newTestServer(t, &waveSource{})
	w := do(t, s, http.MethodGet, "/api/backtest/strategies", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ma-cross"`)
	assert.Contains(t, w.Body.String(), `"fast_period"`)
}
