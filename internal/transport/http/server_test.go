package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tradelab/internal/backtest"
	"tradelab/internal/journal"
	"tradelab/internal/market"
	"tradelab/internal/playbook"
)

const testPlaybooks = `
playbooks:
  rsi_reversal:
    description: RSI 超卖反转
    rules: |
      BUY when RSI < 30
      SELL when RSI > 70
    stop_loss_pct: 2
    take_profit_pct: 4
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	results, err := backtest.NewResultStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = results.Close() })

	store, err := journal.NewStore(filepath.Join(dir, "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pbPath := filepath.Join(dir, "playbooks.yaml")
	require.NoError(t, os.WriteFile(pbPath, []byte(testPlaybooks), 0o644))
	registry, err := playbook.NewRegistry(pbPath)
	require.NoError(t, err)

	engine := backtest.NewEngine(backtest.EngineConfig{
		Synth:   market.SynthConfig{BasePrice: 100, JitterPct: 1, DriftPct: 0.8, WickPct: 0.5},
		Results: results,
	})
	srv, err := NewServer(Config{
		Engine:    engine,
		Results:   results,
		Journal:   store,
		Playbooks: registry,
	})
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestRiskComputeEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/risk/compute", map[string]any{
		"symbol":          "BTCUSDT",
		"account_balance": 10000,
		"entry_price":     100,
		"stop_loss_price": 95,
		"target_price":    115,
		"direction":       "long",
		"method":          "fixed_percentage",
		"risk_percent":    1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := rec.Body.String()
	assert.InDelta(t, 100.0, gjson.Get(body, "result.risk_amount").Float(), 1e-9)
	assert.InDelta(t, 20.0, gjson.Get(body, "result.position_size_asset").Float(), 1e-9)
	assert.InDelta(t, 3.0, gjson.Get(body, "result.reward_risk_ratio").Float(), 1e-9)
	assert.InDelta(t, 115.0, gjson.Get(body, "result.take_profits.2.price").Float(), 1e-9)
}

func TestRiskComputeValidation(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/risk/compute", map[string]any{
		"symbol":          "BTCUSDT",
		"account_balance": 10000,
		"entry_price":     100,
		"stop_loss_price": 105, // 做多止损高于入场
		"target_price":    115,
		"direction":       "long",
		"risk_percent":    1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimeframesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/timeframes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tfs := gjson.Get(rec.Body.String(), "timeframes").Array()
	assert.Len(t, tfs, 8)
}

func TestPlaybooksEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/playbooks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "playbooks.rsi_reversal").Exists())
}

func TestJournalCRUD(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/journal", map[string]any{
		"symbol": "btcusdt",
		"notes":  "计划单",
		"risk": map[string]any{
			"account_balance": 10000,
			"entry_price":     100,
			"stop_loss_price": 95,
			"target_price":    115,
			"direction":       "long",
			"risk_percent":    1,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := gjson.Get(rec.Body.String(), "entry.id").Int()
	require.NotZero(t, id)
	assert.InDelta(t, 100.0, gjson.Get(rec.Body.String(), "entry.risk.risk_amount").Float(), 1e-9)

	rec = doJSON(t, srv, http.MethodGet, "/api/journal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gjson.Get(rec.Body.String(), "entries").Array(), 1)

	rec = doJSON(t, srv, http.MethodPatch, "/api/journal/1", map[string]any{"status": "open"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "open", gjson.Get(rec.Body.String(), "entry.status").String())

	rec = doJSON(t, srv, http.MethodDelete, "/api/journal/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/journal/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func backtestRequest() map[string]any {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	return map[string]any{
		"symbol":          "BTCUSDT",
		"timeframe":       "1h",
		"start_ts":        start,
		"end_ts":          end,
		"initial_balance": 10000,
		"rules":           "BUY when RSI < 30\nSELL when RSI > 70",
		"stop_loss_pct":   2,
		"take_profit_pct": 4,
		"seed":            42,
	}
}

func TestBacktestRunAndQueryEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", backtestRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	runID := gjson.Get(body, "report.run.id").String()
	require.NotEmpty(t, runID)
	assert.EqualValues(t, 42, gjson.Get(body, "report.run.seed").Int())

	rec = doJSON(t, srv, http.MethodGet, "/api/backtest/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, runID, gjson.Get(rec.Body.String(), "runs.0.id").String())

	rec = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+runID+"/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+runID+"/equity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, gjson.Get(rec.Body.String(), "equity").Array())

	rec = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+runID+"/chart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "BTCUSDT")
}

func TestBacktestRunWithPlaybook(t *testing.T) {
	srv := newTestServer(t)

	req := backtestRequest()
	delete(req, "rules")
	req["stop_loss_pct"] = 0
	req["take_profit_pct"] = 0
	req["playbook"] = "rsi_reversal"

	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, gjson.Get(body, "report.run.rules").String(), "BUY when RSI < 30")
	assert.InDelta(t, 2.0, gjson.Get(body, "report.run.stop_loss_pct").Float(), 1e-9)

	req["playbook"] = "missing"
	rec = doJSON(t, srv, http.MethodPost, "/api/backtest/runs", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBacktestInsufficientDataMapsTo422(t *testing.T) {
	srv := newTestServer(t)

	req := backtestRequest()
	req["end_ts"] = req["start_ts"].(int64) + 5*3600_000

	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestBacktestValidationMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	req := backtestRequest()
	req["timeframe"] = "7m"

	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunInsightDisabled(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/backtest/runs/whatever/insight", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
