package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhalloran/indexarb/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	underlying := "symbol,time,open,high,low,close,volume\n"
	trades := "symbol,strike,right,time,open,high,low,close,volume\n"
	for _, minute := range []string{"30", "31", "32", "33", "34", "35"} {
		ts := "2024-01-02 14:" + minute + ":00"
		underlying += "SPY," + ts + ",600,600,600,600,1000\n"
		underlying += "SPX," + ts + ",6000,6000,6000,6000,1000\n"
		trades += "SPY,600,C," + ts + ",2.40,2.40,2.40,2.40,50\n"
		trades += "SPX,6000,C," + ts + ",24.50,24.50,24.50,24.50,50\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "underlying_prices_20240102.csv"), []byte(underlying), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "options_data_20240102.csv"), []byte(trades), 0o644))

	cfg := &config.Config{}
	cfg.Data.Dir = dir
	cfg.Pair.Sym1 = "SPY"
	cfg.Pair.Sym2 = "SPX"
	cfg.Pair.StrategyType = "full"
	cfg.Pair.CallDirection = "sell_sym2_buy_sym1"
	cfg.Pair.PutDirection = "sell_sym1_buy_sym2"
	cfg.Scanner.MinVolume = 10
	cfg.Scanner.Workers = 2
	cfg.Dashboard.Port = 9000

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	srv, err := NewServer(cfg, nil, logger)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, testServer(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestDates(t *testing.T) {
	rec := get(t, testServer(t), "/api/dates")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Dates []string `json:"dates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"2024-01-02"}, body.Dates)
}

func TestPairs(t *testing.T) {
	rec := get(t, testServer(t), "/api/pairs?date=20240102")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Date  string `json:"date"`
		Pairs []struct {
			Label string `json:"label"`
			Sym1  string `json:"sym1"`
			Sym2  string `json:"sym2"`
		} `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-01-02", body.Date)
	require.Len(t, body.Pairs, 1)
	assert.Equal(t, "SPY", body.Pairs[0].Sym1)
	assert.Equal(t, "SPX", body.Pairs[0].Sym2)
}

func TestScanEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/scan?date=20240102&right=C")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		PairsConsidered int               `json:"pairs_considered"`
		BySafety        []json.RawMessage `json:"by_safety"`
		Partial         bool              `json:"partial"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.PairsConsidered)
	assert.Len(t, body.BySafety, 1)
	assert.False(t, body.Partial)
}

func TestScanEndpoint_DefaultsToNewestDate(t *testing.T) {
	rec := get(t, testServer(t), "/api/scan")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScanEndpoint_BadRight(t *testing.T) {
	rec := get(t, testServer(t), "/api/scan?date=20240102&right=X")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanEndpoint_UnknownDate(t *testing.T) {
	rec := get(t, testServer(t), "/api/scan?date=20990101")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDivergenceEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/divergence?date=20240102")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Date   string            `json:"date"`
		Points []json.RawMessage `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-01-02", body.Date)
	assert.Len(t, body.Points, 6)
}

func TestHistoryDisabled(t *testing.T) {
	rec := get(t, testServer(t), "/api/history")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	// A scan populates the collectors first.
	get(t, srv, "/api/scan?date=20240102&right=C")

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arb_scans_total")
	assert.Contains(t, rec.Body.String(), "arb_scan_duration_seconds")
}
