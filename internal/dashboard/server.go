// Package dashboard serves the research API: recorded dates, on-demand
// scans, divergence series, persisted scan history, and Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mhalloran/indexarb/internal/config"
	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/history"
	"github.com/mhalloran/indexarb/internal/marketdata"
	"github.com/mhalloran/indexarb/internal/models"
	"github.com/mhalloran/indexarb/internal/normalize"
	"github.com/mhalloran/indexarb/internal/scanner"
)

// Server is the HTTP front end over the scanner and data loaders.
type Server struct {
	router   *chi.Mux
	server   *http.Server
	cfg      *config.Config
	strategy models.StrategyConfig
	store    *history.Store
	metrics  *Metrics
	logger   *logrus.Logger
}

// NewServer builds the server. store may be nil when history persistence
// is disabled.
func NewServer(cfg *config.Config, store *history.Store, logger *logrus.Logger) (*Server, error) {
	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}
	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		strategy: strategy,
		store:    store,
		metrics:  NewMetrics(),
		logger:   logger,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/dates", s.handleDates)
	s.router.Get("/api/pairs", s.handlePairs)
	s.router.Get("/api/scan", s.handleScan)
	s.router.Get("/api/divergence", s.handleDivergence)
	s.router.Get("/api/history", s.handleHistory)
	s.router.Get("/api/history/{id}", s.handleHistoryResults)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Dashboard.Port),
		Handler: s.router,
	}
	s.logger.Infof("Starting dashboard server on port %d", s.cfg.Dashboard.Port)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	dates, err := marketdata.ListDates(s.cfg.Data.Dir)
	if err != nil {
		s.writeError(w, err)
		return
	}
	formatted := make([]string, 0, len(dates))
	for _, d := range dates {
		formatted = append(formatted, d.Formatted())
	}
	s.writeJSON(w, map[string]any{"dates": formatted})
}

// handlePairs lists the canonical symbol pairs covered by the date's
// recorded underlying data.
func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	underlying, err := marketdata.LoadUnderlying(s.cfg.Data.Dir, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{
		"date":  date.Formatted(),
		"pairs": config.AvailablePairs(underlying.Symbols()),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	right := models.Right(r.URL.Query().Get("right"))
	if right == "" {
		right = models.RightCall
	}
	if right != models.RightCall && right != models.RightPut {
		s.writeError(w, fmt.Errorf("%w: right must be C or P", errs.ErrInvalidArgument))
		return
	}

	underlying, err := marketdata.LoadUnderlying(s.cfg.Data.Dir, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	trades, err := marketdata.LoadOptionTrades(s.cfg.Data.Dir, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	quotes, err := marketdata.LoadOptionQuotes(s.cfg.Data.Dir, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sym1Bars, sym2Bars := marketdata.SplitSymbols(underlying, s.strategy.Sym1, s.strategy.Sym2)

	out, err := scanner.Scan(r.Context(), scanner.Input{
		Trades:         trades,
		Quotes:         quotes,
		Sym1Underlying: sym1Bars,
		Sym2Underlying: sym2Bars,
		Right:          right,
		Config:         s.strategy,
		MinVolume:      s.cfg.Scanner.MinVolume,
		HideIlliquid:   s.cfg.Scanner.HideIlliquid,
		Workers:        s.cfg.Scanner.Workers,
	})
	if err != nil && out == nil {
		s.writeError(w, err)
		return
	}
	s.metrics.RecordScan(string(right), out.PairsConsidered, out.Partial, out.Duration)

	if s.store != nil && !out.Partial {
		if _, err := s.store.SaveRun(date.Formatted(), right, s.strategy.Sym1, s.strategy.Sym2, out); err != nil {
			s.logger.WithError(err).Warn("Failed to persist scan run")
		}
	}
	s.writeJSON(w, out)
}

func (s *Server) handleDivergence(w http.ResponseWriter, r *http.Request) {
	date, err := s.dateParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	underlying, err := marketdata.LoadUnderlying(s.cfg.Data.Dir, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sym1Bars, sym2Bars := marketdata.SplitSymbols(underlying, s.strategy.Sym1, s.strategy.Sym2)
	points := normalize.Divergence(sym1Bars, sym2Bars, s.strategy.QtyRatio)
	s.writeJSON(w, map[string]any{
		"date":   date.Formatted(),
		"sym1":   s.strategy.Sym1,
		"sym2":   s.strategy.Sym2,
		"points": points,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, fmt.Errorf("%w: history persistence is disabled", errs.ErrPreconditionNotMet))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleHistoryResults(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, fmt.Errorf("%w: history persistence is disabled", errs.ErrPreconditionNotMet))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: scan id must be an integer", errs.ErrInvalidArgument))
		return
	}
	results, err := s.store.RunResults(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"results": results})
}

// dateParam parses the required date query parameter, defaulting to the
// most recent recorded date when absent.
func (s *Server) dateParam(r *http.Request) (marketdata.DateID, error) {
	raw := r.URL.Query().Get("date")
	if raw != "" {
		return marketdata.ParseDateID(raw)
	}
	dates, err := marketdata.ListDates(s.cfg.Data.Dir)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		return "", fmt.Errorf("%w: no recorded dates under %s", errs.ErrNotFound, s.cfg.Data.Dir)
	}
	return dates[0], nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrPreconditionNotMet):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrInconsistentData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrDeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrCancelled):
		// Client went away; 499 by nginx convention.
		status = 499
	}
	s.logger.WithError(err).WithField("status", status).Warn("Request failed")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
