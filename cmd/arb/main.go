// Command arb is the research CLI: list recorded dates, scan a day for
// matched strike pairs, analyze one position end to end, or serve the
// dashboard API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mhalloran/indexarb/internal/config"
	"github.com/mhalloran/indexarb/internal/dashboard"
	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/export"
	"github.com/mhalloran/indexarb/internal/history"
	"github.com/mhalloran/indexarb/internal/marketdata"
	"github.com/mhalloran/indexarb/internal/models"
	"github.com/mhalloran/indexarb/internal/position"
	"github.com/mhalloran/indexarb/internal/pricing"
	"github.com/mhalloran/indexarb/internal/scanner"
	"github.com/mhalloran/indexarb/internal/util"
)

type app struct {
	cfg      *config.Config
	strategy models.StrategyConfig
	logger   *logrus.Logger
}

func main() {
	var (
		configPath string
		mode       string
		dateFlag   string
		rightFlag  string
		entryFlag  string
		sym1Strike float64
		sym2Strike float64
		outPath    string
	)
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.StringVar(&mode, "mode", "scan", "Mode: scan | analyze | dates | serve")
	flag.StringVar(&dateFlag, "date", "", "Trading date (yyyymmdd); defaults to the most recent recorded date")
	flag.StringVar(&rightFlag, "right", "C", "Option right for scan mode: C | P")
	flag.StringVar(&entryFlag, "entry", "10:30", "Entry time (HH:MM Eastern) for analyze mode")
	flag.Float64Var(&sym1Strike, "sym1-strike", 0, "Sym1 strike for analyze mode")
	flag.Float64Var(&sym2Strike, "sym2-strike", 0, "Sym2 strike for analyze mode")
	flag.StringVar(&outPath, "out", "", "Write the JSON result to a file instead of stdout")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	strategy, err := cfg.Strategy()
	if err != nil {
		logger.Fatalf("Invalid pair configuration: %v", err)
	}
	a := &app{cfg: cfg, strategy: strategy, logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	switch mode {
	case "dates":
		err = a.runDates()
	case "scan":
		err = a.runScan(ctx, dateFlag, rightFlag, outPath)
	case "analyze":
		err = a.runAnalyze(dateFlag, entryFlag, sym1Strike, sym2Strike, outPath)
	case "serve":
		err = a.runServe(ctx)
	default:
		err = fmt.Errorf("%w: unknown mode %q", errs.ErrInvalidArgument, mode)
	}
	if err != nil {
		logger.Fatalf("%s failed: %v", mode, err)
	}
}

func (a *app) runDates() error {
	dates, err := marketdata.ListDates(a.cfg.Data.Dir)
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Println(d.Formatted())
	}
	return nil
}

// resolveDate picks the explicit date or falls back to the newest one.
func (a *app) resolveDate(dateFlag string) (marketdata.DateID, error) {
	if dateFlag != "" {
		return marketdata.ParseDateID(dateFlag)
	}
	dates, err := marketdata.ListDates(a.cfg.Data.Dir)
	if err != nil {
		return "", err
	}
	if len(dates) == 0 {
		return "", fmt.Errorf("%w: no recorded dates under %s", errs.ErrNotFound, a.cfg.Data.Dir)
	}
	return dates[0], nil
}

type dayData struct {
	sym1Bars marketdata.UnderlyingSeries
	sym2Bars marketdata.UnderlyingSeries
	trades   marketdata.OptionSeries
	quotes   marketdata.QuoteSeries
}

func (a *app) loadDay(date marketdata.DateID) (*dayData, error) {
	underlying, err := marketdata.LoadUnderlying(a.cfg.Data.Dir, date)
	if err != nil {
		return nil, err
	}
	trades, err := marketdata.LoadOptionTrades(a.cfg.Data.Dir, date)
	if err != nil {
		return nil, err
	}
	quotes, err := marketdata.LoadOptionQuotes(a.cfg.Data.Dir, date)
	if err != nil {
		return nil, err
	}
	sym1Bars, sym2Bars := marketdata.SplitSymbols(underlying, a.strategy.Sym1, a.strategy.Sym2)
	return &dayData{sym1Bars: sym1Bars, sym2Bars: sym2Bars, trades: trades, quotes: quotes}, nil
}

func (a *app) runScan(ctx context.Context, dateFlag, rightFlag, outPath string) error {
	date, err := a.resolveDate(dateFlag)
	if err != nil {
		return err
	}
	right := models.Right(rightFlag)
	if !right.Valid() {
		return fmt.Errorf("%w: right must be C or P", errs.ErrInvalidArgument)
	}
	day, err := a.loadDay(date)
	if err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"date":  date.Formatted(),
		"right": right,
	}).Info("Scanning strike pairs")

	start := time.Now()
	out, err := scanner.Scan(ctx, scanner.Input{
		Trades:         day.trades,
		Quotes:         day.quotes,
		Sym1Underlying: day.sym1Bars,
		Sym2Underlying: day.sym2Bars,
		Right:          right,
		Config:         a.strategy,
		MinVolume:      a.cfg.Scanner.MinVolume,
		HideIlliquid:   a.cfg.Scanner.HideIlliquid,
		Workers:        a.cfg.Scanner.Workers,
	})
	if err != nil && out == nil {
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"pairs":    out.PairsConsidered,
		"results":  len(out.BySafety),
		"partial":  out.Partial,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Scan complete")

	if a.cfg.History.Path != "" && !out.Partial {
		store, err := history.Open(a.cfg.History.Path, a.logger)
		if err != nil {
			a.logger.WithError(err).Warn("History store unavailable")
		} else {
			defer store.Close()
			if _, err := store.SaveRun(date.Formatted(), right, a.strategy.Sym1, a.strategy.Sym2, out); err != nil {
				a.logger.WithError(err).Warn("Failed to persist scan run")
			}
		}
	}
	return a.emit(outPath, out)
}

func (a *app) runAnalyze(dateFlag, entryFlag string, sym1Strike, sym2Strike float64, outPath string) error {
	if sym1Strike <= 0 || sym2Strike <= 0 {
		return fmt.Errorf("%w: analyze mode needs -sym1-strike and -sym2-strike", errs.ErrInvalidArgument)
	}
	// Snap flag-supplied strikes onto each symbol's listed strike grid.
	sym1Strike = util.RoundToTick(sym1Strike, float64(config.StrikeStepFor(a.strategy.Sym1)))
	sym2Strike = util.RoundToTick(sym2Strike, float64(a.strategy.StrikeStepSym2))
	date, err := a.resolveDate(dateFlag)
	if err != nil {
		return err
	}
	entryTime, err := marketdata.ParseETTime(date, entryFlag)
	if err != nil {
		return err
	}
	day, err := a.loadDay(date)
	if err != nil {
		return err
	}

	sym1Bar, ok := day.sym1Bars.AsOf(entryTime)
	if !ok {
		return fmt.Errorf("%w: no %s bar at or before %s", errs.ErrNotFound, a.strategy.Sym1, entryFlag)
	}
	sym2Bar, ok := day.sym2Bars.AsOf(entryTime)
	if !ok {
		return fmt.Errorf("%w: no %s bar at or before %s", errs.ErrNotFound, a.strategy.Sym2, entryFlag)
	}

	prices := position.EntryPrices{}
	if a.strategy.StrategyType.HasCalls() {
		prices[position.SlotSym1Call] = pricing.PriceAt(day.trades, day.quotes, a.strategy.Sym1, sym1Strike, models.RightCall, entryTime)
		prices[position.SlotSym2Call] = pricing.PriceAt(day.trades, day.quotes, a.strategy.Sym2, sym2Strike, models.RightCall, entryTime)
	}
	if a.strategy.StrategyType.HasPuts() {
		prices[position.SlotSym1Put] = pricing.PriceAt(day.trades, day.quotes, a.strategy.Sym1, sym1Strike, models.RightPut, entryTime)
		prices[position.SlotSym2Put] = pricing.PriceAt(day.trades, day.quotes, a.strategy.Sym2, sym2Strike, models.RightPut, entryTime)
	}

	in := position.BuildInput{
		Sym1Strike: sym1Strike,
		Sym2Strike: sym2Strike,
		Prices:     prices,
		EntrySym1:  sym1Bar.Close,
		EntrySym2:  sym2Bar.Close,
	}
	pos, err := position.Build(a.strategy, in)
	if err != nil {
		return err
	}

	var terminal *export.UnderlyingPrices
	if n1, n2 := len(day.sym1Bars), len(day.sym2Bars); n1 > 0 && n2 > 0 {
		terminal = &export.UnderlyingPrices{
			Sym1: day.sym1Bars[n1-1].Close,
			Sym2: day.sym2Bars[n2-1].Close,
		}
	}
	snap, err := export.BuildSnapshot(date, entryTime, a.strategy, in, pos, terminal)
	if err != nil {
		return err
	}
	return a.emit(outPath, snap)
}

func (a *app) runServe(ctx context.Context) error {
	var store *history.Store
	if a.cfg.History.Path != "" {
		var err error
		store, err = history.Open(a.cfg.History.Path, a.logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	srv, err := dashboard.NewServer(a.cfg, store, a.logger)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Dashboard shutdown error")
		}
	}()
	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		return err
	}
	a.logger.Info("Dashboard stopped")
	return nil
}

func (a *app) emit(outPath string, v any) error {
	if outPath != "" {
		if err := export.WriteFile(outPath, v); err != nil {
			return err
		}
		a.logger.WithField("path", outPath).Info("Wrote result")
		return nil
	}
	data, err := export.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
