// Package config provides the application configuration and the strategy
// constants that drive the analytical core.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/mhalloran/indexarb/internal/models"
)

// Strategy constants. All numeric thresholds used by business logic live
// here; packages import these instead of hardcoding values.
const (
	// QtyRatioSPX is the contract ratio for SPX-class pairs: SPX has $5
	// strike increments, 10x SPY's $1, so one SPX contract hedges ten.
	QtyRatioSPX = 10
	// QtyRatioDefault applies to 1:1 pairs such as SPY/XSP and XSP/SPX.
	QtyRatioDefault = 1

	// StrikeStepSPX is the SPX strike increment in dollars.
	StrikeStepSPX = 5
	// StrikeStepDefault is the SPY/XSP strike increment in dollars.
	StrikeStepDefault = 1

	// MoneynessWarnThreshold: strike pairs whose moneyness differs by more
	// than this (in percent) get a warning on the built position.
	MoneynessWarnThreshold = 0.05

	// ScannerPairTolerance: strike pairs must lie within this fraction of
	// sym1_strike * open_ratio to be scanned.
	ScannerPairTolerance = 0.005

	// WideSpreadThreshold: bid-ask spread above this percent of midpoint
	// triggers a liquidity warning.
	WideSpreadThreshold = 20.0

	// MarginRate: margin estimate is this fraction of short notional minus
	// credit received. A placeholder, not a brokerage formula.
	MarginRate = 0.20

	// GridPricePoints is the number of sym1 price points in the best/worst
	// grid search.
	GridPricePoints = 50

	// GridPriceRangePct is the +/- price range of the grid as a fraction of
	// the entry price.
	GridPriceRangePct = 0.05

	// GridBasisDriftPct is the magnitude of the basis drift levels tested
	// by the grid: {-GridBasisDriftPct, 0, +GridBasisDriftPct}.
	GridBasisDriftPct = 0.001

	// DefaultMinVolume is the default minimum total daily volume for
	// scanner liquidity filtering.
	DefaultMinVolume = 10

	// TradingDayMinutes is the regular session length (9:30-16:00 ET).
	TradingDayMinutes = 390
)

// GridBasisDriftLevels returns the basis drift levels tested by the grid
// search, in ascending order.
func GridBasisDriftLevels() []float64 {
	return []float64{-GridBasisDriftPct, 0, GridBasisDriftPct}
}

// Constants returns the strategy constants as a name -> value table.
// Tests use this to keep code and documentation in sync; treat it as
// read-only.
func Constants() map[string]float64 {
	return map[string]float64{
		"QTY_RATIO_SPX":            QtyRatioSPX,
		"QTY_RATIO_DEFAULT":        QtyRatioDefault,
		"STRIKE_STEP_SPX":          StrikeStepSPX,
		"STRIKE_STEP_DEFAULT":      StrikeStepDefault,
		"MONEYNESS_WARN_THRESHOLD": MoneynessWarnThreshold,
		"SCANNER_PAIR_TOLERANCE":   ScannerPairTolerance,
		"WIDE_SPREAD_THRESHOLD":    WideSpreadThreshold,
		"MARGIN_RATE":              MarginRate,
		"GRID_PRICE_POINTS":        GridPricePoints,
		"GRID_PRICE_RANGE_PCT":     GridPriceRangePct,
		"GRID_BASIS_DRIFT_PCT":     GridBasisDriftPct,
		"DEFAULT_MIN_VOLUME":       DefaultMinVolume,
		"TRADING_DAY_MINUTES":      TradingDayMinutes,
	}
}

// isSPXClass covers the SPX index root and its weekly root.
func isSPXClass(sym string) bool {
	return sym == "SPX" || sym == "SPXW"
}

// QtyRatioFor returns the contract quantity ratio for a pair based on sym2.
func QtyRatioFor(sym2 string) int {
	if isSPXClass(sym2) {
		return QtyRatioSPX
	}
	return QtyRatioDefault
}

// StrikeStepFor returns the strike increment for sym2 in dollars.
func StrikeStepFor(sym2 string) int {
	if isSPXClass(sym2) {
		return StrikeStepSPX
	}
	return StrikeStepDefault
}

// SymbolPair is a labeled sym1/sym2 pairing.
type SymbolPair struct {
	Label string `json:"label"`
	Sym1  string `json:"sym1"`
	Sym2  string `json:"sym2"`
}

// CanonicalPairs returns the symbol pairs the system understands.
func CanonicalPairs() []SymbolPair {
	return []SymbolPair{
		{Label: "XSP / SPX", Sym1: "XSP", Sym2: "SPX"},
		{Label: "SPY / SPX", Sym1: "SPY", Sym2: "SPX"},
		{Label: "SPY / XSP", Sym1: "SPY", Sym2: "XSP"},
	}
}

// AvailablePairs filters the canonical pairs to those whose symbols both
// appear in the given recorded underlying symbols.
func AvailablePairs(symbols []string) []SymbolPair {
	present := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		present[s] = struct{}{}
	}
	var out []SymbolPair
	for _, p := range CanonicalPairs() {
		if _, ok := present[p.Sym1]; !ok {
			continue
		}
		if _, ok := present[p.Sym2]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Config represents the complete application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Pair      PairConfig      `yaml:"pair"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Broker    BrokerConfig    `yaml:"broker"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	History   HistoryConfig   `yaml:"history"`
	LogLevel  string          `yaml:"log_level"` // debug | info | warn | error
}

// DataConfig locates the per-date market data directory.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// PairConfig selects the symbol pair and leg directions for analysis.
type PairConfig struct {
	Sym1          string `yaml:"sym1"`
	Sym2          string `yaml:"sym2"`
	StrategyType  string `yaml:"strategy_type"`  // full | calls_only | puts_only
	CallDirection string `yaml:"call_direction"` // sell_sym2_buy_sym1 | sell_sym1_buy_sym2
	PutDirection  string `yaml:"put_direction"`  // sell_sym1_buy_sym2 | sell_sym2_buy_sym1
}

// ScannerConfig holds scan-time defaults.
type ScannerConfig struct {
	MinVolume    int  `yaml:"min_volume"`
	HideIlliquid bool `yaml:"hide_illiquid"`
	Workers      int  `yaml:"workers"`
}

// BrokerConfig holds the broker adapter connection settings.
type BrokerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DashboardConfig holds the JSON API server settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// HistoryConfig locates the sqlite scan-history database. An empty path
// disables persistence.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// Load reads, expands, and validates a yaml configuration file.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Pair.Sym1 == "" {
		c.Pair.Sym1 = "SPY"
	}
	if c.Pair.Sym2 == "" {
		c.Pair.Sym2 = "SPX"
	}
	if c.Pair.StrategyType == "" {
		c.Pair.StrategyType = "full"
	}
	if c.Pair.CallDirection == "" {
		c.Pair.CallDirection = "sell_sym2_buy_sym1"
	}
	if c.Pair.PutDirection == "" {
		c.Pair.PutDirection = "sell_sym1_buy_sym2"
	}
	if c.Scanner.MinVolume == 0 {
		c.Scanner.MinVolume = DefaultMinVolume
	}
	if c.Scanner.Workers == 0 {
		c.Scanner.Workers = 4
	}
	if c.Broker.Host == "" {
		c.Broker.Host = "127.0.0.1"
	}
	if c.Broker.Port == 0 {
		c.Broker.Port = 4002
	}
	if c.Broker.CallTimeout == 0 {
		c.Broker.CallTimeout = 10 * time.Second
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Pair.Sym1 == c.Pair.Sym2 {
		return fmt.Errorf("pair.sym1 and pair.sym2 must differ")
	}
	switch c.Pair.StrategyType {
	case "full", "calls_only", "puts_only":
	default:
		return fmt.Errorf("pair.strategy_type must be 'full', 'calls_only', or 'puts_only'")
	}
	switch c.Pair.CallDirection {
	case "sell_sym2_buy_sym1", "sell_sym1_buy_sym2":
	default:
		return fmt.Errorf("pair.call_direction must be 'sell_sym2_buy_sym1' or 'sell_sym1_buy_sym2'")
	}
	switch c.Pair.PutDirection {
	case "sell_sym2_buy_sym1", "sell_sym1_buy_sym2":
	default:
		return fmt.Errorf("pair.put_direction must be 'sell_sym2_buy_sym1' or 'sell_sym1_buy_sym2'")
	}
	if c.Scanner.MinVolume < 0 {
		return fmt.Errorf("scanner.min_volume must be >= 0")
	}
	if c.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be >= 1")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port must be in 1..65535")
	}
	if c.Broker.CallTimeout <= 0 {
		return fmt.Errorf("broker.call_timeout must be > 0")
	}
	if c.Dashboard.Port < 1 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be in 1..65535")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error")
	}
	return nil
}

// Strategy builds the validated strategy selection for the configured pair.
// Quantity ratio and strike step follow sym2's conventions.
func (c *Config) Strategy() (models.StrategyConfig, error) {
	return models.NewStrategyConfig(
		c.Pair.Sym1, c.Pair.Sym2,
		QtyRatioFor(c.Pair.Sym2), StrikeStepFor(c.Pair.Sym2),
		models.StrategyType(c.Pair.StrategyType),
		models.Direction(c.Pair.CallDirection),
		models.Direction(c.Pair.PutDirection),
	)
}
