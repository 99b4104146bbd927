package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConstantsTable(t *testing.T) {
	// Guards against silent drift between the named constants and the
	// exported table used by diagnostics.
	expected := map[string]float64{
		"QTY_RATIO_SPX":            10,
		"QTY_RATIO_DEFAULT":        1,
		"STRIKE_STEP_SPX":          5,
		"STRIKE_STEP_DEFAULT":      1,
		"MONEYNESS_WARN_THRESHOLD": 0.05,
		"SCANNER_PAIR_TOLERANCE":   0.005,
		"WIDE_SPREAD_THRESHOLD":    20.0,
		"MARGIN_RATE":              0.20,
		"GRID_PRICE_POINTS":        50,
		"GRID_PRICE_RANGE_PCT":     0.05,
		"GRID_BASIS_DRIFT_PCT":     0.001,
		"DEFAULT_MIN_VOLUME":       10,
		"TRADING_DAY_MINUTES":      390,
	}
	got := Constants()
	for name, want := range expected {
		if got[name] != want {
			t.Errorf("Constants()[%q] = %v, want %v", name, got[name], want)
		}
	}
	if len(got) != len(expected) {
		t.Errorf("Constants() has %d entries, want %d", len(got), len(expected))
	}
}

func TestGridBasisDriftLevels(t *testing.T) {
	levels := GridBasisDriftLevels()
	want := []float64{-GridBasisDriftPct, 0, GridBasisDriftPct}
	if len(levels) != len(want) {
		t.Fatalf("got %d drift levels, want %d", len(levels), len(want))
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Errorf("drift level %d = %v, want %v", i, levels[i], want[i])
		}
	}
}

func TestQtyRatioFor(t *testing.T) {
	tests := []struct {
		sym2 string
		want int
	}{
		{"SPX", 10},
		{"SPXW", 10},
		{"XSP", 1},
		{"QQQ", 1},
		{"", 1},
	}
	for _, tt := range tests {
		if got := QtyRatioFor(tt.sym2); got != tt.want {
			t.Errorf("QtyRatioFor(%q) = %d, want %d", tt.sym2, got, tt.want)
		}
	}
}

func TestAvailablePairs(t *testing.T) {
	tests := []struct {
		name    string
		symbols []string
		want    []string // labels
	}{
		{"both spx pairs", []string{"SPY", "SPX", "XSP"}, []string{"XSP / SPX", "SPY / SPX", "SPY / XSP"}},
		{"spy and spx only", []string{"SPX", "SPY"}, []string{"SPY / SPX"}},
		{"one symbol", []string{"SPY"}, nil},
		{"unknown symbols", []string{"QQQ", "NDX"}, nil},
		{"empty", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AvailablePairs(tt.symbols)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d pairs, want %d", len(got), len(tt.want))
			}
			for i, p := range got {
				if p.Label != tt.want[i] {
					t.Errorf("pair[%d] = %q, want %q", i, p.Label, tt.want[i])
				}
			}
		})
	}
}

func TestStrikeStepFor(t *testing.T) {
	if got := StrikeStepFor("SPX"); got != 5 {
		t.Errorf("StrikeStepFor(SPX) = %d, want 5", got)
	}
	if got := StrikeStepFor("SPY"); got != 1 {
		t.Errorf("StrikeStepFor(SPY) = %d, want 1", got)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
data:
  dir: ./data
pair:
  sym1: SPY
  sym2: SPXW
scanner:
  workers: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Pair.Sym1 != "SPY" || cfg.Pair.Sym2 != "SPXW" {
		t.Errorf("pair = %s/%s, want SPY/SPXW", cfg.Pair.Sym1, cfg.Pair.Sym2)
	}
	// Defaults fill everything the file omits.
	if cfg.Pair.StrategyType != "full" {
		t.Errorf("default strategy_type = %q, want full", cfg.Pair.StrategyType)
	}
	if cfg.Scanner.MinVolume != DefaultMinVolume {
		t.Errorf("default min_volume = %d, want %d", cfg.Scanner.MinVolume, DefaultMinVolume)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log_level = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	if _, err := Load("nonexistent.yaml"); err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, `
pair:
  sym1: SPY
  sym2: SPX
  bogus_field: true
`)
	if _, err := Load(path); err == nil {
		t.Error("Expected unknown field to fail strict decode, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"same symbols", func(c *Config) { c.Pair.Sym2 = c.Pair.Sym1 }, true},
		{"bad strategy type", func(c *Config) { c.Pair.StrategyType = "straddle" }, true},
		{"bad call direction", func(c *Config) { c.Pair.CallDirection = "both" }, true},
		{"negative min volume", func(c *Config) { c.Scanner.MinVolume = -1 }, true},
		{"zero workers", func(c *Config) { c.Scanner.Workers = 0 }, true},
		{"bad dashboard port", func(c *Config) { c.Dashboard.Port = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Pair.Sym1 = "SPY"
			cfg.Pair.Sym2 = "SPXW"
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStrategy(t *testing.T) {
	cfg := &Config{}
	cfg.Pair.Sym1 = "SPY"
	cfg.Pair.Sym2 = "SPXW"
	cfg.applyDefaults()

	strategy, err := cfg.Strategy()
	if err != nil {
		t.Fatalf("Strategy() error: %v", err)
	}
	if strategy.QtyRatio != 10 {
		t.Errorf("QtyRatio = %d, want 10 for SPXW", strategy.QtyRatio)
	}
	if strategy.StrikeStepSym2 != 5 {
		t.Errorf("StrikeStepSym2 = %d, want 5 for SPXW", strategy.StrikeStepSym2)
	}
}
