// Package history persists scan runs and their ranked results to a local
// SQLite database so past scans can be reviewed without re-running them.
package history

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/models"
	"github.com/mhalloran/indexarb/internal/scanner"
)

// Store wraps the SQLite connection.
type Store struct {
	sql    *sql.DB
	logger *logrus.Logger
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	s := &Store{sql: sqlDB, logger: logger}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	logger.WithField("path", path).Debug("History store opened")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sql.Close()
}

func (s *Store) migrate() error {
	version := 0
	s.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS scan_runs (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id           TEXT NOT NULL UNIQUE,
				date             TEXT NOT NULL,
				opt_right        TEXT NOT NULL,
				sym1             TEXT NOT NULL,
				sym2             TEXT NOT NULL,
				pairs_considered INTEGER NOT NULL,
				result_count     INTEGER NOT NULL,
				partial          INTEGER NOT NULL DEFAULT 0,
				duration_ms      INTEGER NOT NULL DEFAULT 0,
				created_at       TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_scan_runs_date ON scan_runs(date);

			CREATE TABLE IF NOT EXISTS scan_results (
				id                 INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_id            INTEGER NOT NULL REFERENCES scan_runs(id),
				sym1_strike        REAL NOT NULL,
				sym2_strike        REAL NOT NULL,
				moneyness_diff_pct REAL,
				max_spread         REAL,
				max_spread_time    TEXT,
				credit_at_max      REAL,
				best_worst_pnl     REAL,
				best_worst_time    TEXT,
				direction          TEXT,
				sym1_volume        INTEGER,
				sym2_volume        INTEGER,
				price_source       TEXT,
				liquidity_ok       INTEGER,
				max_risk           REAL,
				risk_reward        REAL,
				warning            TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_scan_results_scan ON scan_results(scan_id);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		s.logger.Debug("Applied history migration v1")
	}
	return nil
}

// RunSummary is one persisted scan run.
type RunSummary struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	Date            string    `json:"date"`
	Right           string    `json:"right"`
	Sym1            string    `json:"sym1"`
	Sym2            string    `json:"sym2"`
	PairsConsidered int       `json:"pairs_considered"`
	ResultCount     int       `json:"result_count"`
	Partial         bool      `json:"partial"`
	DurationMs      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// SaveRun persists a scan run and its safety-ranked results in one
// transaction. Non-finite risk/reward ratios are stored as NULL.
func (s *Store) SaveRun(date string, right models.Right, sym1, sym2 string, out *scanner.Output) (int64, error) {
	if out == nil {
		return 0, fmt.Errorf("%w: scan output is required", errs.ErrInvalidArgument)
	}

	tx, err := s.sql.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO scan_runs (
		run_id, date, opt_right, sym1, sym2,
		pairs_considered, result_count, partial, duration_ms, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		out.RunID, date, string(right), sym1, sym2,
		out.PairsConsidered, len(out.BySafety), boolInt(out.Partial),
		out.Duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert scan run: %w", err)
	}
	scanID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("scan run id: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO scan_results (
		scan_id, sym1_strike, sym2_strike, moneyness_diff_pct,
		max_spread, max_spread_time, credit_at_max,
		best_worst_pnl, best_worst_time, direction,
		sym1_volume, sym2_volume, price_source, liquidity_ok,
		max_risk, risk_reward, warning
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare results insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range out.BySafety {
		var rr sql.NullFloat64
		if !math.IsInf(r.RiskReward, 0) && !math.IsNaN(r.RiskReward) {
			rr = sql.NullFloat64{Float64: r.RiskReward, Valid: true}
		}
		if _, err := stmt.Exec(
			scanID, r.Sym1Strike, r.Sym2Strike, r.MoneynessDiffPct,
			r.MaxSpread, r.MaxSpreadTime.UTC().Format(time.RFC3339), r.CreditAtMax,
			r.BestWorstPnL, r.BestWorstTime.UTC().Format(time.RFC3339), string(r.Direction),
			r.Sym1Volume, r.Sym2Volume, r.PriceSource, boolInt(r.LiquidityOK),
			r.MaxRisk, rr, r.Warning,
		); err != nil {
			return 0, fmt.Errorf("insert scan result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit scan run: %w", err)
	}
	return scanID, nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sql.Query(`
		SELECT id, run_id, date, opt_right, sym1, sym2,
			pairs_considered, result_count, partial, duration_ms, created_at
		FROM scan_runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var partial int
		var created string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Date, &r.Right, &r.Sym1, &r.Sym2,
			&r.PairsConsidered, &r.ResultCount, &partial, &r.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.Partial = partial != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunResults returns the persisted results for one run, safety order.
func (s *Store) RunResults(scanID int64) ([]models.ScanResult, error) {
	rows, err := s.sql.Query(`
		SELECT sym1_strike, sym2_strike, moneyness_diff_pct,
			max_spread, max_spread_time, credit_at_max,
			best_worst_pnl, best_worst_time, direction,
			sym1_volume, sym2_volume, price_source, liquidity_ok,
			max_risk, risk_reward, warning
		FROM scan_results WHERE scan_id = ? ORDER BY id
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query scan results: %w", err)
	}
	defer rows.Close()

	var results []models.ScanResult
	for rows.Next() {
		var r models.ScanResult
		var maxT, bwT, direction string
		var liquid int
		var rr sql.NullFloat64
		if err := rows.Scan(&r.Sym1Strike, &r.Sym2Strike, &r.MoneynessDiffPct,
			&r.MaxSpread, &maxT, &r.CreditAtMax,
			&r.BestWorstPnL, &bwT, &direction,
			&r.Sym1Volume, &r.Sym2Volume, &r.PriceSource, &liquid,
			&r.MaxRisk, &rr, &r.Warning); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.MaxSpreadTime, _ = time.Parse(time.RFC3339, maxT)
		r.BestWorstTime, _ = time.Parse(time.RFC3339, bwT)
		r.Direction = models.ScanDirection(direction)
		r.LiquidityOK = liquid != 0
		if rr.Valid {
			r.RiskReward = rr.Float64
		} else {
			r.RiskReward = math.Inf(1)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
