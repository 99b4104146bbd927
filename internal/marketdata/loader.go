// Package marketdata loads per-date CSV market data into immutable,
// time-ordered series: underlying bars, option trade bars, and option
// bid/ask bars.
//
// File layout per trading date:
//
//	underlying_prices_{yyyymmdd}.csv  symbol,time,open,high,low,close,volume
//	options_data_{yyyymmdd}.csv       symbol,strike,right,time,open,high,low,close,volume
//	options_bidask_{yyyymmdd}.csv     symbol,strike,right,time,bid,ask,midpoint
//
// A missing underlying file makes the day unusable (not found). Missing
// option files are not an error: callers degrade to whatever source exists.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mhalloran/indexarb/internal/errs"
	"github.com/mhalloran/indexarb/internal/models"
)

// DateID is a raw yyyymmdd trading date identifier.
type DateID string

// Formatted returns the date as yyyy-mm-dd.
func (d DateID) Formatted() string {
	s := string(d)
	if len(s) != 8 {
		return s
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}

// ParseDateID parses a yyyymmdd or yyyy-mm-dd date string.
func ParseDateID(s string) (DateID, error) {
	raw := strings.ReplaceAll(s, "-", "")
	if _, err := time.Parse("20060102", raw); err != nil {
		return "", fmt.Errorf("%w: date must be yyyymmdd, got %q", errs.ErrInvalidArgument, s)
	}
	return DateID(raw), nil
}

const (
	underlyingPrefix = "underlying_prices_"
	tradesPrefix     = "options_data_"
	quotesPrefix     = "options_bidask_"
	csvSuffix        = ".csv"
)

// ListDates lists trading dates that have an underlying price file,
// newest first.
func ListDates(root string) ([]DateID, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: data directory %s", errs.ErrNotFound, root)
		}
		return nil, fmt.Errorf("listing data directory: %w", err)
	}

	var dates []DateID
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, underlyingPrefix) || !strings.HasSuffix(name, csvSuffix) {
			continue
		}
		d := strings.TrimSuffix(strings.TrimPrefix(name, underlyingPrefix), csvSuffix)
		if len(d) == 8 {
			dates = append(dates, DateID(d))
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] > dates[j] })
	return dates, nil
}

// LoadUnderlying loads the day's underlying bars, sorted by time.
// Returns not found if the file is missing.
func LoadUnderlying(root string, date DateID) (UnderlyingSeries, error) {
	path := filepath.Join(root, underlyingPrefix+string(date)+csvSuffix)
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, fmt.Errorf("%w: underlying price data for %s", errs.ErrNotFound, date)
	}

	col, err := columnIndex(header, "symbol", "time", "open", "high", "low", "close", "volume")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	series := make(UnderlyingSeries, 0, len(rows))
	for i, row := range rows {
		t, err := parseUTC(row[col["time"]])
		if err != nil {
			return nil, rowErr(path, i, err)
		}
		open, high, low, closePx, err := parseOHLC(row, col)
		if err != nil {
			return nil, rowErr(path, i, err)
		}
		vol, err := parseVolume(row[col["volume"]])
		if err != nil {
			return nil, rowErr(path, i, err)
		}
		series = append(series, models.UnderlyingBar{
			Symbol: row[col["symbol"]],
			Time:   t,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: vol,
		})
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

// LoadOptionTrades loads the day's option trade bars, sorted by time.
// Returns (nil, nil) when the file is absent.
func LoadOptionTrades(root string, date DateID) (OptionSeries, error) {
	path := filepath.Join(root, tradesPrefix+string(date)+csvSuffix)
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}

	col, err := columnIndex(header, "symbol", "strike", "right", "time", "open", "high", "low", "close", "volume")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	series := make(OptionSeries, 0, len(rows))
	for i, row := range rows {
		t, err := parseUTC(row[col["time"]])
		if err != nil {
			return nil, rowErr(path, i, err)
		}
		strike, err := strconv.ParseFloat(row[col["strike"]], 64)
		if err != nil {
			return nil, rowErr(path, i, fmt.Errorf("strike: %w", err))
		}
		right := models.Right(row[col["right"]])
		if !right.Valid() {
			return nil, rowErr(path, i, fmt.Errorf("%w: right %q", errs.ErrInconsistentData, right))
		}
		open, high, low, closePx, err := parseOHLC(row, col)
		if err != nil {
			return nil, rowErr(path, i, err)
		}
		vol, err := parseVolume(row[col["volume"]])
		if err != nil {
			return nil, rowErr(path, i, err)
		}
		series = append(series, models.OptionBar{
			Symbol: row[col["symbol"]],
			Strike: strike,
			Right:  right,
			Time:   t,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: vol,
		})
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

// LoadOptionQuotes loads the day's option bid/ask bars, sorted by time.
// Returns (nil, nil) when the file is absent. A row with bid > ask is
// inconsistent data.
func LoadOptionQuotes(root string, date DateID) (QuoteSeries, error) {
	path := filepath.Join(root, quotesPrefix+string(date)+csvSuffix)
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, nil
	}

	col, err := columnIndex(header, "symbol", "strike", "right", "time", "bid", "ask", "midpoint")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	series := make(QuoteSeries, 0, len(rows))
	for i, row := range rows {
		t, err := parseUTC(row[col["time"]])
		if err != nil {
			return nil, rowErr(path, i, err)
		}
		strike, err := strconv.ParseFloat(row[col["strike"]], 64)
		if err != nil {
			return nil, rowErr(path, i, fmt.Errorf("strike: %w", err))
		}
		right := models.Right(row[col["right"]])
		if !right.Valid() {
			return nil, rowErr(path, i, fmt.Errorf("%w: right %q", errs.ErrInconsistentData, right))
		}
		bid, err := strconv.ParseFloat(row[col["bid"]], 64)
		if err != nil {
			return nil, rowErr(path, i, fmt.Errorf("bid: %w", err))
		}
		ask, err := strconv.ParseFloat(row[col["ask"]], 64)
		if err != nil {
			return nil, rowErr(path, i, fmt.Errorf("ask: %w", err))
		}
		if bid > 0 && ask > 0 && bid > ask {
			return nil, rowErr(path, i, fmt.Errorf("%w: bid %v > ask %v", errs.ErrInconsistentData, bid, ask))
		}
		mid, err := strconv.ParseFloat(row[col["midpoint"]], 64)
		if err != nil {
			return nil, rowErr(path, i, fmt.Errorf("midpoint: %w", err))
		}
		series = append(series, models.OptionQuoteBar{
			Symbol:   row[col["symbol"]],
			Strike:   strike,
			Right:    right,
			Time:     t,
			Bid:      bid,
			Ask:      ask,
			Midpoint: mid,
		})
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
	return series, nil
}

// readCSV reads all records of a CSV file. Returns (nil, nil, nil) when the
// file does not exist so callers can distinguish absence from corruption.
func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is derived from the configured data directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return [][]string{}, []string{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading header of %s: %v", errs.ErrInconsistentData, path, err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading %s: %v", errs.ErrInconsistentData, path, err)
	}
	return rows, header, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, name := range required {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", errs.ErrInconsistentData, name)
		}
	}
	return col, nil
}

// timeLayouts covers the timestamp shapes seen in collected data: RFC3339
// and space-separated variants with or without an explicit offset. Naive
// timestamps are taken as UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseUTC(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable time %q", errs.ErrInconsistentData, s)
}

func parseOHLC(row []string, col map[string]int) (open, high, low, closePx float64, err error) {
	if open, err = strconv.ParseFloat(row[col["open"]], 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("open: %w", err)
	}
	if high, err = strconv.ParseFloat(row[col["high"]], 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("high: %w", err)
	}
	if low, err = strconv.ParseFloat(row[col["low"]], 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("low: %w", err)
	}
	if closePx, err = strconv.ParseFloat(row[col["close"]], 64); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("close: %w", err)
	}
	return open, high, low, closePx, nil
}

func parseVolume(s string) (int64, error) {
	// Pandas writes integer volumes as floats (e.g. "120.0").
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("volume: %w", err)
	}
	v := int64(f)
	if v < 0 {
		return 0, fmt.Errorf("%w: negative volume %d", errs.ErrInconsistentData, v)
	}
	return v, nil
}

func rowErr(path string, row int, err error) error {
	// +2: 1-based line numbers plus the header row.
	return fmt.Errorf("%s line %d: %w", path, row+2, err)
}

// etLocation is resolved once; ET labels fall back to UTC if tzdata is
// unavailable.
var etLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// ETLabel formats a timestamp as an HH:MM Eastern Time label.
func ETLabel(t time.Time) string {
	return t.In(etLocation).Format("15:04")
}

// ParseETTime combines a trading date with an HH:MM Eastern Time wall
// clock and returns the instant in UTC.
func ParseETTime(date DateID, hhmm string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102 15:04", string(date)+" "+hhmm, etLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: entry time must be HH:MM, got %q", errs.ErrInvalidArgument, hhmm)
	}
	return t.UTC(), nil
}
