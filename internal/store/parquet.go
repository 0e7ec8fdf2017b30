package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/guregu/null/v6"
	"github.com/parquet-go/parquet-go"

	"stockinsights/internal/domain"
)

// Compile-time interface check.
var _ PriceArchive = (*ParquetStore)(nil)

// ParquetStore implements PriceArchive using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// PriceRecord is the Parquet schema for one day of a symbol's price series.
type PriceRecord struct {
	Symbol     string   `parquet:"symbol"`
	Date       string   `parquet:"date"`
	Last       float64  `parquet:"last"`
	Change     float64  `parquet:"change"`
	Week52High *float64 `parquet:"week_52_high,optional"`
	Week52Low  *float64 `parquet:"week_52_low,optional"`
}

func toRecord(symbol string, p domain.PricePoint) PriceRecord {
	return PriceRecord{
		Symbol:     symbol,
		Date:       string(p.Date),
		Last:       p.Last,
		Change:     p.Change,
		Week52High: p.Week52High.Ptr(),
		Week52Low:  p.Week52Low.Ptr(),
	}
}

func (r PriceRecord) point() domain.PricePoint {
	return domain.PricePoint{
		Symbol:     r.Symbol,
		Date:       domain.Date(r.Date),
		Last:       r.Last,
		Change:     r.Change,
		Week52High: null.FloatFromPtr(r.Week52High),
		Week52Low:  null.FloatFromPtr(r.Week52Low),
	}
}

// ---------------------------------------------------------------------------
// PriceArchive implementation
// ---------------------------------------------------------------------------

// WriteSeries writes points to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/history/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteSeries(_ context.Context, symbol string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	symbol = domain.NormalizeSymbol(symbol)

	groups := make(map[int][]PriceRecord)
	for _, p := range points {
		t := p.Date.Time()
		if t.IsZero() {
			return fmt.Errorf("writing history for %s: invalid date %q", symbol, p.Date)
		}
		year := t.Year()
		groups[year] = append(groups[year], toRecord(symbol, p))
	}

	for year, records := range groups {
		path := s.historyPath(symbol, year)

		// Read existing records to merge.
		existing, err := readParquetFile[PriceRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading history for %s/%d: %w", symbol, year, err)
		}
		merged := mergePriceRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing history for %s/%d: %w", symbol, year, err)
		}
	}
	return nil
}

// ReadSeries reads archived points for the given symbol and date range.
func (s *ParquetStore) ReadSeries(_ context.Context, symbol string, start, end domain.Date) ([]domain.PricePoint, error) {
	symbol = domain.NormalizeSymbol(symbol)
	var points []domain.PricePoint
	for year := start.Time().Year(); year <= end.Time().Year(); year++ {
		records, err := readParquetFile[PriceRecord](s.historyPath(symbol, year))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading history for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			d := domain.Date(r.Date)
			if d >= start && d <= end {
				points = append(points, r.point())
			}
		}
	}
	return points, nil
}

// ListSymbols lists all symbols that have archived history.
func (s *ParquetStore) ListSymbols(context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "history"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// historyPath returns the filesystem path for a history Parquet file.
// Layout: <dataDir>/history/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) historyPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "history", domain.NormalizeSymbol(symbol), strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergePriceRecords deduplicates records by date, preferring incoming records
// over existing ones. Results are sorted by date.
func mergePriceRecords(existing, incoming []PriceRecord) []PriceRecord {
	seen := make(map[string]PriceRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]PriceRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
