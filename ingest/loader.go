// Package ingest loads the upstream agricultural feeds (weather forecasts,
// soil health cards, mandi prices, eNAM trades) into the facts tables and
// rebuilds the vector index from them.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/agrisage/agrisage/store"
	"github.com/xuri/excelize/v2"
)

// Kind identifies which facts table a file feeds.
type Kind string

const (
	KindWeather Kind = "weather"
	KindSoil    Kind = "soil"
	KindMarket  Kind = "market"
	KindEnam    Kind = "enam"
)

// Loader parses feed files and writes them to the facts tables.
type Loader struct {
	store *store.Store
}

// NewLoader creates a loader over the given store.
func NewLoader(s *store.Store) *Loader {
	return &Loader{store: s}
}

// LoadFile parses one feed file and appends its rows to the matching facts
// table. CSV and XLSX are supported; format is chosen by file extension.
func (l *Loader) LoadFile(ctx context.Context, kind Kind, path string) (int, error) {
	rows, err := readRows(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	var n int
	switch kind {
	case KindWeather:
		parsed, err := parseWeatherRows(rows)
		if err != nil {
			return 0, err
		}
		if err := l.store.InsertWeather(ctx, parsed); err != nil {
			return 0, err
		}
		n = len(parsed)
	case KindSoil:
		parsed, err := parseSoilRows(rows)
		if err != nil {
			return 0, err
		}
		if err := l.store.InsertSoilCards(ctx, parsed); err != nil {
			return 0, err
		}
		n = len(parsed)
	case KindMarket:
		parsed, err := parseMarketRows(rows)
		if err != nil {
			return 0, err
		}
		if err := l.store.InsertMarketPrices(ctx, parsed); err != nil {
			return 0, err
		}
		n = len(parsed)
	case KindEnam:
		parsed, err := parseEnamRows(rows)
		if err != nil {
			return 0, err
		}
		if err := l.store.InsertEnamTrades(ctx, parsed); err != nil {
			return 0, err
		}
		n = len(parsed)
	default:
		return 0, fmt.Errorf("unknown feed kind: %s", kind)
	}

	slog.Info("ingest: feed loaded", "kind", kind, "file", filepath.Base(path), "rows", n)
	return n, nil
}

// readRows reads all data rows from a CSV or XLSX file, including the
// header row.
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readCSV(f)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", filepath.Ext(path))
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	// Agmarknet exports have ragged trailing columns.
	cr.FieldsPerRecord = -1
	return cr.ReadAll()
}

// readXLSX reads the first sheet of an XLSX workbook.
func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// columns maps header names (lowercased) to their index.
func columns(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// field returns the trimmed cell at the named column, or "" when the column
// is absent or the row is short.
func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func floatField(row []string, idx map[string]int, name string) (float64, error) {
	s := field(row, idx, name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return v, nil
}

func parseWeatherRows(rows [][]string) ([]store.WeatherRow, error) {
	if len(rows) < 2 {
		return nil, nil
	}
	idx := columns(rows[0])

	out := make([]store.WeatherRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		precip, err := floatField(row, idx, "precip_prob")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		maxT, err := floatField(row, idx, "max_temp")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		minT, err := floatField(row, idx, "min_temp")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, store.WeatherRow{
			District:   field(row, idx, "district"),
			Date:       field(row, idx, "forecast_date"),
			PrecipProb: precip,
			MaxTemp:    maxT,
			MinTemp:    minT,
		})
	}
	return out, nil
}

func parseSoilRows(rows [][]string) ([]store.SoilRow, error) {
	if len(rows) < 2 {
		return nil, nil
	}
	idx := columns(rows[0])

	out := make([]store.SoilRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		var r store.SoilRow
		var err error
		r.FarmerID = field(row, idx, "farmer_id")
		r.Village = field(row, idx, "village")
		r.District = field(row, idx, "district")
		if r.PH, err = floatField(row, idx, "ph"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.N, err = floatField(row, idx, "n"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.P, err = floatField(row, idx, "p"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.K, err = floatField(row, idx, "k"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.OrganicCarbon, err = floatField(row, idx, "organic_carbon"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if r.SoilMoisture, err = floatField(row, idx, "soil_moisture"); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func parseMarketRows(rows [][]string) ([]store.MarketRow, error) {
	if len(rows) < 2 {
		return nil, nil
	}
	idx := columns(rows[0])

	out := make([]store.MarketRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		price, err := floatField(row, idx, "price")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, store.MarketRow{
			Date:      field(row, idx, "date"),
			Commodity: field(row, idx, "commodity"),
			Mandi:     field(row, idx, "mandi"),
			Price:     price,
		})
	}
	return out, nil
}

func parseEnamRows(rows [][]string) ([]store.EnamRow, error) {
	if len(rows) < 2 {
		return nil, nil
	}
	idx := columns(rows[0])

	out := make([]store.EnamRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		volume, err := floatField(row, idx, "trade_volume")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		price, err := floatField(row, idx, "price")
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, store.EnamRow{
			Date:      field(row, idx, "date"),
			Commodity: field(row, idx, "commodity"),
			Mandi:     field(row, idx, "mandi"),
			Volume:    volume,
			Price:     price,
		})
	}
	return out, nil
}
