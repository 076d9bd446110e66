package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sales-insight-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// DatasetLoader reads the sales sheet (CSV or XLSX) and caches the raw table.
// The cache is dropped by Invalidate or when TTL has elapsed.
type DatasetLoader struct {
	mu       sync.RWMutex
	path     string
	ttl      time.Duration
	cached   *models.RawTable
	loadedAt time.Time
	now      func() time.Time
	logger   *slog.Logger
}

// NewDatasetLoader creates a loader for path. A zero ttl caches until Invalidate.
func NewDatasetLoader(path string, ttl time.Duration, logger *slog.Logger) *DatasetLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatasetLoader{path: path, ttl: ttl, now: time.Now, logger: logger}
}

// Path returns the source file of the loader.
func (l *DatasetLoader) Path() string { return l.path }

// Load returns the cached table, reading the file on first use or after expiry.
// Callers must treat the returned table as read-only.
func (l *DatasetLoader) Load(ctx context.Context) (models.RawTable, error) {
	l.mu.RLock()
	if l.fresh() {
		t := *l.cached
		l.mu.RUnlock()
		return t, nil
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fresh() { // double-check
		return *l.cached, nil
	}
	if err := ctx.Err(); err != nil {
		return models.RawTable{}, err
	}

	start := time.Now()
	table, err := ReadTableFile(l.path)
	if err != nil {
		return models.RawTable{}, fmt.Errorf("failed to load dataset %s: %w", l.path, err)
	}
	l.cached = &table
	l.loadedAt = l.now()
	l.logger.Info("📂 dataset loaded",
		"path", l.path,
		"rows", len(table.Rows),
		"columns", len(table.Columns),
		"elapsed", time.Since(start))
	return table, nil
}

// Invalidate drops the cached table.
func (l *DatasetLoader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cached = nil
}

func (l *DatasetLoader) fresh() bool {
	if l.cached == nil {
		return false
	}
	return l.ttl <= 0 || l.now().Sub(l.loadedAt) < l.ttl
}

// ReadTableFile reads a .csv or .xlsx file into a RawTable.
func ReadTableFile(path string) (models.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.RawTable{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(f)
	case ".csv", ".txt":
		return ParseCSV(f)
	default:
		return models.RawTable{}, fmt.Errorf("unsupported dataset format: %s (use .csv or .xlsx)", filepath.Ext(path))
	}
}

// ParseCSVBytes parses CSV content from memory.
func ParseCSVBytes(data []byte) (models.RawTable, error) {
	return ParseCSV(bytes.NewReader(data))
}

// ParseCSV reads a header row followed by data rows. Rows may have ragged widths.
func ParseCSV(r io.Reader) (models.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return models.RawTable{}, fmt.Errorf("csv: %w", err)
	}
	return tableFromRows(rows)
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader) (models.RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return models.RawTable{}, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return models.RawTable{}, fmt.Errorf("xlsx: %w", err)
	}
	return tableFromRows(rows)
}

func tableFromRows(rows [][]string) (models.RawTable, error) {
	if len(rows) == 0 {
		return models.RawTable{}, errors.New("no header row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return models.RawTable{Columns: header, Rows: rows[1:]}, nil
}
