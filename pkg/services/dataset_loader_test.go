package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sales-insight-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = "\ufeffName,Type,Item,Qty,Sales Price,Amount,Date\n" +
	"Store A,Retail,Widget,1,\"1,000\",\"1,000\",2024-01-05\n" +
	"Store B,Retail,Widget,2,5,10\n"

func TestParseCSVBytes(t *testing.T) {
	table, err := ParseCSVBytes([]byte(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, salesHeader, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "1,000", table.Rows[0][5])
	// 列数が足りない行もそのまま保持する
	assert.Len(t, table.Rows[1], 6)
}

func TestParseCSVEmpty(t *testing.T) {
	_, err := ParseCSVBytes(nil)
	assert.Error(t, err)
}

func writeXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := writeXLSX(t, [][]any{
		{" Name ", "Amount", "Date"},
		{"Store A", 100, "2024-01-05"},
		{"Store B", 250.5, "2024-02-05"},
	})

	table, err := ParseXLSX(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Amount", "Date"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "Store A", table.Rows[0][0])
	assert.Equal(t, "100", table.Rows[0][1])
	assert.Equal(t, "250.5", table.Rows[1][1])
}

func TestParseXLSXDateCellsFeedMonthlySeries(t *testing.T) {
	data := writeXLSX(t, [][]any{
		{"Name", "Amount", "Date"},
		{"Store A", 100, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"Store A", 150, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
	})

	table, err := ParseXLSX(bytes.NewReader(data))
	require.NoError(t, err)

	series, err := MonthlySeries(table, models.DefaultColumnMap(), "Store A")
	require.NoError(t, err)
	require.Len(t, series.Points, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), series.Points[0].Date)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), series.Points[1].Date)
	require.NotNil(t, series.Points[1].ActualValue)
	assert.Equal(t, 150.0, *series.Points[1].ActualValue)
}

func TestReadTableFileFormats(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))
	table, err := ReadTableFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	xlsxPath := filepath.Join(dir, "sales.xlsx")
	require.NoError(t, os.WriteFile(xlsxPath, writeXLSX(t, [][]any{{"Name"}, {"A"}}), 0o644))
	table, err = ReadTableFile(xlsxPath)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}}, table.Rows)

	jsonPath := filepath.Join(dir, "sales.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o644))
	_, err = ReadTableFile(jsonPath)
	assert.Error(t, err)

	_, err = ReadTableFile(filepath.Join(dir, "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDatasetLoaderCachesUntilInvalidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	loader := NewDatasetLoader(path, 0, nil)

	table, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	// ファイルを書き換えてもキャッシュが返る
	require.NoError(t, os.WriteFile(path, []byte("Name\nOnly\n"), 0o644))
	table, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	loader.Invalidate()
	table, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Only"}}, table.Rows)
	assert.Equal(t, path, loader.Path())
}

func TestDatasetLoaderTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte("Name\nFirst\n"), 0o644))

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loader := NewDatasetLoader(path, time.Minute, nil)
	loader.now = func() time.Time { return clock }

	_, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("Name\nSecond\n"), 0o644))
	clock = clock.Add(30 * time.Second)
	table, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "First", table.Rows[0][0])

	clock = clock.Add(time.Minute)
	table, err = loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Second", table.Rows[0][0])
}

func TestDatasetLoaderErrors(t *testing.T) {
	loader := NewDatasetLoader(filepath.Join(t.TempDir(), "missing.csv"), 0, nil)
	_, err := loader.Load(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loader.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
