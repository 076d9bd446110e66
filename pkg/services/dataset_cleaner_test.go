package services

import (
	"errors"
	"testing"
	"time"

	"sales-insight-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var salesHeader = []string{"Name", "Type", "Item", "Qty", "Sales Price", "Amount", "Date"}

// salesTable builds a RawTable with the default sales header.
func salesTable(rows ...[]string) models.RawTable {
	return models.RawTable{Columns: salesHeader, Rows: rows}
}

func TestCleanParsesNumbersWithThousandsSeparators(t *testing.T) {
	table := models.RawTable{
		Columns: []string{"Amount"},
		Rows:    [][]string{{"1,234.50"}, {" 42 "}, {"abc"}, {""}},
	}

	frame, err := Clean(table, []ColumnRule{{Column: "Amount", Transform: ParseNumber}}, []string{"Amount"})
	require.NoError(t, err)

	require.Equal(t, 2, frame.Len())
	assert.Equal(t, 2, frame.Dropped)

	c, ok := frame.Cell(0, "Amount")
	require.True(t, ok)
	assert.Equal(t, NumberCell, c.Kind)
	assert.InDelta(t, 1234.5, c.Number, 1e-9)

	c, _ = frame.Cell(1, "Amount")
	assert.InDelta(t, 42.0, c.Number, 1e-9)
}

func TestCleanMissingColumnIsSchemaError(t *testing.T) {
	table := models.RawTable{Columns: []string{"Name", "Date"}, Rows: [][]string{{"A", "2024-01-01"}}}

	_, err := Clean(table, []ColumnRule{{Column: "Amount", Transform: ParseNumber}}, []string{"Name", "Qty"})

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"Amount", "Qty"}, schemaErr.Missing)
}

func TestCleanMatchesHeaderCaseInsensitively(t *testing.T) {
	table := models.RawTable{
		Columns: []string{"\ufeffname", " AMOUNT "},
		Rows:    [][]string{{"Store A", "10"}},
	}

	frame, err := Clean(table, []ColumnRule{{Column: "Amount", Transform: ParseNumber}}, []string{"Name"})
	require.NoError(t, err)
	assert.True(t, frame.Has("Name"))
	assert.True(t, frame.Has("amount"))
	assert.Equal(t, 1, frame.Len())
}

func TestCleanDropsRowsMissingRequiredValues(t *testing.T) {
	table := salesTable(
		[]string{"Store A", "T", "I", "1", "10", "100", "2024-01-15"},
		[]string{"   ", "T", "I", "1", "10", "100", "2024-01-15"},
		[]string{"Store B", "T", "I", "1", "10", "n/a", "2024-01-15"},
		[]string{"Store C", "T", "I", "1", "10", "100", "not a date"},
		[]string{"Store D", "T", "I"},
		[]string{"Store E", "", "", "", "", "5", "2024/02/03"},
	)
	rules, required := seriesRules(models.DefaultColumnMap())

	frame, err := Clean(table, rules, required)
	require.NoError(t, err)

	assert.Equal(t, 2, frame.Len())
	assert.Equal(t, 4, frame.Dropped)

	rows := frame.SalesRows(models.DefaultColumnMap())
	assert.Equal(t, "Store A", rows[0].EntityName)
	assert.Equal(t, "Store E", rows[1].EntityName)
	assert.Equal(t, time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC), rows[1].Date)

	// 必須でない列は変換されず、空なら0値になる
	assert.Equal(t, 0.0, rows[1].Quantity)
	assert.Equal(t, "", rows[1].ItemCategory)
}

func TestCleanRequiredConstraintsHold(t *testing.T) {
	table := salesTable(
		[]string{"A", "", "", "", "", "1", "2024-01-01"},
		[]string{"", "", "", "", "", "2", "2024-01-01"},
		[]string{"B", "", "", "", "", "", "2024-01-01"},
		[]string{"C", "", "", "", "", "3", ""},
	)
	rules, required := seriesRules(models.DefaultColumnMap())

	frame, err := Clean(table, rules, required)
	require.NoError(t, err)

	for i := 0; i < frame.Len(); i++ {
		for _, col := range required {
			c, ok := frame.Cell(i, col)
			require.True(t, ok)
			assert.True(t, c.Present, "row %d column %s", i, col)
		}
	}
	assert.Equal(t, 3, frame.Dropped)

	again, err := Clean(table, rules, required)
	require.NoError(t, err)
	assert.Equal(t, frame.Dropped, again.Dropped)
}

func TestCleanDoesNotMutateInput(t *testing.T) {
	table := salesTable([]string{" Store A ", "T", "I", "1", "1,000", "1,000", "2024-01-15"})

	_, err := Clean(table, []ColumnRule{
		{Column: "Name", Transform: TrimText},
		{Column: "Amount", Transform: ParseNumber},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, " Store A ", table.Rows[0][0])
	assert.Equal(t, "1,000", table.Rows[0][5])
}

func TestParseAnyDateLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2024-03-05",
		"2024-03-05 13:45:00",
		"2024-03-05T13:45:00Z",
		"2024/03/05",
		"03/05/2024",
		"05-Mar-2024",
		"March 5, 2024",
		"20240305",
		"3/5/24",
		"3/5/24 13:45",
		"03-05-24",
	} {
		got, ok := parseAnyDate(in, dateLayouts)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := parseAnyDate("yesterday", dateLayouts)
	assert.False(t, ok)
}

func TestTransformString(t *testing.T) {
	assert.Equal(t, "parse_number", ParseNumber.String())
	assert.Equal(t, "trim_text", TrimText.String())
	assert.Equal(t, "parse_date", ParseDate.String())
}
