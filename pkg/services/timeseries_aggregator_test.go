package services

import (
	"errors"
	"testing"
	"time"

	"sales-insight-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func storeTable() models.RawTable {
	return salesTable(
		[]string{"Store A", "T", "I", "1", "60", "60", "2024-01-05"},
		[]string{"Store A", "T", "I", "1", "40", "40", "2024-01-20"},
		[]string{"Store A", "T", "I", "1", "150", "1,50", "2024-02-11"},
		[]string{"Store B", "T", "I", "1", "10", "10", "2024-01-02"},
		[]string{"", "T", "I", "1", "10", "999", "2024-01-02"},
		[]string{"Store C", "T", "I", "1", "10", "bad", "2024-03-02"},
	)
}

func TestMonthlySeriesStoreA(t *testing.T) {
	series, err := MonthlySeries(storeTable(), models.DefaultColumnMap(), "Store A")
	require.NoError(t, err)

	require.Len(t, series.Points, 2)
	assert.Equal(t, month(2024, time.January), series.Points[0].Date)
	assert.Equal(t, 100.0, *series.Points[0].ActualValue)
	assert.Equal(t, month(2024, time.February), series.Points[1].Date)
	assert.Equal(t, 150.0, *series.Points[1].ActualValue)
}

func TestMonthlySeriesMatchesNameLoosely(t *testing.T) {
	series, err := MonthlySeries(storeTable(), models.DefaultColumnMap(), "STORE a ")
	require.NoError(t, err)
	assert.Len(t, series.Points, 2)
	assert.Equal(t, "STORE a ", series.Entity)
}

func TestMonthlySeriesUnknownEntity(t *testing.T) {
	_, err := MonthlySeries(storeTable(), models.DefaultColumnMap(), "Store Z")

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "Store Z", notFound.Entity)
	// Store C の行は金額が不正なので候補に含まれない
	assert.Equal(t, []string{"Store A", "Store B"}, notFound.Available)
	assert.Contains(t, err.Error(), "Store Z")
}

func TestMonthlySeriesSingleMonth(t *testing.T) {
	_, err := MonthlySeries(storeTable(), models.DefaultColumnMap(), "store b")

	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Points)
}

func TestMonthlySeriesMissingColumn(t *testing.T) {
	table := models.RawTable{Columns: []string{"Name", "Amount"}, Rows: [][]string{{"A", "1"}}}

	_, err := MonthlySeries(table, models.DefaultColumnMap(), "A")

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"Date"}, schemaErr.Missing)
}

func TestAggregateMonthlyConservesTotals(t *testing.T) {
	rows, dropped, err := CleanForSeries(storeTable(), models.DefaultColumnMap())
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	var rowTotal float64
	for _, r := range rows {
		rowTotal += r.Amount
	}

	aggregates := AggregateMonthly(rows)
	var aggTotal float64
	for _, a := range aggregates {
		aggTotal += a.Amount
	}
	assert.InDelta(t, rowTotal, aggTotal, 1e-9)

	// 名前、月の順に並ぶ
	require.Len(t, aggregates, 3)
	assert.Equal(t, "Store A", aggregates[0].EntityName)
	assert.Equal(t, month(2024, time.January), aggregates[0].Month)
	assert.Equal(t, month(2024, time.February), aggregates[1].Month)
	assert.Equal(t, "Store B", aggregates[2].EntityName)
}

func TestSeriesForMergesSpellingsAndIsIncreasing(t *testing.T) {
	aggregates := []models.MonthlyAggregate{
		{EntityName: "Shop", Month: month(2024, time.March), Amount: 3},
		{EntityName: "SHOP", Month: month(2024, time.January), Amount: 1},
		{EntityName: "shop", Month: month(2024, time.March), Amount: 4},
		{EntityName: "Other", Month: month(2024, time.February), Amount: 9},
	}

	points := SeriesFor(aggregates, " shop")

	require.Len(t, points, 2)
	assert.Equal(t, 1.0, *points[0].ActualValue)
	assert.Equal(t, 7.0, *points[1].ActualValue)
	for i := 1; i < len(points); i++ {
		assert.True(t, points[i-1].Date.Before(points[i].Date))
	}
}

func TestEntityNames(t *testing.T) {
	table := salesTable(
		[]string{" Zeta ", "", "", "", "", "", ""},
		[]string{"Alpha", "", "", "", "", "", ""},
		[]string{"", "", "", "", "", "", ""},
		[]string{"Zeta", "", "", "", "", "", ""},
	)

	names, err := EntityNames(table, models.DefaultColumnMap())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Zeta"}, names)
}
