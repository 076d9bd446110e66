package services

import (
	"sort"
	"strings"
	"time"

	"sales-insight-api/pkg/models"
)

// MinForecastPoints is the number of distinct months needed to fit a forecast.
const MinForecastPoints = 2

// seriesRules returns the cleaning rules of the monthly series.
func seriesRules(cols models.ColumnMap) ([]ColumnRule, []string) {
	rules := []ColumnRule{
		{Column: cols.EntityName, Transform: TrimText},
		{Column: cols.Date, Transform: ParseDate},
		{Column: cols.Amount, Transform: ParseNumber},
	}
	return rules, []string{cols.EntityName, cols.Date, cols.Amount}
}

// CleanForSeries cleans table for monthly aggregation and returns the kept rows.
func CleanForSeries(table models.RawTable, cols models.ColumnMap) ([]models.SalesRow, int, error) {
	rules, required := seriesRules(cols)
	frame, err := Clean(table, rules, required)
	if err != nil {
		return nil, 0, err
	}
	return frame.SalesRows(cols), frame.Dropped, nil
}

// AggregateMonthly sums Amount per (EntityName, calendar month).
// The result is sorted by entity name, then month.
func AggregateMonthly(rows []models.SalesRow) []models.MonthlyAggregate {
	type key struct {
		name  string
		month time.Time
	}
	sums := make(map[key]float64)
	for _, r := range rows {
		sums[key{name: r.EntityName, month: monthStart(r.Date)}] += r.Amount
	}

	out := make([]models.MonthlyAggregate, 0, len(sums))
	for k, v := range sums {
		out = append(out, models.MonthlyAggregate{EntityName: k.name, Month: k.month, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityName != out[j].EntityName {
			return out[i].EntityName < out[j].EntityName
		}
		return out[i].Month.Before(out[j].Month)
	})
	return out
}

// normalizeEntity is the lookup key for entity names. Stored names are never rewritten.
func normalizeEntity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SeriesFor filters aggregates to entity (case- and whitespace-insensitive) and
// returns its months in ascending order. Differently-cased spellings of the same
// entity are merged so that every month appears once.
func SeriesFor(aggregates []models.MonthlyAggregate, entity string) []models.TimeSeriesPoint {
	want := normalizeEntity(entity)
	byMonth := make(map[time.Time]float64)
	for _, a := range aggregates {
		if normalizeEntity(a.EntityName) == want {
			byMonth[a.Month] += a.Amount
		}
	}

	months := make([]time.Time, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	points := make([]models.TimeSeriesPoint, 0, len(months))
	for _, m := range months {
		v := byMonth[m]
		points = append(points, models.TimeSeriesPoint{Date: m, ActualValue: &v})
	}
	return points
}

// DistinctEntities returns the sorted distinct entity names of the aggregates.
func DistinctEntities(aggregates []models.MonthlyAggregate) []string {
	seen := make(map[string]bool)
	var names []string
	for _, a := range aggregates {
		if !seen[a.EntityName] {
			seen[a.EntityName] = true
			names = append(names, a.EntityName)
		}
	}
	sort.Strings(names)
	return names
}

// MonthlySeries cleans table, aggregates it by month and returns the series of entity.
// It fails with NotFoundError (carrying every known entity) when nothing matches, and
// with InsufficientDataError when fewer than MinForecastPoints months exist.
func MonthlySeries(table models.RawTable, cols models.ColumnMap, entity string) (*models.EntitySeries, error) {
	rows, _, err := CleanForSeries(table, cols)
	if err != nil {
		return nil, err
	}
	aggregates := AggregateMonthly(rows)

	points := SeriesFor(aggregates, entity)
	if len(points) == 0 {
		return nil, &NotFoundError{Entity: entity, Available: DistinctEntities(aggregates)}
	}
	if len(points) < MinForecastPoints {
		return nil, &InsufficientDataError{Entity: entity, Points: len(points)}
	}
	return &models.EntitySeries{Entity: entity, Points: points}, nil
}

// EntityNames returns the sorted distinct non-empty entity names of table.
// Unlike MonthlySeries it does not require a valid date or amount.
func EntityNames(table models.RawTable, cols models.ColumnMap) ([]string, error) {
	frame, err := Clean(table,
		[]ColumnRule{{Column: cols.EntityName, Transform: TrimText}},
		[]string{cols.EntityName})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	names := make([]string, 0)
	for _, r := range frame.SalesRows(cols) {
		if !seen[r.EntityName] {
			seen[r.EntityName] = true
			names = append(names, r.EntityName)
		}
	}
	sort.Strings(names)
	return names, nil
}
