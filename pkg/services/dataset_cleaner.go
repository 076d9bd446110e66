package services

import (
	"math"
	"strconv"
	"strings"
	"time"

	"sales-insight-api/pkg/models"
)

// Transform is a per-column coercion applied by the cleaner.
type Transform int

const (
	// ParseNumber strips thousands separators and coerces the cell to float64.
	ParseNumber Transform = iota
	// TrimText trims surrounding whitespace.
	TrimText
	// ParseDate parses the cell with the accepted date layouts.
	ParseDate
)

func (t Transform) String() string {
	switch t {
	case ParseNumber:
		return "parse_number"
	case TrimText:
		return "trim_text"
	case ParseDate:
		return "parse_date"
	default:
		return "unknown"
	}
}

// ColumnRule binds a transform to a column name.
type ColumnRule struct {
	Column    string
	Transform Transform
}

// CellKind tells which field of a Cell holds its value.
type CellKind int

const (
	TextCell CellKind = iota
	NumberCell
	DateCell
)

// Cell is one typed value of a cleaned table. Present is false for blank or unparseable input.
type Cell struct {
	Kind    CellKind
	Text    string
	Number  float64
	Date    time.Time
	Present bool
}

// Frame is the output of Clean: the source header plus typed rows.
type Frame struct {
	Columns []string
	Rows    [][]Cell
	Dropped int

	index map[string]int
}

// dateLayouts are tried in order; the first match wins.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	// excelize が日付セルに適用する表示形式 (m/d/yy h:mm)
	"1/2/06 15:04",
	"1/2/06",
	"01-02-06",
	"02-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// Clean applies rules column by column across the whole table, then drops every
// row that has an absent value in one of the required columns.
// Malformed cells never fail the call; only a missing column does (SchemaError).
func Clean(table models.RawTable, rules []ColumnRule, required []string) (*Frame, error) {
	index := headerIndex(table.Columns)

	var missing []string
	seen := make(map[string]bool)
	check := func(col string) {
		key := normalizeColumn(col)
		if _, ok := index[key]; !ok && !seen[key] {
			seen[key] = true
			missing = append(missing, col)
		}
	}
	for _, r := range rules {
		check(r.Column)
	}
	for _, col := range required {
		check(col)
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	width := len(table.Columns)
	cells := make([][]Cell, len(table.Rows))
	for i, raw := range table.Rows {
		row := make([]Cell, width)
		for j := 0; j < width; j++ {
			var v string
			if j < len(raw) {
				v = raw[j]
			}
			row[j] = Cell{Kind: TextCell, Text: v, Present: strings.TrimSpace(v) != ""}
		}
		cells[i] = row
	}

	// 列単位で変換を適用
	for _, r := range rules {
		j := index[normalizeColumn(r.Column)]
		for i := range cells {
			cells[i][j] = applyTransform(r.Transform, cells[i][j].Text)
		}
	}

	reqIdx := make([]int, 0, len(required))
	for _, col := range required {
		reqIdx = append(reqIdx, index[normalizeColumn(col)])
	}

	kept := make([][]Cell, 0, len(cells))
	for _, row := range cells {
		ok := true
		for _, j := range reqIdx {
			if !row[j].Present {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, row)
		}
	}

	return &Frame{
		Columns: append([]string(nil), table.Columns...),
		Rows:    kept,
		Dropped: len(cells) - len(kept),
		index:   index,
	}, nil
}

func applyTransform(t Transform, raw string) Cell {
	switch t {
	case ParseNumber:
		f, ok := parseNumber(raw)
		return Cell{Kind: NumberCell, Text: raw, Number: f, Present: ok}
	case ParseDate:
		d, ok := parseAnyDate(raw, dateLayouts)
		return Cell{Kind: DateCell, Text: raw, Date: d, Present: ok}
	default:
		s := strings.TrimSpace(raw)
		return Cell{Kind: TextCell, Text: s, Present: s != ""}
	}
}

// parseNumber accepts "1,234.50" style input. Non-finite results count as invalid.
func parseNumber(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// parseAnyDate tries each layout, then retries on the date part when a time suffix is present.
func parseAnyDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), true
		}
	}
	if i := strings.IndexAny(s, " T"); i > 0 {
		part := s[:i]
		for _, layout := range layouts {
			if t, err := time.Parse(layout, part); err == nil {
				return day(t), true
			}
		}
	}
	return time.Time{}, false
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
}

func headerIndex(columns []string) map[string]int {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		key := normalizeColumn(c)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}

// Len returns the number of kept rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Has reports whether the frame has the named column.
func (f *Frame) Has(column string) bool {
	_, ok := f.index[normalizeColumn(column)]
	return ok
}

// Cell returns the cell of row i in the named column.
func (f *Frame) Cell(i int, column string) (Cell, bool) {
	j, ok := f.index[normalizeColumn(column)]
	if !ok || i < 0 || i >= len(f.Rows) {
		return Cell{}, false
	}
	return f.Rows[i][j], true
}

// SalesRows projects the frame onto SalesRow through cols.
// Columns absent from the header, and cells the cleaner marked absent, leave zero values.
func (f *Frame) SalesRows(cols models.ColumnMap) []models.SalesRow {
	out := make([]models.SalesRow, 0, len(f.Rows))
	for i := range f.Rows {
		out = append(out, models.SalesRow{
			EntityName:   f.text(i, cols.EntityName),
			ItemCategory: f.text(i, cols.ItemCategory),
			ItemName:     f.text(i, cols.ItemName),
			Quantity:     f.number(i, cols.Quantity),
			UnitPrice:    f.number(i, cols.UnitPrice),
			Amount:       f.number(i, cols.Amount),
			Date:         f.date(i, cols.Date),
		})
	}
	return out
}

func (f *Frame) text(i int, column string) string {
	c, ok := f.Cell(i, column)
	if !ok || !c.Present {
		return ""
	}
	return c.Text
}

func (f *Frame) number(i int, column string) float64 {
	c, ok := f.Cell(i, column)
	if !ok || !c.Present {
		return 0
	}
	if c.Kind == NumberCell {
		return c.Number
	}
	n, _ := parseNumber(c.Text)
	return n
}

func (f *Frame) date(i int, column string) time.Time {
	c, ok := f.Cell(i, column)
	if !ok || !c.Present {
		return time.Time{}
	}
	if c.Kind == DateCell {
		return c.Date
	}
	d, _ := parseAnyDate(c.Text, dateLayouts)
	return d
}
