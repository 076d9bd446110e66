package services

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"sales-insight-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiniteOrNil(t *testing.T) {
	assert.Nil(t, FiniteOrNil(math.NaN()))
	assert.Nil(t, FiniteOrNil(math.Inf(1)))
	assert.Nil(t, FiniteOrNil(math.Inf(-1)))

	v := FiniteOrNil(2.5)
	require.NotNil(t, v)
	assert.Equal(t, 2.5, *v)
}

func TestSanitizeReplacesNonFinite(t *testing.T) {
	in := map[string]any{
		"a": 1.0,
		"b": math.NaN(),
		"c": []any{math.Inf(1), 2.0},
	}

	out := Sanitize(in)

	assert.Equal(t, map[string]any{
		"a": 1.0,
		"b": nil,
		"c": []any{nil, 2.0},
	}, out)
}

func TestSanitizeScalars(t *testing.T) {
	assert.Nil(t, Sanitize(math.Inf(-1)))
	assert.Nil(t, Sanitize(nil))
	assert.Equal(t, "x", Sanitize("x"))
	assert.Equal(t, 3, Sanitize(3))
	assert.Equal(t, true, Sanitize(true))
	assert.Equal(t, []any{}, Sanitize([]float64{}))
}

func TestSanitizeStructUsesJSONNames(t *testing.T) {
	actual := 100.0
	point := models.ForecastPoint{
		Date:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateLabel:      "2024-01-01",
		PredictedValue: math.NaN(),
		LowerBound:     90,
		UpperBound:     math.Inf(1),
		ActualValue:    &actual,
	}

	out, ok := Sanitize(point).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "2024-01-01", out["ds"])
	assert.Nil(t, out["yhat"])
	assert.Equal(t, 90.0, out["yhat_lower"])
	assert.Nil(t, out["yhat_upper"])
	assert.Equal(t, 100.0, out["y_actual"])
	assert.NotContains(t, out, "Date")
}

func TestSanitizeOmitEmptyAndIntKeys(t *testing.T) {
	leaf := &models.TreeNode{Name: "Predict: A"}
	out, ok := Sanitize(leaf).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"name": "Predict: A"}, out)

	membership := map[int][]string{0: {"a"}, 3: {"b", "c"}}
	assert.Equal(t, map[string]any{
		"0": []any{"a"},
		"3": []any{"b", "c"},
	}, Sanitize(membership))
}

func TestSanitizeOutputMarshalsAndIsIdempotent(t *testing.T) {
	in := []map[string]float64{{"x": math.NaN(), "y": 1}, {"x": math.Inf(-1), "y": 2}}

	once := Sanitize(in)
	twice := Sanitize(once)
	assert.Equal(t, once, twice)

	data, err := json.Marshal(once)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"x":null,"y":1},{"x":null,"y":2}]`, string(data))
}

func TestSanitizeDoesNotModifyInput(t *testing.T) {
	in := []float64{1, math.NaN()}
	_ = Sanitize(in)
	assert.True(t, math.IsNaN(in[1]))
}
