package services

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"sales-insight-api/pkg/models"
)

const (
	// DefaultForecastPeriods is the horizon used when the request does not set one.
	DefaultForecastPeriods = 12
	// MaxForecastPeriods bounds the horizon of a single request.
	MaxForecastPeriods = 120
)

// Forecaster is a time-series model fitted on one entity's monthly history.
// Predict returns one point per historical month followed by periods future months.
type Forecaster interface {
	Fit(series []models.TimeSeriesPoint) error
	Predict(periods int) ([]models.ForecastPoint, error)
}

// ForecasterFactory returns a fresh, unfitted Forecaster.
type ForecasterFactory func() Forecaster

// LinearTrendForecaster fits a least-squares trend over the month index and
// reports a z-score interval from the residual standard deviation.
type LinearTrendForecaster struct {
	ZScore float64

	regression RegressionResult
	origin     time.Time
	last       time.Time
	history    []time.Time
	sigma      float64
	fitted     bool
}

// NewLinearTrendForecaster returns a forecaster with a 95% interval.
func NewLinearTrendForecaster() Forecaster {
	return &LinearTrendForecaster{ZScore: 1.96}
}

// Fit estimates the trend. Points without an actual value are ignored.
func (f *LinearTrendForecaster) Fit(series []models.TimeSeriesPoint) error {
	var xs, ys []float64
	var dates []time.Time
	for _, p := range series {
		if p.ActualValue == nil {
			continue
		}
		dates = append(dates, p.Date)
		ys = append(ys, *p.ActualValue)
	}
	if len(dates) < MinForecastPoints {
		return fmt.Errorf("予測には最低%d か月分のデータが必要です (got %d)", MinForecastPoints, len(dates))
	}

	f.origin = dates[0]
	for _, d := range dates {
		xs = append(xs, float64(monthsBetween(f.origin, d)))
	}
	reg, err := performLinearRegression(xs, ys)
	if err != nil {
		return err
	}

	residuals := make([]float64, len(ys))
	for i := range ys {
		residuals[i] = ys[i] - reg.Predict(xs[i])
	}

	f.regression = reg
	f.sigma = calculateStandardDeviation(residuals)
	f.history = dates
	f.last = dates[len(dates)-1]
	f.fitted = true
	return nil
}

// Predict returns fitted values over the history plus periods future month starts.
// The interval widens with the distance past the last observed month.
func (f *LinearTrendForecaster) Predict(periods int) ([]models.ForecastPoint, error) {
	if !f.fitted {
		return nil, errors.New("forecaster has not been fitted")
	}
	if periods < 0 {
		return nil, fmt.Errorf("periods must not be negative: %d", periods)
	}

	n := float64(len(f.history))
	out := make([]models.ForecastPoint, 0, len(f.history)+periods)
	point := func(d time.Time, ahead int) models.ForecastPoint {
		x := float64(monthsBetween(f.origin, d))
		yhat := f.regression.Predict(x)
		margin := f.ZScore * f.sigma * math.Sqrt(1+float64(ahead)/n)
		return models.ForecastPoint{
			Date:           d,
			PredictedValue: yhat,
			LowerBound:     yhat - margin,
			UpperBound:     yhat + margin,
		}
	}

	for _, d := range f.history {
		out = append(out, point(d, 0))
	}
	for i := 1; i <= periods; i++ {
		out = append(out, point(f.last.AddDate(0, i, 0), i))
	}
	return out, nil
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// ForecastService builds an entity's monthly series, runs a Forecaster on it and
// merges the actuals back into the prediction by month.
type ForecastService struct {
	columns       models.ColumnMap
	newForecaster ForecasterFactory
	logger        *slog.Logger
}

// NewForecastService 新しい売上予測サービスを作成
func NewForecastService(columns models.ColumnMap, factory ForecasterFactory, logger *slog.Logger) *ForecastService {
	if factory == nil {
		factory = NewLinearTrendForecaster
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ForecastService{columns: columns, newForecaster: factory, logger: logger}
}

// Forecast predicts periods future months for store.
// Errors: NotFoundError, InsufficientDataError, ConfigurationError, SchemaError.
func (s *ForecastService) Forecast(table models.RawTable, store string, periods int) (*models.ForecastResult, error) {
	if periods < 1 || periods > MaxForecastPeriods {
		return nil, &ConfigurationError{Field: "periods", Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxForecastPeriods, periods)}
	}

	series, err := MonthlySeries(table, s.columns, store)
	if err != nil {
		return nil, err
	}

	months := make([]string, 0, len(series.Points))
	for _, p := range series.Points {
		months = append(months, p.Date.Format("2006-01"))
	}
	s.logger.Info("📈 forecast input", "store", store, "months", months)

	model := s.newForecaster()
	if err := model.Fit(series.Points); err != nil {
		return nil, fmt.Errorf("failed to fit forecaster for %s: %w", store, err)
	}
	predicted, err := model.Predict(periods)
	if err != nil {
		return nil, fmt.Errorf("failed to predict for %s: %w", store, err)
	}

	return &models.ForecastResult{
		Store:    store,
		Forecast: MergeActuals(predicted, series.ActualsByDate()),
	}, nil
}

// MergeActuals joins actual values onto predicted points by exact date and
// fills the display date. Non-finite actuals become nil.
func MergeActuals(predicted []models.ForecastPoint, actuals map[time.Time]float64) []models.ForecastPoint {
	out := make([]models.ForecastPoint, len(predicted))
	for i, p := range predicted {
		p.ActualValue = nil
		if v, ok := actuals[p.Date]; ok {
			p.ActualValue = FiniteOrNil(v)
		}
		p.DateLabel = p.Date.Format("2006-01-02")
		out[i] = p
	}
	return out
}
