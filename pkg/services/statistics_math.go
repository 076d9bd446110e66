package services

import (
	"fmt"
	"math"
)

// RegressionResult is an ordinary least squares fit y = Slope*x + Intercept.
type RegressionResult struct {
	Slope     float64
	Intercept float64
	RSquared  float64 // 決定係数。y が一定のときは NaN
}

// Predict evaluates the fitted line at x.
func (r RegressionResult) Predict(x float64) float64 {
	return r.Slope*x + r.Intercept
}

// performLinearRegression 最小二乗法による単回帰
func performLinearRegression(x, y []float64) (RegressionResult, error) {
	if len(x) != len(y) || len(x) < 2 {
		return RegressionResult{}, fmt.Errorf("データ系列の長さが一致しないか、データ数が不足しています (x=%d, y=%d)", len(x), len(y))
	}

	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return RegressionResult{}, fmt.Errorf("説明変数の分散が0です")
	}
	slope := (n*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssTotal, ssResidual float64
	for i := range x {
		predicted := slope*x[i] + intercept
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
		ssResidual += (y[i] - predicted) * (y[i] - predicted)
	}

	return RegressionResult{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  1 - ssResidual/ssTotal,
	}, nil
}

// calculateMean パッケージ内部用のヘルパー関数：平均値を計算
func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// calculateStandardDeviation パッケージ内部用のヘルパー関数：母標準偏差を計算
func calculateStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := calculateMean(values)
	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(values)))
}

// standardize rescales values to zero mean and unit variance.
// A constant input maps to all zeros.
func standardize(values []float64) []float64 {
	mean := calculateMean(values)
	std := calculateStandardDeviation(values)
	out := make([]float64, len(values))
	if std == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out
}
