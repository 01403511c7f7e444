// Package model defines the uniform capability set every fitted model
// family exposes (fitted values, residuals, scores, interval forecasting)
// and the Forecaster that turns a fitted candidate into a period-stamped
// forecast.
package model

import (
	"errors"

	"github.com/wagerlytics/handlecast/timeseries"
)

var (
	// ErrInvalidHorizon is returned for forecast horizons below 1.
	ErrInvalidHorizon = errors.New("model: forecast horizon must be at least 1")

	// ErrConvergence is returned when a parameter optimizer exhausts its
	// iteration budget without converging.
	ErrConvergence = errors.New("model: optimizer failed to converge")
)

// FitStats is the score vector shared by all model families. Every family
// computes LogLik as the Gaussian likelihood implied by its residual
// variance, so the information criteria share a basis.
type FitStats struct {
	LogLik    float64
	AIC       float64
	AICc      float64
	BIC       float64
	AdjR2     float64
	Sigma2    float64 // residual variance
	NumParams int
	NObs      int
}

// Candidate is a fitted model. Implementations are immutable once fit and
// hold no data past the end of their training range, so multi-step
// forecasts can only feed back their own predictions.
type Candidate interface {
	// Name identifies the family and configuration, e.g. "sarima(1,1,1)(0,1,1)[12]".
	Name() string

	// Stats returns the candidate's fit statistics.
	Stats() FitStats

	// FittedValues returns in-sample one-step fitted values on the original
	// scale, aligned with the training range the family models.
	FittedValues() []float64

	// Residuals returns the in-sample residuals matching FittedValues.
	Residuals() []float64

	// TrainEnd returns the last training period; forecasts start strictly
	// after it.
	TrainEnd() timeseries.Period

	// PredictWithInterval produces steps point forecasts with a two-sided
	// interval at the given confidence level.
	PredictWithInterval(steps int, confidence float64) (point, lower, upper []float64, err error)
}

// Forecast is an ordered sequence of forecast points with two-sided
// intervals, for periods strictly after the training range. Immutable once
// produced.
type Forecast struct {
	Periods    []timeseries.Period
	Point      []float64
	Lower      []float64
	Upper      []float64
	Confidence float64
}

// Len returns the forecast horizon.
func (f *Forecast) Len() int { return len(f.Point) }

// At returns the forecast for period p, if present.
func (f *Forecast) At(p timeseries.Period) (point, lower, upper float64, ok bool) {
	for i, fp := range f.Periods {
		if fp == p {
			return f.Point[i], f.Lower[i], f.Upper[i], true
		}
	}
	return 0, 0, 0, false
}

// Forecaster projects a fitted candidate forward.
type Forecaster struct {
	candidate Candidate
}

// NewForecaster wraps a fitted candidate.
func NewForecaster(c Candidate) *Forecaster {
	return &Forecaster{candidate: c}
}

// Horizon produces exactly h forecast points at the given confidence level
// (0 < confidence < 1; 0 selects 0.95). Interval width is made
// non-decreasing in horizon: a family whose raw width dips at some step is
// widened to the previous step's width.
func (f *Forecaster) Horizon(h int, confidence float64) (*Forecast, error) {
	if h < 1 {
		return nil, ErrInvalidHorizon
	}
	if confidence == 0 {
		confidence = 0.95
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, errors.New("model: confidence must be in (0, 1)")
	}

	point, lower, upper, err := f.candidate.PredictWithInterval(h, confidence)
	if err != nil {
		return nil, err
	}

	for i := 1; i < h; i++ {
		prev := upper[i-1] - lower[i-1]
		cur := upper[i] - lower[i]
		if cur < prev {
			grow := (prev - cur) / 2
			lower[i] -= grow
			upper[i] += grow
		}
	}

	periods := make([]timeseries.Period, h)
	start := f.candidate.TrainEnd()
	for i := range periods {
		periods[i] = start.Add(i + 1)
	}

	return &Forecast{
		Periods:    periods,
		Point:      point,
		Lower:      lower,
		Upper:      upper,
		Confidence: confidence,
	}, nil
}
