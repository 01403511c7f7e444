// Package event estimates the handle a recurring event will contribute to
// a forecast month, from the share it captured in past months.
package event

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/wagerlytics/handlecast/stats"
	"github.com/wagerlytics/handlecast/timeseries"
)

// ErrDivisionByZero is returned when an occurrence's month total is zero or
// not a number, so no share can be formed.
var ErrDivisionByZero = errors.New("event: occurrence month total is zero")

// Occurrence records one past instance of the event: how much it handled
// and the total handle of its month.
type Occurrence struct {
	Period      timeseries.Period
	EventAmount float64
	PeriodTotal float64
}

// Estimate is the projected contribution for a forecast month, kept with
// its inputs so the projection can be audited and recomputed.
type Estimate struct {
	Value          float64   // projected event handle
	ProjectedRatio float64   // projected share of the month total
	RatioDelta     float64   // per-occurrence trend in the share
	Ratios         []float64 // historical shares, oldest first
}

// Project extrapolates the event's share of monthly handle and applies it
// to the forecast month total. Two occurrences continue the last observed
// change in share; more fit a least-squares line over the share sequence
// and evaluate it one occurrence ahead.
//
// The extrapolation is linear in occurrence count. A format change between
// editions of the event shows up as a share jump the line cannot expect.
func Project(forecastTotal float64, occurrences []Occurrence) (*Estimate, error) {
	if len(occurrences) < 2 {
		return nil, fmt.Errorf("%w: ratio extrapolation needs 2 occurrences, have %d",
			stats.ErrInsufficientData, len(occurrences))
	}

	ratios := make([]float64, len(occurrences))
	for i, occ := range occurrences {
		if occ.PeriodTotal == 0 || math.IsNaN(occ.PeriodTotal) {
			return nil, fmt.Errorf("%w: occurrence %s", ErrDivisionByZero, occ.Period)
		}
		ratios[i] = occ.EventAmount / occ.PeriodTotal
	}

	var projected, delta float64
	if len(ratios) == 2 {
		delta = ratios[1] - ratios[0]
		projected = ratios[1] + delta
	} else {
		xs := make([]float64, len(ratios))
		for i := range xs {
			xs[i] = float64(i)
		}
		intercept, slope := stat.LinearRegression(xs, ratios, nil, false)
		delta = slope
		projected = intercept + slope*float64(len(ratios))
	}

	return &Estimate{
		Value:          forecastTotal * projected,
		ProjectedRatio: projected,
		RatioDelta:     delta,
		Ratios:         ratios,
	}, nil
}
