// Package timeseries provides the monthly series store used by every
// modeling component: an immutable period-indexed value sequence with gap
// detection, explicit gap marking, range slicing, and covariate alignment.
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

var (
	// ErrMissingPeriod is returned when a dense series is required but the
	// period index still has gaps or unresolved missing markers, or when a
	// covariate does not cover a target period.
	ErrMissingPeriod = errors.New("timeseries: missing period")

	// ErrRange is returned when a slice bound falls outside the series.
	ErrRange = errors.New("timeseries: period out of range")
)

// Point is one (period, value) observation.
type Point struct {
	Period Period
	Value  float64
}

// Series is an immutable monthly time series. Periods are strictly
// increasing; gaps are permitted at construction and surfaced via Missing.
// A NaN value is an explicit missing marker, never a number to model.
type Series struct {
	name    string
	periods []Period
	values  []float64
}

// New creates a series from ordered observations. Periods must be strictly
// increasing months with no duplicates; values must not be infinite.
func New(name string, points []Point) (*Series, error) {
	if len(points) == 0 {
		return nil, errors.New("timeseries: empty series")
	}

	periods := make([]Period, len(points))
	values := make([]float64, len(points))
	for i, pt := range points {
		if i > 0 && pt.Period.Sub(points[i-1].Period) <= 0 {
			return nil, fmt.Errorf("timeseries: period %s does not follow %s", pt.Period, points[i-1].Period)
		}
		if math.IsInf(pt.Value, 0) {
			return nil, fmt.Errorf("timeseries: non-finite value at %s", pt.Period)
		}
		periods[i] = pt.Period
		values[i] = pt.Value
	}

	return &Series{name: name, periods: periods, values: values}, nil
}

// FromValues creates a contiguous series starting at start.
func FromValues(name string, start Period, values []float64) (*Series, error) {
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{Period: start.Add(i), Value: v}
	}
	return New(name, points)
}

// Name returns the series name.
func (s *Series) Name() string { return s.name }

// Len returns the number of stored observations (markers included).
func (s *Series) Len() int { return len(s.values) }

// Start returns the first period.
func (s *Series) Start() Period { return s.periods[0] }

// End returns the last period.
func (s *Series) End() Period { return s.periods[len(s.periods)-1] }

// PeriodAt returns the period at position i.
func (s *Series) PeriodAt(i int) Period { return s.periods[i] }

// ValueAt returns the value at position i.
func (s *Series) ValueAt(i int) float64 { return s.values[i] }

// Values returns a copy of the value sequence.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Periods returns a copy of the period index.
func (s *Series) Periods() []Period {
	out := make([]Period, len(s.periods))
	copy(out, s.periods)
	return out
}

// Points returns a copy of the observations.
func (s *Series) Points() []Point {
	out := make([]Point, len(s.values))
	for i := range s.values {
		out[i] = Point{Period: s.periods[i], Value: s.values[i]}
	}
	return out
}

// At returns the value for period p and whether p is in the index.
func (s *Series) At(p Period) (float64, bool) {
	i := sort.Search(len(s.periods), func(i int) bool {
		return !s.periods[i].Before(p)
	})
	if i < len(s.periods) && s.periods[i] == p {
		return s.values[i], true
	}
	return 0, false
}

// Missing returns the periods absent between Start and End.
func (s *Series) Missing() []Period {
	var missing []Period
	next := s.periods[0]
	for _, p := range s.periods {
		for next.Before(p) {
			missing = append(missing, next)
			next = next.Next()
		}
		next = p.Next()
	}
	return missing
}

// FillGaps returns a new series whose period index is contiguous, with an
// explicit NaN marker at each previously missing period. Markers are not
// zeros and are never interpolated; resolving them is the caller's policy.
func (s *Series) FillGaps() *Series {
	missing := s.Missing()
	if len(missing) == 0 {
		return s
	}

	n := s.End().Sub(s.Start()) + 1
	periods := make([]Period, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		periods[i] = s.Start().Add(i)
		values[i] = math.NaN()
	}
	for i, p := range s.periods {
		values[p.Sub(s.Start())] = s.values[i]
	}

	return &Series{name: s.name, periods: periods, values: values}
}

// Dense verifies the series is gap-free with no missing markers. Components
// that require a dense series call this before fitting.
func (s *Series) Dense() error {
	if m := s.Missing(); len(m) > 0 {
		return fmt.Errorf("%w: %d unfilled gap(s), first at %s", ErrMissingPeriod, len(m), m[0])
	}
	for i, v := range s.values {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: unresolved marker at %s", ErrMissingPeriod, s.periods[i])
		}
	}
	return nil
}

// SliceRange returns the immutable sub-series covering [from, to]. Bounds
// outside the available range fail with ErrRange.
func (s *Series) SliceRange(from, to Period) (*Series, error) {
	if from.Before(s.Start()) || to.After(s.End()) || to.Before(from) {
		return nil, fmt.Errorf("%w: [%s, %s] not within [%s, %s]", ErrRange, from, to, s.Start(), s.End())
	}

	lo := sort.Search(len(s.periods), func(i int) bool { return !s.periods[i].Before(from) })
	hi := sort.Search(len(s.periods), func(i int) bool { return s.periods[i].After(to) })

	return &Series{
		name:    s.name,
		periods: append([]Period(nil), s.periods[lo:hi]...),
		values:  append([]float64(nil), s.values[lo:hi]...),
	}, nil
}

// SplitAt divides the series into a training view of periods before cut and
// a holdout view from cut onward. Neither view may be empty.
func (s *Series) SplitAt(cut Period) (train, holdout *Series, err error) {
	if !cut.After(s.Start()) || cut.After(s.End()) {
		return nil, nil, fmt.Errorf("%w: split at %s outside (%s, %s]", ErrRange, cut, s.Start(), s.End())
	}
	train, err = s.SliceRange(s.Start(), cut.Add(-1))
	if err != nil {
		return nil, nil, err
	}
	holdout, err = s.SliceRange(cut, s.End())
	if err != nil {
		return nil, nil, err
	}
	return train, holdout, nil
}

// Diff returns the first difference of the series.
func (s *Series) Diff() *Series {
	return s.DiffN(1)
}

// DiffN returns the n-th order difference. The result starts n periods in.
func (s *Series) DiffN(n int) *Series {
	if n <= 0 || len(s.values) <= n {
		return &Series{name: s.name + "_diff"}
	}

	values := make([]float64, len(s.values)-n)
	for i := n; i < len(s.values); i++ {
		values[i-n] = s.values[i] - s.values[i-n]
	}

	return &Series{
		name:    s.name + "_diff",
		periods: append([]Period(nil), s.periods[n:]...),
		values:  values,
	}
}

// SeasonalDiff returns the lag-m seasonal difference.
func (s *Series) SeasonalDiff(m int) *Series {
	if m <= 0 || len(s.values) <= m {
		return &Series{name: s.name + "_seasonal_diff"}
	}

	values := make([]float64, len(s.values)-m)
	for i := m; i < len(s.values); i++ {
		values[i-m] = s.values[i] - s.values[i-m]
	}

	return &Series{
		name:    s.name + "_seasonal_diff",
		periods: append([]Period(nil), s.periods[m:]...),
		values:  values,
	}
}

// Lag returns the series shifted by k periods, aligned so that the value at
// position i is the original value k periods earlier.
func (s *Series) Lag(k int) *Series {
	if k <= 0 || k >= len(s.values) {
		return &Series{name: s.name + "_lag"}
	}

	return &Series{
		name:    s.name + "_lag",
		periods: append([]Period(nil), s.periods[k:]...),
		values:  append([]float64(nil), s.values[:len(s.values)-k]...),
	}
}

// Log returns the natural logarithm of the series. Non-positive values
// become missing markers.
func (s *Series) Log() *Series {
	values := make([]float64, len(s.values))
	for i, v := range s.values {
		if v > 0 {
			values[i] = math.Log(v)
		} else {
			values[i] = math.NaN()
		}
	}
	return &Series{
		name:    s.name + "_log",
		periods: append([]Period(nil), s.periods...),
		values:  values,
	}
}

// MovingAverage returns a simple moving average with the given window,
// aligned to the right edge of each window.
func (s *Series) MovingAverage(window int) *Series {
	if window <= 0 || window > len(s.values) {
		return &Series{name: s.name + "_ma"}
	}

	values := make([]float64, len(s.values)-window+1)
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += s.values[i]
	}
	values[0] = sum / float64(window)
	for i := window; i < len(s.values); i++ {
		sum = sum - s.values[i-window] + s.values[i]
		values[i-window+1] = sum / float64(window)
	}

	return &Series{
		name:    s.name + "_ma",
		periods: append([]Period(nil), s.periods[window-1:]...),
		values:  values,
	}
}

// Mean returns the arithmetic mean of the series.
func (s *Series) Mean() float64 {
	m, _ := stats.Mean(s.values)
	return m
}

// Variance returns the sample variance of the series.
func (s *Series) Variance() float64 {
	v, _ := stats.SampleVariance(s.values)
	return v
}

// Std returns the sample standard deviation of the series.
func (s *Series) Std() float64 {
	return math.Sqrt(s.Variance())
}

// Median returns the median value of the series.
func (s *Series) Median() float64 {
	m, _ := stats.Median(s.values)
	return m
}

// Percentile returns the p-th percentile of the series values.
func (s *Series) Percentile(p float64) float64 {
	v, _ := stats.Percentile(s.values, p)
	return v
}

// Min returns the minimum value in the series.
func (s *Series) Min() float64 {
	m, err := stats.Min(s.values)
	if err != nil {
		return math.NaN()
	}
	return m
}

// Max returns the maximum value in the series.
func (s *Series) Max() float64 {
	m, err := stats.Max(s.values)
	if err != nil {
		return math.NaN()
	}
	return m
}
