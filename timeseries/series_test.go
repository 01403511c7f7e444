package timeseries

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodArithmetic(t *testing.T) {
	p := NewPeriod(2023, time.November)

	assert.Equal(t, "2023-11", p.String())
	assert.Equal(t, NewPeriod(2024, time.February), p.Add(3))
	assert.Equal(t, NewPeriod(2022, time.December), p.Add(-11))
	assert.Equal(t, 3, p.Add(3).Sub(p))
	assert.True(t, p.Before(p.Next()))
	assert.True(t, p.Next().After(p))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("2024-02")
	require.NoError(t, err)
	assert.Equal(t, NewPeriod(2024, time.February), p)

	_, err = ParsePeriod("02/2024")
	assert.Error(t, err)
}

func TestNewRejectsDisorderedPeriods(t *testing.T) {
	start := NewPeriod(2023, time.January)

	_, err := New("handle", []Point{
		{Period: start, Value: 1},
		{Period: start, Value: 2},
	})
	assert.Error(t, err, "duplicate period must be rejected")

	_, err = New("handle", []Point{
		{Period: start.Add(1), Value: 1},
		{Period: start, Value: 2},
	})
	assert.Error(t, err, "decreasing period must be rejected")
}

func TestNewRejectsInfiniteValues(t *testing.T) {
	_, err := New("handle", []Point{
		{Period: NewPeriod(2023, time.January), Value: math.Inf(1)},
	})
	assert.Error(t, err)
}

func TestMissingAndFillGaps(t *testing.T) {
	start := NewPeriod(2023, time.January)
	s, err := New("handle", []Point{
		{Period: start, Value: 10},
		{Period: start.Add(1), Value: 11},
		{Period: start.Add(4), Value: 14},
	})
	require.NoError(t, err)

	missing := s.Missing()
	require.Len(t, missing, 2)
	assert.Equal(t, start.Add(2), missing[0])
	assert.Equal(t, start.Add(3), missing[1])

	require.ErrorIs(t, s.Dense(), ErrMissingPeriod)

	filled := s.FillGaps()
	assert.Equal(t, 5, filled.Len())
	assert.True(t, math.IsNaN(filled.ValueAt(2)))
	assert.True(t, math.IsNaN(filled.ValueAt(3)))
	assert.Equal(t, 14.0, filled.ValueAt(4))

	// Markers are explicit, not resolved: still not dense.
	require.ErrorIs(t, filled.Dense(), ErrMissingPeriod)

	// The source series is untouched.
	assert.Equal(t, 3, s.Len())
}

func TestDenseSeries(t *testing.T) {
	s := mustContiguous(t, 24)
	assert.NoError(t, s.Dense())
	assert.Empty(t, s.Missing())
}

func TestSliceRange(t *testing.T) {
	s := mustContiguous(t, 24)
	start := s.Start()

	sub, err := s.SliceRange(start.Add(6), start.Add(11))
	require.NoError(t, err)
	assert.Equal(t, 6, sub.Len())
	assert.Equal(t, start.Add(6), sub.Start())
	assert.Equal(t, start.Add(11), sub.End())
	assert.Equal(t, s.ValueAt(6), sub.ValueAt(0))

	_, err = s.SliceRange(start.Add(-1), start.Add(5))
	assert.ErrorIs(t, err, ErrRange)

	_, err = s.SliceRange(start, start.Add(30))
	assert.ErrorIs(t, err, ErrRange)
}

func TestSliceDoesNotMutateSource(t *testing.T) {
	s := mustContiguous(t, 12)
	before := s.Values()

	sub, err := s.SliceRange(s.Start(), s.Start().Add(5))
	require.NoError(t, err)
	_ = sub

	assert.Equal(t, before, s.Values())
}

func TestSplitAt(t *testing.T) {
	s := mustContiguous(t, 24)
	cut := s.Start().Add(18)

	train, holdout, err := s.SplitAt(cut)
	require.NoError(t, err)
	assert.Equal(t, 18, train.Len())
	assert.Equal(t, 6, holdout.Len())
	assert.Equal(t, cut, holdout.Start())
	assert.Equal(t, cut.Add(-1), train.End())

	_, _, err = s.SplitAt(s.Start())
	assert.ErrorIs(t, err, ErrRange)
}

func TestDiffAndSeasonalDiff(t *testing.T) {
	s := mustContiguous(t, 30)

	d := s.Diff()
	require.Equal(t, s.Len()-1, d.Len())
	assert.Equal(t, s.PeriodAt(1), d.PeriodAt(0))
	assert.InDelta(t, s.ValueAt(1)-s.ValueAt(0), d.ValueAt(0), 1e-12)

	sd := s.SeasonalDiff(12)
	require.Equal(t, s.Len()-12, sd.Len())
	assert.Equal(t, s.PeriodAt(12), sd.PeriodAt(0))
	assert.InDelta(t, s.ValueAt(12)-s.ValueAt(0), sd.ValueAt(0), 1e-12)
}

func TestLagAlignment(t *testing.T) {
	s := mustContiguous(t, 10)

	lag := s.Lag(1)
	require.Equal(t, 9, lag.Len())
	// The lagged value at period t is the original value at t-1.
	assert.Equal(t, s.PeriodAt(1), lag.PeriodAt(0))
	assert.Equal(t, s.ValueAt(0), lag.ValueAt(0))
	assert.Equal(t, s.ValueAt(8), lag.ValueAt(8))
}

func TestAtLookup(t *testing.T) {
	s := mustContiguous(t, 12)

	v, ok := s.At(s.Start().Add(5))
	assert.True(t, ok)
	assert.Equal(t, s.ValueAt(5), v)

	_, ok = s.At(s.End().Next())
	assert.False(t, ok)
}

func TestDescriptiveStats(t *testing.T) {
	s, err := FromValues("x", NewPeriod(2023, time.January), []float64{2, 4, 6, 8})
	require.NoError(t, err)

	assert.InDelta(t, 5.0, s.Mean(), 1e-12)
	assert.InDelta(t, 5.0, s.Median(), 1e-12)
	assert.InDelta(t, 2.0, s.Min(), 1e-12)
	assert.InDelta(t, 8.0, s.Max(), 1e-12)
	assert.InDelta(t, 20.0/3.0, s.Variance(), 1e-9)
}

func TestAlignCovariates(t *testing.T) {
	start := NewPeriod(2023, time.January)
	target := mustContiguous(t, 12)

	states, err := FromValues("legal_states", start, repeat(30, 24))
	require.NoError(t, err)

	rows, err := AlignCovariates(target, []Covariate{NewCovariate("legal_states", states)})
	require.NoError(t, err)
	require.Len(t, rows, 12)
	assert.Equal(t, 30.0, rows[0][0])
	assert.Equal(t, 30.0, rows[11][0])
}

func TestAlignCovariatesUnmatchedPeriodFails(t *testing.T) {
	target := mustContiguous(t, 12)

	short, err := FromValues("leagues", target.Start(), repeat(3, 6))
	require.NoError(t, err)

	_, err = AlignCovariates(target, []Covariate{NewCovariate("leagues", short)})
	assert.ErrorIs(t, err, ErrMissingPeriod)
}

func TestLoadCSVFromReader(t *testing.T) {
	data := `month,handle,legal_states,leagues
2023-01,412.5,30,3
2023-02,530.1,30,2
2023-03,488.0,31,2
`
	opts := DefaultCSVOptions()
	opts.CovariateColumns = []string{"legal_states", "leagues"}

	series, covs, err := LoadCSVFromReader(strings.NewReader(data), opts)
	require.NoError(t, err)

	assert.Equal(t, 3, series.Len())
	assert.Equal(t, NewPeriod(2023, time.January), series.Start())
	assert.Equal(t, 530.1, series.ValueAt(1))

	require.Len(t, covs, 2)
	v, ok := covs[0].Series.At(NewPeriod(2023, time.March))
	assert.True(t, ok)
	assert.Equal(t, 31.0, v)
}

func TestLoadCSVMissingColumn(t *testing.T) {
	data := "month,amount\n2023-01,1\n"
	_, _, err := LoadCSVFromReader(strings.NewReader(data), DefaultCSVOptions())
	assert.Error(t, err)
}

func mustContiguous(t *testing.T, n int) *Series {
	t.Helper()
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	s, err := FromValues("handle", NewPeriod(2023, time.January), values)
	require.NoError(t, err)
	return s
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
