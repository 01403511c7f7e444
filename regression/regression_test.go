package regression

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagerlytics/handlecast/timeseries"
)

func seasonalSeries(t *testing.T, n int, noise float64, seed int64) *timeseries.Series {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	for i := range values {
		values[i] = 200 + 3*float64(i) + 25*math.Sin(2*math.Pi*float64(i)/12) + noise*rng.NormFloat64()
	}
	s, err := timeseries.FromValues("handle", timeseries.NewPeriod(2017, time.January), values)
	require.NoError(t, err)
	return s
}

func TestFitRecoversTrend(t *testing.T) {
	series := seasonalSeries(t, 84, 0.5, 11)

	cfg := DefaultConfig()
	cfg.IncludeLag = false
	m, err := Fit(series, cfg)
	require.NoError(t, err)

	var trend Coefficient
	for _, c := range m.Coefficients() {
		if c.Name == "trend" {
			trend = c
		}
	}
	assert.InDelta(t, 3.0, trend.Estimate, 0.1)
	assert.True(t, trend.Significant)

	st := m.Stats()
	assert.Greater(t, st.AdjR2, 0.99)
	assert.Equal(t, series.Len(), st.NObs)
}

func TestFitWithLagShortensSample(t *testing.T) {
	series := seasonalSeries(t, 60, 1, 13)

	m, err := Fit(series, DefaultConfig())
	require.NoError(t, err)

	assert.Len(t, m.FittedValues(), 59)
	assert.Len(t, m.Residuals(), 59)
}

func TestCollinearCovariateFails(t *testing.T) {
	series := seasonalSeries(t, 60, 1, 17)

	// A covariate identical to the trend index is perfectly collinear.
	trendCopy := make([]float64, series.Len())
	for i := range trendCopy {
		trendCopy[i] = float64(i)
	}
	cov, err := timeseries.FromValues("trend_copy", series.Start(), trendCopy)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.IncludeLag = false
	cfg.Covariates = []timeseries.Covariate{timeseries.NewCovariate("trend_copy", cov)}

	_, err = Fit(series, cfg)
	assert.ErrorIs(t, err, ErrSingularMatrix)
}

func TestCovariateCoefficient(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	n := 84
	states := make([]float64, n)
	values := make([]float64, n)
	for i := range values {
		states[i] = float64(10 + i/6) // staircase growth, not collinear with trend
		values[i] = 100 + 1.2*float64(i) + 8*states[i] +
			15*math.Sin(2*math.Pi*float64(i)/12) + rng.NormFloat64()
	}
	start := timeseries.NewPeriod(2017, time.January)
	series, err := timeseries.FromValues("handle", start, values)
	require.NoError(t, err)
	covSeries, err := timeseries.FromValues("legal_states", start, states)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.IncludeLag = false
	cfg.Covariates = []timeseries.Covariate{timeseries.NewCovariate("legal_states", covSeries)}

	m, err := Fit(series, cfg)
	require.NoError(t, err)

	for _, c := range m.Coefficients() {
		if c.Name == "legal_states" {
			assert.InDelta(t, 8.0, c.Estimate, 1.0)
			assert.True(t, c.Significant)
		}
	}
}

func TestIllConditionedDesignStillFits(t *testing.T) {
	// A covariate on a vastly different scale inflates the design's
	// condition number without making it rank-deficient. The fit must
	// succeed and keep finite standard errors.
	rng := rand.New(rand.NewSource(41))
	n := 84
	spend := make([]float64, n)
	values := make([]float64, n)
	for i := range values {
		spend[i] = 2e8 + 1e6*float64(10+i/6)
		values[i] = 100 + 1.2*float64(i) + 3e-6*spend[i] +
			15*math.Sin(2*math.Pi*float64(i)/12) + rng.NormFloat64()
	}
	start := timeseries.NewPeriod(2017, time.January)
	series, err := timeseries.FromValues("handle", start, values)
	require.NoError(t, err)
	covSeries, err := timeseries.FromValues("promo_spend", start, spend)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.IncludeLag = false
	cfg.Covariates = []timeseries.Covariate{timeseries.NewCovariate("promo_spend", covSeries)}

	m, err := Fit(series, cfg)
	require.NoError(t, err)

	for _, c := range m.Coefficients() {
		assert.False(t, math.IsNaN(c.StdErr), "coefficient %s", c.Name)
		assert.False(t, math.IsInf(c.StdErr, 0), "coefficient %s", c.Name)
	}
}

func TestDropInsignificantRemovesNoiseCovariate(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	n := 84
	noiseCov := make([]float64, n)
	values := make([]float64, n)
	for i := range values {
		noiseCov[i] = rng.NormFloat64()
		values[i] = 200 + 3*float64(i) + 25*math.Sin(2*math.Pi*float64(i)/12) + rng.NormFloat64()
	}
	start := timeseries.NewPeriod(2017, time.January)
	series, err := timeseries.FromValues("handle", start, values)
	require.NoError(t, err)
	covSeries, err := timeseries.FromValues("unrelated", start, noiseCov)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.IncludeLag = false
	cfg.Covariates = []timeseries.Covariate{timeseries.NewCovariate("unrelated", covSeries)}

	m, err := Fit(series, cfg)
	require.NoError(t, err)

	refit, err := m.DropInsignificant()
	require.NoError(t, err)

	for _, c := range refit.Coefficients() {
		assert.NotEqual(t, "unrelated", c.Name)
	}
}

func TestForecastIsRecursiveAndDeterministic(t *testing.T) {
	series := seasonalSeries(t, 84, 0.5, 29)

	m, err := Fit(series, DefaultConfig())
	require.NoError(t, err)

	p1, l1, u1, err := m.PredictWithInterval(6, 0.95)
	require.NoError(t, err)
	p2, l2, u2, err := m.PredictWithInterval(6, 0.95)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, l1, l2)
	assert.Equal(t, u1, u2)

	// Manual recursion: each step's lag input is the previous forecast.
	coeffs := m.Coefficients()
	byName := map[string]float64{}
	for _, c := range coeffs {
		byName[c.Name] = c.Estimate
	}
	prev := series.ValueAt(series.Len() - 1)
	for h := 0; h < 6; h++ {
		period := series.End().Add(h + 1)
		pred := byName["intercept"] + byName["trend"]*float64(series.Len()+h)
		if period.Month != time.January {
			pred += byName["month_"+period.Month.String()]
		}
		pred += byName["lag1"] * prev
		assert.InDelta(t, pred, p1[h], 1e-9, "step %d", h)
		prev = pred
	}
}

func TestForecastIntervalWidensWithLag(t *testing.T) {
	series := seasonalSeries(t, 84, 2, 31)

	m, err := Fit(series, DefaultConfig())
	require.NoError(t, err)

	_, lower, upper, err := m.PredictWithInterval(12, 0.95)
	require.NoError(t, err)

	first := upper[0] - lower[0]
	last := upper[11] - lower[11]
	assert.Greater(t, last, first)
}

func TestForecastRequiresFutureCovariates(t *testing.T) {
	series := seasonalSeries(t, 60, 1, 37)
	covVals := make([]float64, series.Len())
	for i := range covVals {
		covVals[i] = float64(i % 4)
	}
	covSeries, err := timeseries.FromValues("leagues", series.Start(), covVals)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Covariates = []timeseries.Covariate{timeseries.NewCovariate("leagues", covSeries)}

	m, err := Fit(series, cfg)
	require.NoError(t, err)

	_, _, _, err = m.PredictWithInterval(4, 0.95)
	assert.Error(t, err, "missing future covariates must fail, not guess")

	cfg.FutureCovariates = map[string][]float64{"leagues": {1, 2, 3, 0}}
	m, err = Fit(series, cfg)
	require.NoError(t, err)
	point, _, _, err := m.PredictWithInterval(4, 0.95)
	require.NoError(t, err)
	assert.Len(t, point, 4)
}

func TestFitRejectsGappedSeries(t *testing.T) {
	start := timeseries.NewPeriod(2020, time.January)
	var points []timeseries.Point
	for i := 0; i < 40; i++ {
		if i == 20 {
			continue
		}
		points = append(points, timeseries.Point{Period: start.Add(i), Value: float64(i)})
	}
	series, err := timeseries.New("gapped", points)
	require.NoError(t, err)

	_, err = Fit(series, DefaultConfig())
	assert.ErrorIs(t, err, timeseries.ErrMissingPeriod)
}
