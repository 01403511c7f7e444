package selector

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagerlytics/handlecast/model"
	"github.com/wagerlytics/handlecast/regression"
	"github.com/wagerlytics/handlecast/smoothing"
	"github.com/wagerlytics/handlecast/timeseries"
)

// handleSeries builds n months of synthetic handle: upward trend, a strong
// December peak, and seeded noise.
func handleSeries(t *testing.T, n int, seed int64) *timeseries.Series {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := make([]float64, n)
	for i := range values {
		values[i] = 1000 + 10*float64(i) + 300*math.Sin(2*math.Pi*float64(i-8)/12) + 10*rng.NormFloat64()
	}
	s, err := timeseries.FromValues("handle", timeseries.NewPeriod(2017, time.January), values)
	require.NoError(t, err)
	return s
}

func TestSelectFitsAllFamilies(t *testing.T) {
	train := handleSeries(t, 84, 3)

	result, err := Select(context.Background(), train, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Chosen)

	assert.Len(t, result.Candidates, 3)
	assert.Equal(t, result.Candidates[0].Candidate.Name(), result.Chosen.Name())

	for i := 1; i < len(result.Candidates); i++ {
		assert.LessOrEqual(t, result.Candidates[i-1].AICc, result.Candidates[i].AICc)
	}
}

func TestSelectIsDeterministic(t *testing.T) {
	train := handleSeries(t, 84, 7)

	first, err := Select(context.Background(), train, nil, nil)
	require.NoError(t, err)
	second, err := Select(context.Background(), train, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Chosen.Name(), second.Chosen.Name())
	require.Len(t, second.Candidates, len(first.Candidates))
	for i := range first.Candidates {
		assert.Equal(t, first.Candidates[i].Candidate.Name(), second.Candidates[i].Candidate.Name())
		assert.Equal(t, first.Candidates[i].AICc, second.Candidates[i].AICc)
	}
}

func TestSelectCarriesCovariatesIntoCustomRegressionConfig(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	n := 84
	states := make([]float64, n)
	values := make([]float64, n)
	for i := range values {
		states[i] = float64(10 + i/6)
		values[i] = 1000 + 10*float64(i) + 40*states[i] +
			300*math.Sin(2*math.Pi*float64(i-8)/12) + 10*rng.NormFloat64()
	}
	start := timeseries.NewPeriod(2017, time.January)
	train, err := timeseries.FromValues("handle", start, values)
	require.NoError(t, err)
	covSeries, err := timeseries.FromValues("legal_states", start, states)
	require.NoError(t, err)
	covariates := []timeseries.Covariate{timeseries.NewCovariate("legal_states", covSeries)}

	cfg := DefaultConfig()
	rcfg := regression.DefaultConfig()
	rcfg.IncludeLag = false
	cfg.Regression = rcfg

	result, err := Select(context.Background(), train, covariates, cfg)
	require.NoError(t, err)

	var reg *regression.Model
	for _, scored := range result.Candidates {
		if m, ok := scored.Candidate.(*regression.Model); ok {
			reg = m
		}
	}
	require.NotNil(t, reg, "regression candidate must survive")

	found := false
	for _, c := range reg.Coefficients() {
		if c.Name == "legal_states" {
			found = true
		}
	}
	assert.True(t, found, "covariate must reach the regression fit even with a custom config")
}

func TestSelectAggregatesTotalFailure(t *testing.T) {
	// 14 months: too short for any family once smoothing is pinned to its
	// seasonal variant.
	train := handleSeries(t, 14, 11)

	cfg := DefaultConfig()
	cfg.Smoothing = &smoothing.Config{
		Period:   12,
		Variants: []smoothing.Variant{{Trend: smoothing.TrendAdditive, Season: smoothing.SeasonAdditive}},
	}

	_, err := Select(context.Background(), train, nil, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every candidate failed")
	assert.Contains(t, err.Error(), "regression")
	assert.Contains(t, err.Error(), "sarima")
}

func TestSelectRespectsCancelledContext(t *testing.T) {
	train := handleSeries(t, 84, 13)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Select(ctx, train, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectRejectsGappedSeries(t *testing.T) {
	s, err := timeseries.New("handle", []timeseries.Point{
		{Period: timeseries.NewPeriod(2020, time.January), Value: 1},
		{Period: timeseries.NewPeriod(2020, time.March), Value: 2},
	})
	require.NoError(t, err)

	_, err = Select(context.Background(), s, nil, nil)
	assert.ErrorIs(t, err, timeseries.ErrMissingPeriod)
}

func TestRuleDiagnosticsPrefersCleanResiduals(t *testing.T) {
	train := handleSeries(t, 84, 17)

	cfg := DefaultConfig()
	cfg.Rule = RuleDiagnostics

	result, err := Select(context.Background(), train, nil, cfg)
	require.NoError(t, err)
	require.NotNil(t, result.Chosen)

	// If any candidate passes Ljung-Box the winner must be one of them.
	anyPass := false
	for _, s := range result.Candidates {
		if s.LjungBoxPass {
			anyPass = true
			break
		}
	}
	if anyPass {
		for _, s := range result.Candidates {
			if s.Candidate.Name() == result.Chosen.Name() {
				assert.True(t, s.LjungBoxPass)
			}
		}
	}
}

func TestEndToEndFourteenMonthForecast(t *testing.T) {
	train := handleSeries(t, 84, 19)

	result, err := Select(context.Background(), train, nil, nil)
	require.NoError(t, err)

	forecast, err := model.NewForecaster(result.Chosen).Horizon(14, 0.95)
	require.NoError(t, err)
	require.Equal(t, 14, forecast.Len())

	// Forecast periods start right after the training range.
	assert.Equal(t, train.End().Next(), forecast.Periods[0])
	assert.Equal(t, train.End().Add(14), forecast.Periods[13])

	// Interval widths never shrink with horizon.
	prev := 0.0
	for i := 0; i < forecast.Len(); i++ {
		width := forecast.Upper[i] - forecast.Lower[i]
		assert.GreaterOrEqual(t, width, prev-1e-9, "horizon %d", i+1)
		prev = width
	}

	// The training data peaks each December; the 12th forecast point is the
	// projected December and should clear its neighbors by more than one
	// residual standard deviation.
	peakIdx := 11
	require.Equal(t, time.December, forecast.Periods[peakIdx].Month)
	sigma := math.Sqrt(result.Chosen.Stats().Sigma2)
	assert.Greater(t, forecast.Point[peakIdx], forecast.Point[peakIdx-1]+sigma)
	assert.Greater(t, forecast.Point[peakIdx], forecast.Point[peakIdx+1]+sigma)
}
