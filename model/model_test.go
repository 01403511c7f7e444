package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagerlytics/handlecast/timeseries"
)

// stubCandidate returns canned interval paths.
type stubCandidate struct {
	end    timeseries.Period
	point  []float64
	lower  []float64
	upper  []float64
	stats  FitStats
	failed error
}

func (s *stubCandidate) Name() string            { return "stub" }
func (s *stubCandidate) Stats() FitStats         { return s.stats }
func (s *stubCandidate) FittedValues() []float64 { return nil }
func (s *stubCandidate) Residuals() []float64    { return nil }
func (s *stubCandidate) TrainEnd() timeseries.Period {
	return s.end
}

func (s *stubCandidate) PredictWithInterval(steps int, confidence float64) ([]float64, []float64, []float64, error) {
	if s.failed != nil {
		return nil, nil, nil, s.failed
	}
	return s.point[:steps], s.lower[:steps], s.upper[:steps], nil
}

func TestHorizonRejectsInvalidInput(t *testing.T) {
	f := NewForecaster(&stubCandidate{})

	_, err := f.Horizon(0, 0.95)
	assert.ErrorIs(t, err, ErrInvalidHorizon)

	_, err = f.Horizon(-3, 0.95)
	assert.ErrorIs(t, err, ErrInvalidHorizon)

	_, err = f.Horizon(1, 1.5)
	assert.Error(t, err)
}

func TestHorizonStampsPeriodsAfterTraining(t *testing.T) {
	end := timeseries.NewPeriod(2023, time.November)
	stub := &stubCandidate{
		end:   end,
		point: []float64{10, 11, 12},
		lower: []float64{9, 10, 11},
		upper: []float64{11, 12, 13},
	}

	forecast, err := NewForecaster(stub).Horizon(3, 0.95)
	require.NoError(t, err)

	require.Equal(t, 3, forecast.Len())
	assert.Equal(t, timeseries.NewPeriod(2023, time.December), forecast.Periods[0])
	assert.Equal(t, timeseries.NewPeriod(2024, time.January), forecast.Periods[1])
	assert.Equal(t, timeseries.NewPeriod(2024, time.February), forecast.Periods[2])

	point, lower, upper, ok := forecast.At(timeseries.NewPeriod(2024, time.January))
	require.True(t, ok)
	assert.Equal(t, 11.0, point)
	assert.Equal(t, 10.0, lower)
	assert.Equal(t, 12.0, upper)

	_, _, _, ok = forecast.At(timeseries.NewPeriod(2024, time.March))
	assert.False(t, ok)
}

func TestHorizonWidensShrinkingIntervals(t *testing.T) {
	stub := &stubCandidate{
		end:   timeseries.NewPeriod(2023, time.December),
		point: []float64{10, 10, 10},
		lower: []float64{8, 9, 8.5},
		upper: []float64{12, 11, 11.5},
	}

	forecast, err := NewForecaster(stub).Horizon(3, 0.95)
	require.NoError(t, err)

	// Step 2's raw width (2) is below step 1's (4): widened symmetrically.
	assert.Equal(t, 4.0, forecast.Upper[1]-forecast.Lower[1])
	assert.Equal(t, 10.0, (forecast.Upper[1]+forecast.Lower[1])/2)
	// Step 3 is then widened to match step 2.
	assert.Equal(t, 4.0, forecast.Upper[2]-forecast.Lower[2])

	prev := 0.0
	for i := 0; i < forecast.Len(); i++ {
		width := forecast.Upper[i] - forecast.Lower[i]
		assert.GreaterOrEqual(t, width, prev)
		prev = width
	}
}

func TestHorizonDefaultsConfidence(t *testing.T) {
	stub := &stubCandidate{
		end:   timeseries.NewPeriod(2024, time.June),
		point: []float64{5},
		lower: []float64{4},
		upper: []float64{6},
	}

	forecast, err := NewForecaster(stub).Horizon(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.95, forecast.Confidence)
}

func TestHorizonPropagatesCandidateError(t *testing.T) {
	stub := &stubCandidate{failed: ErrConvergence}

	_, err := NewForecaster(stub).Horizon(2, 0.95)
	assert.ErrorIs(t, err, ErrConvergence)
}
