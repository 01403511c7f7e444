package stats

import (
	"fmt"
	"math"

	"github.com/wagerlytics/handlecast/timeseries"
)

// Decomposition holds the additive components of a series, aligned
// index-for-index with the source. Trend + Seasonal + Remainder reconstructs
// the source exactly.
type Decomposition struct {
	Source     *timeseries.Series
	Trend      *timeseries.Series
	Seasonal   *timeseries.Series
	Remainder  *timeseries.Series
	Period     int
	Iterations int
}

// DecomposeConfig controls the iterative decomposition loop.
type DecomposeConfig struct {
	MaxIterations int     // smoothing passes (default 3)
	Tolerance     float64 // relative component change for early stop (default 1e-6)
}

// DefaultDecomposeConfig returns the default decomposition settings.
func DefaultDecomposeConfig() *DecomposeConfig {
	return &DecomposeConfig{
		MaxIterations: 3,
		Tolerance:     1e-6,
	}
}

// Decompose separates a dense series into trend, seasonal, and remainder
// components by iterative locally-weighted smoothing: the seasonal component
// comes from smoothing each cycle subseries of the detrended values, the
// trend from smoothing the seasonally adjusted series, repeated until the
// components settle. Requires at least two full seasonal cycles.
func Decompose(series *timeseries.Series, period int, cfg *DecomposeConfig) (*Decomposition, error) {
	if cfg == nil {
		cfg = DefaultDecomposeConfig()
	}
	if period < 2 {
		return nil, fmt.Errorf("%w: period %d too small", ErrInsufficientData, period)
	}

	n := series.Len()
	if n < 2*period {
		return nil, fmt.Errorf("%w: need %d observations for period %d, have %d",
			ErrInsufficientData, 2*period, period, n)
	}
	if err := series.Dense(); err != nil {
		return nil, err
	}

	values := series.Values()
	scale := meanAbs(values)
	if scale == 0 {
		scale = 1
	}

	trend := centeredMA(values, period)
	seasonal := make([]float64, n)

	iterations := 0
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		iterations = iter + 1

		// Seasonal pass: smooth each cycle subseries of the detrended values.
		detrended := make([]float64, n)
		for i := range values {
			detrended[i] = values[i] - trend[i]
		}
		newSeasonal := cycleSubseriesSmooth(detrended, period)
		centerSeasonal(newSeasonal, period)

		// Trend pass: smooth the seasonally adjusted series.
		adjusted := make([]float64, n)
		for i := range values {
			adjusted[i] = values[i] - newSeasonal[i]
		}
		newTrend := triangularSmooth(adjusted, oddWindow(period))

		delta := 0.0
		for i := range values {
			delta = math.Max(delta, math.Abs(newTrend[i]-trend[i]))
			delta = math.Max(delta, math.Abs(newSeasonal[i]-seasonal[i]))
		}

		trend = newTrend
		seasonal = newSeasonal

		if delta/scale < cfg.Tolerance {
			break
		}
	}

	remainder := make([]float64, n)
	for i := range values {
		remainder[i] = values[i] - trend[i] - seasonal[i]
	}

	start := series.Start()
	trendSeries, err := timeseries.FromValues(series.Name()+"_trend", start, trend)
	if err != nil {
		return nil, err
	}
	seasonalSeries, err := timeseries.FromValues(series.Name()+"_seasonal", start, seasonal)
	if err != nil {
		return nil, err
	}
	remainderSeries, err := timeseries.FromValues(series.Name()+"_remainder", start, remainder)
	if err != nil {
		return nil, err
	}

	return &Decomposition{
		Source:     series,
		Trend:      trendSeries,
		Seasonal:   seasonalSeries,
		Remainder:  remainderSeries,
		Period:     period,
		Iterations: iterations,
	}, nil
}

// SeasonalStrength measures how much of the detrended variation a stable
// seasonal pattern explains: max(0, 1 - Var(detrended - S)/Var(detrended)),
// with S the per-phase mean of the detrended series. Using per-phase means
// rather than the smoothed seasonal component keeps white noise from
// registering as seasonality: the cycle-subseries smoother tracks noise
// within each phase, but the phase mean of noise shrinks with the number of
// observed cycles.
func (d *Decomposition) SeasonalStrength() float64 {
	source := d.Source.Values()
	trend := d.Trend.Values()
	n := len(source)

	detrended := make([]float64, n)
	for i := range source {
		detrended[i] = source[i] - trend[i]
	}

	phaseMean := make([]float64, d.Period)
	phaseCount := make([]int, d.Period)
	for i, v := range detrended {
		phase := i % d.Period
		phaseMean[phase] += v
		phaseCount[phase]++
	}
	for p := range phaseMean {
		if phaseCount[p] > 0 {
			phaseMean[p] /= float64(phaseCount[p])
		}
	}

	residual := make([]float64, n)
	for i, v := range detrended {
		residual[i] = v - phaseMean[i%d.Period]
	}

	varD := sampleVariance(detrended)
	if varD == 0 {
		return 0
	}

	strength := 1 - sampleVariance(residual)/varD
	if strength < 0 {
		return 0
	}
	return strength
}

// cycleSubseriesSmooth smooths the values belonging to each seasonal phase
// with a centered window over that phase's subseries, so the seasonal
// pattern can drift slowly across cycles.
func cycleSubseriesSmooth(detrended []float64, period int) []float64 {
	n := len(detrended)
	out := make([]float64, n)

	for phase := 0; phase < period; phase++ {
		var idx []int
		for i := phase; i < n; i += period {
			idx = append(idx, i)
		}

		sub := make([]float64, len(idx))
		for j, i := range idx {
			sub[j] = detrended[i]
		}
		smoothed := triangularSmooth(sub, 3)
		for j, i := range idx {
			out[i] = smoothed[j]
		}
	}

	return out
}

// centerSeasonal removes the rolling period-mean so the seasonal component
// sums to zero over any full cycle.
func centerSeasonal(seasonal []float64, period int) {
	n := len(seasonal)
	for start := 0; start < n; start += period {
		end := start + period
		if end > n {
			end = n
		}
		mean := 0.0
		for i := start; i < end; i++ {
			mean += seasonal[i]
		}
		mean /= float64(end - start)
		for i := start; i < end; i++ {
			seasonal[i] -= mean
		}
	}
}

// triangularSmooth applies a centered triangularly-weighted moving average,
// shrinking the window near the edges.
func triangularSmooth(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	half := window / 2

	for i := 0; i < n; i++ {
		sum := 0.0
		weightSum := 0.0
		for j := -half; j <= half; j++ {
			idx := i + j
			if idx < 0 || idx >= n {
				continue
			}
			w := 1 - math.Abs(float64(j))/float64(half+1)
			sum += values[idx] * w
			weightSum += w
		}
		out[i] = sum / weightSum
	}

	return out
}

// centeredMA computes the classical centered moving average used as the
// initial trend estimate, extending shrunken windows to the edges so every
// position has a value.
func centeredMA(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	half := period / 2

	for i := 0; i < n; i++ {
		lo := i - half
		hi := i + half
		if lo < 0 {
			lo = 0
		}
		if hi >= n {
			hi = n - 1
		}

		sum := 0.0
		count := 0.0
		for j := lo; j <= hi; j++ {
			w := 1.0
			if period%2 == 0 && (j == i-half || j == i+half) {
				w = 0.5
			}
			sum += values[j] * w
			count += w
		}
		out[i] = sum / count
	}

	return out
}

func oddWindow(period int) int {
	if period%2 == 0 {
		return period + 1
	}
	return period
}

func meanAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v)
	}
	return sum / float64(len(values))
}

func sampleVariance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(n-1)
}
