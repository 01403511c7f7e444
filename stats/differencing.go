package stats

import (
	"math"

	"github.com/wagerlytics/handlecast/timeseries"
)

// Difference applies d orders of non-seasonal differencing followed by D
// orders of seasonal differencing at the given period. The result is
// len(values) - d - D*period long.
func Difference(values []float64, d, D, period int) []float64 {
	out := append([]float64(nil), values...)

	for i := 0; i < d; i++ {
		if len(out) <= 1 {
			return nil
		}
		next := make([]float64, len(out)-1)
		for j := 1; j < len(out); j++ {
			next[j-1] = out[j] - out[j-1]
		}
		out = next
	}

	for i := 0; i < D; i++ {
		if len(out) <= period {
			return nil
		}
		next := make([]float64, len(out)-period)
		for j := period; j < len(out); j++ {
			next[j-period] = out[j] - out[j-period]
		}
		out = next
	}

	return out
}

// Integrate undoes differencing to bring forecasts on the differenced scale
// back to the original scale. Differencing order in Difference is
// non-seasonal first, then seasonal, so integration undoes seasonal first,
// then non-seasonal, each step anchored on the matching difference level of
// the training series. original is the undifferenced training series.
// Integrate(Difference(y, d, D, m) tail, y head, d, D, m) recovers the y
// tail exactly.
func Integrate(forecasts, original []float64, d, D, period int) []float64 {
	result := append([]float64(nil), forecasts...)

	// Training series at each non-seasonal difference level.
	levels := make([][]float64, d+1)
	levels[0] = append([]float64(nil), original...)
	for k := 1; k <= d; k++ {
		prev := levels[k-1]
		if len(prev) <= 1 {
			levels[k] = nil
			continue
		}
		next := make([]float64, len(prev)-1)
		for j := 1; j < len(prev); j++ {
			next[j-1] = prev[j] - prev[j-1]
		}
		levels[k] = next
	}

	// Undo seasonal differencing (y_t = z_t + y_{t-period}), anchored on
	// the fully non-seasonally differenced training values at each level.
	if D > 0 && period > 0 {
		base := levels[d]
		sLevels := make([][]float64, D+1)
		sLevels[0] = base
		for k := 1; k <= D; k++ {
			prev := sLevels[k-1]
			if len(prev) <= period {
				sLevels[k] = nil
				continue
			}
			next := make([]float64, len(prev)-period)
			for j := period; j < len(prev); j++ {
				next[j-period] = prev[j] - prev[j-period]
			}
			sLevels[k] = next
		}

		for k := D; k >= 1; k-- {
			anchor := sLevels[k-1]
			for j := 0; j < len(result); j++ {
				if j < period {
					idx := len(anchor) - period + j
					if idx >= 0 && idx < len(anchor) {
						result[j] += anchor[idx]
					}
				} else {
					result[j] += result[j-period]
				}
			}
		}
	}

	// Undo non-seasonal differencing: cumulative sum anchored on the last
	// training value of the next-lower difference level.
	for k := d; k >= 1; k-- {
		anchor := levels[k-1]
		if len(anchor) == 0 {
			continue
		}
		last := anchor[len(anchor)-1]
		for j := 0; j < len(result); j++ {
			if j == 0 {
				result[j] += last
			} else {
				result[j] += result[j-1]
			}
		}
	}

	return result
}

// NDiffs determines how many first differences make the series stationary,
// up to maxD, using the KPSS test ("kpss", default) or ADF ("adf"). The
// second return reports whether stationarity was actually reached within
// the allowance.
func NDiffs(series *timeseries.Series, maxD int, testType string) (int, bool) {
	if maxD <= 0 {
		maxD = 2
	}
	if testType == "" {
		testType = "kpss"
	}

	current := series
	for d := 0; d <= maxD; d++ {
		if isStationary(current, testType) {
			return d, true
		}
		if d == maxD {
			break
		}
		current = current.Diff()
		if current.Len() < 10 {
			return d + 1, false
		}
	}

	return maxD, false
}

func isStationary(series *timeseries.Series, testType string) bool {
	if testType == "adf" {
		result := ADF(series, 0)
		return result != nil && result.IsStationary
	}
	result := KPSS(series, "c", 0)
	return result != nil && result.IsStationary
}

// NSDiffs determines the seasonal differencing order, up to maxD, using the
// seasonal strength heuristic (one difference suggested while F_S >= 0.64).
func NSDiffs(series *timeseries.Series, period int, maxD int) int {
	if maxD <= 0 {
		maxD = 1
	}
	if period <= 1 || series.Len() < 2*period {
		return 0
	}

	current := series
	for d := 0; d < maxD; d++ {
		decomp, err := Decompose(current, period, nil)
		if err != nil {
			return d
		}
		if decomp.SeasonalStrength() < 0.64 {
			return d
		}

		current = current.SeasonalDiff(period)
		if current.Len() < 2*period {
			return d + 1
		}
	}

	return maxD
}

// InformationCriteria bundles the likelihood-based model scores.
type InformationCriteria struct {
	LogLik float64
	AIC    float64
	AICc   float64
	BIC    float64
}

// CalculateIC computes AIC, small-sample-corrected AICc, and BIC from a
// log-likelihood with nParams estimated parameters over nObs observations.
func CalculateIC(logLik float64, nObs, nParams int) InformationCriteria {
	k := float64(nParams)
	n := float64(nObs)

	aic := -2*logLik + 2*k
	bic := -2*logLik + k*math.Log(n)

	aicc := math.Inf(1)
	if n-k-1 > 0 {
		aicc = aic + 2*k*(k+1)/(n-k-1)
	}

	return InformationCriteria{
		LogLik: logLik,
		AIC:    aic,
		AICc:   aicc,
		BIC:    bic,
	}
}

// GaussianLogLik computes the Gaussian log-likelihood implied by a residual
// sum of squares, the shared likelihood basis all model families use so
// their information criteria are comparable.
func GaussianLogLik(sse float64, n int) float64 {
	if n == 0 || sse <= 0 {
		return math.Inf(-1)
	}
	nf := float64(n)
	sigma2 := sse / nf
	return -nf/2*(math.Log(2*math.Pi*sigma2)) - sse/(2*sigma2)
}
