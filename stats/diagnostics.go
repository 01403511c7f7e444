package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// LjungBoxResult holds the Ljung-Box portmanteau test outcome. The null
// hypothesis is no autocorrelation up to the tested lag; a p-value below
// 0.05 rejects it.
type LjungBoxResult struct {
	Statistic float64
	PValue    float64
	Lags      int
	DOF       int
}

// LjungBox tests model residuals for autocorrelation up to lags. fitdf is
// the number of parameters the model estimated, subtracted from the degrees
// of freedom.
func LjungBox(residuals []float64, lags, fitdf int) *LjungBoxResult {
	n := len(residuals)
	if n < 10 || lags < 1 {
		return nil
	}
	if lags >= n {
		lags = n - 1
	}

	acf := ACF(residuals, lags)
	if acf == nil {
		return nil
	}

	q := 0.0
	for k := 1; k <= lags; k++ {
		q += (acf[k] * acf[k]) / float64(n-k)
	}
	q *= float64(n * (n + 2))

	dof := lags - fitdf
	if dof < 1 {
		dof = 1
	}

	chi := distuv.ChiSquared{K: float64(dof)}
	pValue := 1 - chi.CDF(q)

	return &LjungBoxResult{
		Statistic: q,
		PValue:    pValue,
		Lags:      lags,
		DOF:       dof,
	}
}

// JarqueBeraResult holds the Jarque-Bera normality test outcome. The null
// hypothesis is that the residuals are normally distributed.
type JarqueBeraResult struct {
	Statistic float64
	PValue    float64
	Skewness  float64
	Kurtosis  float64
}

// JarqueBera tests residuals for departure from normality via skewness and
// excess kurtosis.
func JarqueBera(residuals []float64) *JarqueBeraResult {
	n := len(residuals)
	if n < 10 {
		return nil
	}

	mean := 0.0
	for _, r := range residuals {
		mean += r
	}
	mean /= float64(n)

	var m2, m3, m4 float64
	for _, r := range residuals {
		d := r - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= float64(n)
	m3 /= float64(n)
	m4 /= float64(n)

	if m2 == 0 {
		return nil
	}

	skew := m3 / math.Pow(m2, 1.5)
	kurt := m4 / (m2 * m2)

	jb := float64(n) / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)

	chi := distuv.ChiSquared{K: 2}
	pValue := 1 - chi.CDF(jb)

	return &JarqueBeraResult{
		Statistic: jb,
		PValue:    pValue,
		Skewness:  skew,
		Kurtosis:  kurt,
	}
}

// DurbinWatson calculates the Durbin-Watson statistic for first-order
// residual autocorrelation. Values near 2 indicate none.
func DurbinWatson(residuals []float64) float64 {
	n := len(residuals)
	if n < 2 {
		return math.NaN()
	}

	numerator := 0.0
	for i := 1; i < n; i++ {
		d := residuals[i] - residuals[i-1]
		numerator += d * d
	}

	denominator := 0.0
	for _, r := range residuals {
		denominator += r * r
	}
	if denominator == 0 {
		return math.NaN()
	}

	return numerator / denominator
}
