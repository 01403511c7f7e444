// Package sarima implements seasonal ARIMA candidates fit by conditional
// sum of squares.
package sarima

import (
	"errors"
	"fmt"
	"math"

	"github.com/wagerlytics/handlecast/model"
	"github.com/wagerlytics/handlecast/stats"
	"github.com/wagerlytics/handlecast/timeseries"
)

// ErrNonStationary is returned by AutoFit when the series remains
// non-stationary after the differencing allowance is exhausted.
var ErrNonStationary = errors.New("sarima: series is non-stationary after maximum differencing")

// Order is the model order (p, d, q) x (P, D, Q)[m].
type Order struct {
	P int // non-seasonal AR order
	D int // non-seasonal differencing order
	Q int // non-seasonal MA order

	SP int // seasonal AR order
	SD int // seasonal differencing order
	SQ int // seasonal MA order
	M  int // seasonal period
}

func (o Order) String() string {
	return fmt.Sprintf("sarima(%d,%d,%d)(%d,%d,%d)[%d]", o.P, o.D, o.Q, o.SP, o.SD, o.SQ, o.M)
}

func (o Order) numParams() int {
	return o.P + o.Q + o.SP + o.SQ + 1 // +1 intercept
}

// Model is a fitted seasonal ARIMA candidate. Immutable once returned by
// Fit.
type Model struct {
	order Order

	arCoeffs  []float64
	maCoeffs  []float64
	sarCoeffs []float64
	smaCoeffs []float64
	intercept float64
	variance  float64

	train      *timeseries.Series
	diffValues []float64 // differenced training values
	residuals  []float64 // one-step errors, identical on both scales
	fittedVals []float64 // one-step predictions on the original scale

	fitStats model.FitStats
}

var _ model.Candidate = (*Model)(nil)

// Fit estimates a model of the given order by conditional sum of squares
// with momentum gradient descent.
func Fit(series *timeseries.Series, order Order) (*Model, error) {
	if order.M <= 1 {
		order.M = 12
	}
	if err := series.Dense(); err != nil {
		return nil, err
	}

	minLen := order.P + order.Q + order.D +
		(order.SP+order.SD+order.SQ)*order.M + 10
	if min := 2 * order.M; minLen < min {
		minLen = min
	}
	if series.Len() < minLen {
		return nil, fmt.Errorf("%w: order %s needs %d observations, have %d",
			stats.ErrInsufficientData, order, minLen, series.Len())
	}

	y := stats.Difference(series.Values(), order.D, order.SD, order.M)
	if len(y) < order.numParams()+5 {
		return nil, fmt.Errorf("%w: %d observations remain after differencing",
			stats.ErrInsufficientData, len(y))
	}

	m := &Model{
		order:      order,
		arCoeffs:   make([]float64, order.P),
		maCoeffs:   make([]float64, order.Q),
		sarCoeffs:  make([]float64, order.SP),
		smaCoeffs:  make([]float64, order.SQ),
		train:      series,
		diffValues: y,
	}

	m.initCoeffs()
	if err := m.optimizeCSS(); err != nil {
		return nil, err
	}
	m.computeStats()

	return m, nil
}

// initCoeffs seeds AR terms from the autocorrelation function and MA terms
// with a small constant, matching where gradient descent starts best.
func (m *Model) initCoeffs() {
	y := m.diffValues
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	m.intercept = mean / float64(len(y))

	if m.order.P > 0 {
		acf := stats.ACF(y, m.order.P)
		for i := 0; i < m.order.P && i+1 < len(acf); i++ {
			m.arCoeffs[i] = acf[i+1] * 0.5
		}
	}
	if m.order.SP > 0 {
		acf := stats.ACF(y, m.order.SP*m.order.M)
		for i := 0; i < m.order.SP; i++ {
			idx := (i + 1) * m.order.M
			if idx < len(acf) {
				m.sarCoeffs[i] = acf[idx] * 0.5
			}
		}
	}
	for i := range m.maCoeffs {
		m.maCoeffs[i] = 0.1
	}
	for i := range m.smaCoeffs {
		m.smaCoeffs[i] = 0.1
	}
}

// predictAt evaluates the one-step prediction at index t on the differenced
// scale given the residual history.
func (m *Model) predictAt(t int, y, residuals []float64, horizon int) float64 {
	pred := m.intercept
	period := m.order.M

	for i := 0; i < m.order.P && t-i-1 >= 0; i++ {
		pred += m.arCoeffs[i] * (y[t-i-1] - m.intercept)
	}
	for i := 0; i < m.order.SP; i++ {
		lag := (i + 1) * period
		if t-lag >= 0 {
			pred += m.sarCoeffs[i] * (y[t-lag] - m.intercept)
		}
	}
	for i := 0; i < m.order.Q && t-i-1 >= 0; i++ {
		if t-i-1 < horizon {
			pred += m.maCoeffs[i] * residuals[t-i-1]
		}
	}
	for i := 0; i < m.order.SQ; i++ {
		lag := (i + 1) * period
		if t-lag >= 0 && t-lag < horizon {
			pred += m.smaCoeffs[i] * residuals[t-lag]
		}
	}
	return pred
}

// optimizeCSS minimizes the conditional sum of squares with adaptive
// learning rate and momentum, tracking the best coefficients seen.
func (m *Model) optimizeCSS() error {
	y := m.diffValues
	n := len(y)
	p, q := m.order.P, m.order.Q
	sp, sq := m.order.SP, m.order.SQ
	period := m.order.M

	const (
		maxIter      = 500
		tolerance    = 1e-10
		momentum     = 0.9
		decay        = 0.995
		patienceStop = 30
	)
	learningRate := 0.1

	// The raw gradient scales with n and with the variance of the data, so
	// normalize the step by both. Without this the effective step collapses
	// on high-variance series and the coefficients stall far from the
	// optimum.
	yVar := 0.0
	for _, v := range y {
		d := v - m.intercept
		yVar += d * d
	}
	yVar /= float64(n)
	if yVar < 1e-12 {
		yVar = 1e-12
	}

	arMom := make([]float64, p)
	maMom := make([]float64, q)
	sarMom := make([]float64, sp)
	smaMom := make([]float64, sq)

	startIdx := max(max(p, q), max(sp*period, sq*period))
	if startIdx >= n-10 {
		startIdx = 0
	}

	bestSSE := math.Inf(1)
	bestAR := make([]float64, p)
	bestMA := make([]float64, q)
	bestSAR := make([]float64, sp)
	bestSMA := make([]float64, sq)
	noImprove := 0

	for iter := 0; iter < maxIter; iter++ {
		residuals := make([]float64, n)
		currentSSE := 0.0
		for t := startIdx; t < n; t++ {
			residuals[t] = y[t] - m.predictAt(t, y, residuals, n)
			currentSSE += residuals[t] * residuals[t]
		}

		if currentSSE < bestSSE {
			bestSSE = currentSSE
			copy(bestAR, m.arCoeffs)
			copy(bestMA, m.maCoeffs)
			copy(bestSAR, m.sarCoeffs)
			copy(bestSMA, m.smaCoeffs)
			noImprove = 0
		} else {
			noImprove++
		}
		if noImprove > patienceStop {
			break
		}

		arGrad := make([]float64, p)
		maGrad := make([]float64, q)
		sarGrad := make([]float64, sp)
		smaGrad := make([]float64, sq)

		for t := startIdx; t < n; t++ {
			for i := 0; i < p && t-i-1 >= 0; i++ {
				arGrad[i] -= 2 * residuals[t] * (y[t-i-1] - m.intercept)
			}
			for i := 0; i < sp; i++ {
				lag := (i + 1) * period
				if t-lag >= 0 {
					sarGrad[i] -= 2 * residuals[t] * (y[t-lag] - m.intercept)
				}
			}
			for i := 0; i < q && t-i-1 >= 0; i++ {
				maGrad[i] -= 2 * residuals[t] * residuals[t-i-1]
			}
			for i := 0; i < sq; i++ {
				lag := (i + 1) * period
				if t-lag >= 0 {
					smaGrad[i] -= 2 * residuals[t] * residuals[t-lag]
				}
			}
		}

		step := learningRate / (float64(n) * yVar)
		for i := 0; i < p; i++ {
			arMom[i] = momentum*arMom[i] + step*arGrad[i]
			m.arCoeffs[i] = clamp(m.arCoeffs[i]-arMom[i], -0.99, 0.99)
		}
		for i := 0; i < sp; i++ {
			sarMom[i] = momentum*sarMom[i] + step*sarGrad[i]
			m.sarCoeffs[i] = clamp(m.sarCoeffs[i]-sarMom[i], -0.99, 0.99)
		}
		for i := 0; i < q; i++ {
			maMom[i] = momentum*maMom[i] + step*maGrad[i]
			m.maCoeffs[i] = clamp(m.maCoeffs[i]-maMom[i], -0.99, 0.99)
		}
		for i := 0; i < sq; i++ {
			smaMom[i] = momentum*smaMom[i] + step*smaGrad[i]
			m.smaCoeffs[i] = clamp(m.smaCoeffs[i]-smaMom[i], -0.99, 0.99)
		}

		learningRate *= decay

		if iter > 0 && math.Abs(currentSSE-bestSSE) < tolerance {
			break
		}
	}

	if math.IsInf(bestSSE, 0) || math.IsNaN(bestSSE) {
		return fmt.Errorf("%w: %s conditional sum of squares diverged", model.ErrConvergence, m.order)
	}

	copy(m.arCoeffs, bestAR)
	copy(m.maCoeffs, bestMA)
	copy(m.sarCoeffs, bestSAR)
	copy(m.smaCoeffs, bestSMA)

	m.residuals = make([]float64, n)
	m.fittedVals = make([]float64, n)
	for t := 0; t < n; t++ {
		m.fittedVals[t] = m.predictAt(t, y, m.residuals, n)
		m.residuals[t] = y[t] - m.fittedVals[t]
	}

	// One-step errors are identical on the differenced and original scales,
	// so the original-scale fitted value at t is the observation minus the
	// residual. The first D + SD*M observations are consumed by differencing.
	orig := m.train.Values()
	offset := len(orig) - n
	for t := 0; t < n; t++ {
		m.fittedVals[t] = orig[t+offset] - m.residuals[t]
	}

	sse := 0.0
	count := 0
	for t := startIdx; t < n; t++ {
		sse += m.residuals[t] * m.residuals[t]
		count++
	}
	if k := m.order.numParams(); count > k {
		m.variance = sse / float64(count-k)
	} else {
		m.variance = sse / float64(count)
	}
	// A zero variance is a perfect in-sample fit (e.g. a pure linear trend
	// after one regular difference), not a failure. Only NaN is degenerate.
	if math.IsNaN(m.variance) {
		return fmt.Errorf("%w: %s produced a degenerate residual variance", model.ErrConvergence, m.order)
	}
	return nil
}

func (m *Model) computeStats() {
	n := len(m.residuals)
	k := m.order.numParams()

	sse := 0.0
	for _, r := range m.residuals {
		sse += r * r
	}

	logLik := stats.GaussianLogLik(sse, n)
	ic := stats.CalculateIC(logLik, n, k+1)

	orig := m.train.Values()
	actual := orig[len(orig)-n:]
	mu := 0.0
	for _, v := range actual {
		mu += v
	}
	mu /= float64(n)
	sst := 0.0
	for _, v := range actual {
		sst += (v - mu) * (v - mu)
	}
	adjR2 := 0.0
	if sst > 0 && n-k-1 > 0 {
		adjR2 = 1 - (sse/float64(n-k-1))/(sst/float64(n-1))
	}

	m.fitStats = model.FitStats{
		LogLik:    logLik,
		AIC:       ic.AIC,
		AICc:      ic.AICc,
		BIC:       ic.BIC,
		AdjR2:     adjR2,
		Sigma2:    m.variance,
		NumParams: k + 1,
		NObs:      n,
	}
}

// Name identifies the candidate configuration.
func (m *Model) Name() string { return m.order.String() }

// ModelOrder returns the fitted order.
func (m *Model) ModelOrder() Order { return m.order }

// Coefficients returns the estimated AR, MA, seasonal AR, and seasonal MA
// coefficients plus the intercept of the differenced process.
func (m *Model) Coefficients() (ar, ma, sar, sma []float64, intercept float64) {
	return append([]float64(nil), m.arCoeffs...),
		append([]float64(nil), m.maCoeffs...),
		append([]float64(nil), m.sarCoeffs...),
		append([]float64(nil), m.smaCoeffs...),
		m.intercept
}

// Stats returns the candidate's fit statistics. NObs counts the observations
// remaining after differencing.
func (m *Model) Stats() model.FitStats { return m.fitStats }

// FittedValues returns one-step predictions on the original scale, aligned
// with the training observations that survive differencing.
func (m *Model) FittedValues() []float64 {
	return append([]float64(nil), m.fittedVals...)
}

// Residuals returns one-step errors on the differenced scale.
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.residuals...)
}

// TrainEnd returns the last training period.
func (m *Model) TrainEnd() timeseries.Period { return m.train.End() }

// PredictWithInterval forecasts on the differenced scale, integrates back
// to the original scale, and attaches intervals whose standard error grows
// with the horizon for integrated orders.
func (m *Model) PredictWithInterval(steps int, confidence float64) (point, lower, upper []float64, err error) {
	if steps < 1 {
		return nil, nil, nil, fmt.Errorf("%w: %d", model.ErrInvalidHorizon, steps)
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}

	y := m.diffValues
	n := len(y)

	extY := make([]float64, n+steps)
	copy(extY, y)
	extRes := make([]float64, n+steps)
	copy(extRes, m.residuals)

	for h := 0; h < steps; h++ {
		t := n + h
		extY[t] = m.predictAt(t, extY, extRes, n)
	}

	point = stats.Integrate(extY[n:], m.train.Values(), m.order.D, m.order.SD, m.order.M)

	z := stats.NormalQuantile((1 + confidence) / 2)
	lower = make([]float64, steps)
	upper = make([]float64, steps)
	for h := 0; h < steps; h++ {
		se := math.Sqrt(m.variance)
		if m.order.D > 0 {
			se *= math.Sqrt(float64(h + 1))
		}
		if m.order.SD > 0 {
			se *= math.Sqrt(float64(h/m.order.M + 1))
		}
		lower[h] = point[h] - z*se
		upper[h] = point[h] + z*se
	}

	return point, lower, upper, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
