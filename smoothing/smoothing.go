// Package smoothing implements the exponential-smoothing state-space family
// with additive errors: level, optional (damped) additive trend, and
// optional additive seasonality. Smoothing parameters are estimated by
// minimizing the one-step squared prediction error, which maximizes the
// Gaussian likelihood.
package smoothing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"

	"github.com/wagerlytics/handlecast/model"
	"github.com/wagerlytics/handlecast/stats"
	"github.com/wagerlytics/handlecast/timeseries"
)

// TrendType selects the trend component.
type TrendType int

const (
	TrendNone TrendType = iota
	TrendAdditive
	TrendDamped
)

// SeasonType selects the seasonal component.
type SeasonType int

const (
	SeasonNone SeasonType = iota
	SeasonAdditive
)

// Variant is one member of the family.
type Variant struct {
	Trend  TrendType
	Season SeasonType
}

func (v Variant) String() string {
	trend := map[TrendType]string{TrendNone: "N", TrendAdditive: "A", TrendDamped: "Ad"}[v.Trend]
	season := map[SeasonType]string{SeasonNone: "N", SeasonAdditive: "A"}[v.Season]
	return fmt.Sprintf("ets(A,%s,%s)", trend, season)
}

// DefaultVariants lists the family members fit by FitBest, simplest first.
func DefaultVariants() []Variant {
	return []Variant{
		{TrendNone, SeasonNone},
		{TrendAdditive, SeasonNone},
		{TrendDamped, SeasonNone},
		{TrendNone, SeasonAdditive},
		{TrendAdditive, SeasonAdditive},
		{TrendDamped, SeasonAdditive},
	}
}

// Config holds fitting options.
type Config struct {
	Period        int       // seasonal period (default 12)
	MaxIterations int       // optimizer iteration budget (default 2000)
	Variants      []Variant // variants considered by FitBest (default DefaultVariants)
}

// DefaultConfig returns the default smoothing configuration.
func DefaultConfig() *Config {
	return &Config{
		Period:        12,
		MaxIterations: 2000,
		Variants:      DefaultVariants(),
	}
}

// Model is a fitted smoothing candidate. Immutable once fit.
type Model struct {
	variant Variant
	period  int

	alpha, beta, gamma, phi float64

	level    float64
	trend    float64
	seasonal []float64 // latest state per phase; nil without seasonality

	fittedVals []float64
	residuals  []float64
	sigma2     float64
	fitStats   model.FitStats

	train *timeseries.Series
}

var _ model.Candidate = (*Model)(nil)

// VariantScore reports one variant's outcome in a FitBest run.
type VariantScore struct {
	Variant Variant
	AICc    float64
	Err     error
}

// FitBest fits every applicable variant and returns the one with the lowest
// AICc, alongside the per-variant scores. Seasonal variants are skipped when
// the series is shorter than two full cycles. All variants failing is an
// error.
func FitBest(series *timeseries.Series, cfg *Config) (*Model, []VariantScore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	variants := cfg.Variants
	if len(variants) == 0 {
		variants = DefaultVariants()
	}

	var (
		best   *Model
		scores []VariantScore
	)
	for _, v := range variants {
		if v.Season == SeasonAdditive && series.Len() < 2*cfg.Period {
			continue
		}

		m, err := FitVariant(series, v, cfg)
		if err != nil {
			scores = append(scores, VariantScore{Variant: v, AICc: math.Inf(1), Err: err})
			continue
		}
		scores = append(scores, VariantScore{Variant: v, AICc: m.fitStats.AICc})
		if best == nil || m.fitStats.AICc < best.fitStats.AICc {
			best = m
		}
	}

	if best == nil {
		return nil, scores, fmt.Errorf("smoothing: no variant could be fit: %w", firstErr(scores))
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].AICc < scores[j].AICc })
	return best, scores, nil
}

func firstErr(scores []VariantScore) error {
	for _, s := range scores {
		if s.Err != nil {
			return s.Err
		}
	}
	return errors.New("no applicable variants")
}

// FitVariant estimates one variant's smoothing parameters by bounded
// Nelder-Mead over the logit-transformed parameter space.
func FitVariant(series *timeseries.Series, v Variant, cfg *Config) (*Model, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Period <= 1 {
		cfg.Period = 12
	}
	if err := series.Dense(); err != nil {
		return nil, err
	}

	n := series.Len()
	if n < 4 {
		return nil, fmt.Errorf("%w: %d observations", stats.ErrInsufficientData, n)
	}
	if v.Season == SeasonAdditive && n < 2*cfg.Period {
		return nil, fmt.Errorf("%w: seasonal variant needs %d observations, have %d",
			stats.ErrInsufficientData, 2*cfg.Period, n)
	}

	values := series.Values()
	init := initialState(values, v, cfg.Period)

	nParams := 1 // alpha
	if v.Trend != TrendNone {
		nParams++ // beta
	}
	if v.Trend == TrendDamped {
		nParams++ // phi
	}
	if v.Season == SeasonAdditive {
		nParams++ // gamma
	}

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			p := unpackParams(u, v)
			sse, _, _ := runRecursion(values, v, cfg.Period, init, p, nil, nil)
			return sse
		},
	}

	u0 := packInitialGuess(v)
	settings := &optimize.Settings{
		MajorIterations: cfg.MaxIterations,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 100},
	}

	result, err := optimize.Minimize(problem, u0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrConvergence, v, err)
	}
	if result == nil || math.IsNaN(result.F) || math.IsInf(result.F, 0) {
		return nil, fmt.Errorf("%w: %s produced a non-finite objective", model.ErrConvergence, v)
	}
	if result.Status == optimize.IterationLimit {
		return nil, fmt.Errorf("%w: %s exhausted %d iterations", model.ErrConvergence, v, cfg.MaxIterations)
	}

	params := unpackParams(result.X, v)

	fitted := make([]float64, n)
	residuals := make([]float64, n)
	sse, finalState, seasonal := runRecursion(values, v, cfg.Period, init, params, fitted, residuals)

	sigma2 := sse / float64(n)
	logLik := stats.GaussianLogLik(sse, n)

	k := nParams + initialStateCount(v, cfg.Period) + 1 // +1 for the variance
	ic := stats.CalculateIC(logLik, n, k)

	adjR2 := adjustedR2(values, residuals, k-1)

	return &Model{
		variant:    v,
		period:     cfg.Period,
		alpha:      params.alpha,
		beta:       params.beta,
		gamma:      params.gamma,
		phi:        params.phi,
		level:      finalState.level,
		trend:      finalState.trend,
		seasonal:   seasonal,
		fittedVals: fitted,
		residuals:  residuals,
		sigma2:     sigma2,
		train:      series,
		fitStats: model.FitStats{
			LogLik:    logLik,
			AIC:       ic.AIC,
			AICc:      ic.AICc,
			BIC:       ic.BIC,
			AdjR2:     adjR2,
			Sigma2:    sigma2,
			NumParams: k,
			NObs:      n,
		},
	}, nil
}

type smoothingParams struct {
	alpha, beta, gamma, phi float64
}

type state struct {
	level, trend float64
}

// sigmoid maps the unconstrained optimizer space into (0,1).
func sigmoid(u float64) float64 {
	return 1 / (1 + math.Exp(-u))
}

func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// unpackParams maps the optimizer vector to constrained parameters:
// alpha, beta, gamma in (0,1), phi in (0.6,1].
func unpackParams(u []float64, v Variant) smoothingParams {
	p := smoothingParams{phi: 1}
	i := 0
	p.alpha = sigmoid(u[i])
	i++
	if v.Trend != TrendNone {
		p.beta = sigmoid(u[i])
		i++
	}
	if v.Trend == TrendDamped {
		p.phi = 0.6 + 0.4*sigmoid(u[i])
		i++
	}
	if v.Season == SeasonAdditive {
		p.gamma = sigmoid(u[i])
	}
	return p
}

func packInitialGuess(v Variant) []float64 {
	u := []float64{logit(0.3)}
	if v.Trend != TrendNone {
		u = append(u, logit(0.1))
	}
	if v.Trend == TrendDamped {
		u = append(u, logit(0.75)) // phi near 0.9
	}
	if v.Season == SeasonAdditive {
		u = append(u, logit(0.1))
	}
	return u
}

func initialStateCount(v Variant, period int) int {
	count := 1 // level
	if v.Trend != TrendNone {
		count++
	}
	if v.Season == SeasonAdditive {
		count += period
	}
	return count
}

type initState struct {
	state    state
	seasonal []float64
}

// initialState derives starting level, trend, and seasonal indices from the
// opening cycles of the series.
func initialState(values []float64, v Variant, period int) initState {
	var st state
	var seasonal []float64

	if v.Season == SeasonAdditive {
		cycle1 := mean(values[:period])
		cycle2 := mean(values[period : 2*period])
		st.level = cycle1
		if v.Trend != TrendNone {
			st.trend = (cycle2 - cycle1) / float64(period)
		}
		seasonal = make([]float64, period)
		for phase := 0; phase < period; phase++ {
			seasonal[phase] = (values[phase] - cycle1 + values[period+phase] - cycle2) / 2
		}
	} else {
		// Least-squares line through the whole series.
		slope, intercept := lsLine(values)
		st.level = intercept
		if v.Trend != TrendNone {
			st.trend = slope
		}
	}

	return initState{state: st, seasonal: seasonal}
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func lsLine(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	var sumT, sumY, sumTY, sumT2 float64
	for i, v := range values {
		t := float64(i)
		sumT += t
		sumY += v
		sumTY += t * v
		sumT2 += t * t
	}
	den := n*sumT2 - sumT*sumT
	if den == 0 {
		return 0, mean(values)
	}
	slope = (n*sumTY - sumT*sumY) / den
	intercept = (sumY - slope*sumT) / n
	return slope, intercept
}

// runRecursion executes the error-correction recursion over the series and
// returns the one-step SSE, the final level/trend state, and the final
// seasonal state. fitted and residuals are filled when non-nil.
func runRecursion(values []float64, v Variant, period int, init initState,
	p smoothingParams, fitted, residuals []float64) (float64, state, []float64) {

	st := init.state
	var seasonal []float64
	if init.seasonal != nil {
		seasonal = append([]float64(nil), init.seasonal...)
	}

	sse := 0.0
	for t, y := range values {
		trendTerm := 0.0
		switch v.Trend {
		case TrendAdditive:
			trendTerm = st.trend
		case TrendDamped:
			trendTerm = p.phi * st.trend
		}

		seasonalTerm := 0.0
		phase := t % period
		if seasonal != nil {
			seasonalTerm = seasonal[phase]
		}

		pred := st.level + trendTerm + seasonalTerm
		e := y - pred

		if fitted != nil {
			fitted[t] = pred
		}
		if residuals != nil {
			residuals[t] = e
		}
		sse += e * e

		st.level = st.level + trendTerm + p.alpha*e
		if v.Trend != TrendNone {
			st.trend = trendTerm + p.beta*e
		}
		if seasonal != nil {
			seasonal[phase] += p.gamma * e
		}
	}

	return sse, st, seasonal
}

// Name identifies the candidate configuration.
func (m *Model) Name() string {
	if m.variant.Season == SeasonAdditive {
		return fmt.Sprintf("%s[%d]", m.variant, m.period)
	}
	return m.variant.String()
}

// Variant returns the fitted family member.
func (m *Model) Variant() Variant { return m.variant }

// Params returns the estimated smoothing coefficients (phi is 1 for
// undamped variants, gamma 0 without seasonality, beta 0 without trend).
func (m *Model) Params() (alpha, beta, gamma, phi float64) {
	return m.alpha, m.beta, m.gamma, m.phi
}

// Stats returns the candidate's fit statistics.
func (m *Model) Stats() model.FitStats { return m.fitStats }

// FittedValues returns in-sample one-step predictions.
func (m *Model) FittedValues() []float64 {
	return append([]float64(nil), m.fittedVals...)
}

// Residuals returns in-sample one-step prediction errors.
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.residuals...)
}

// TrainEnd returns the last training period.
func (m *Model) TrainEnd() timeseries.Period { return m.train.End() }

// PredictWithInterval projects the final state forward. Interval variance
// follows the additive-error propagation sigma^2 * (1 + sum c_j^2), so
// widths never shrink with horizon.
func (m *Model) PredictWithInterval(steps int, confidence float64) (point, lower, upper []float64, err error) {
	if steps < 1 {
		return nil, nil, nil, fmt.Errorf("%w: %d", model.ErrInvalidHorizon, steps)
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}

	z := stats.NormalQuantile((1 + confidence) / 2)
	n := m.train.Len()

	point = make([]float64, steps)
	lower = make([]float64, steps)
	upper = make([]float64, steps)

	phiSum := 0.0
	phiPow := 1.0
	cSumSq := 0.0

	for h := 1; h <= steps; h++ {
		switch m.variant.Trend {
		case TrendAdditive:
			phiSum = float64(h)
		case TrendDamped:
			phiPow *= m.phi
			phiSum += phiPow
		}

		pred := m.level + phiSum*m.trend
		if m.seasonal != nil {
			pred += m.seasonal[(n+h-1)%m.period]
		}
		point[h-1] = pred

		se := math.Sqrt(m.sigma2 * (1 + cSumSq))
		lower[h-1] = pred - z*se
		upper[h-1] = pred + z*se

		// Error-propagation coefficient for the step just produced,
		// contributing to every later horizon.
		c := m.alpha
		switch m.variant.Trend {
		case TrendAdditive:
			c += float64(h) * m.beta
		case TrendDamped:
			c += phiSum * m.beta
		}
		if m.seasonal != nil && h%m.period == 0 {
			c += m.gamma
		}
		cSumSq += c * c
	}

	return point, lower, upper, nil
}

func adjustedR2(values, residuals []float64, k int) float64 {
	n := len(values)
	mu := mean(values)
	sst := 0.0
	for _, v := range values {
		d := v - mu
		sst += d * d
	}
	if sst == 0 {
		return 0
	}
	sse := 0.0
	for _, r := range residuals {
		sse += r * r
	}
	r2 := 1 - sse/sst
	if n-k-1 <= 0 {
		return r2
	}
	return 1 - (1-r2)*float64(n-1)/float64(n-k-1)
}
