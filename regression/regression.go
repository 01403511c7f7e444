// Package regression implements the linear model family: value regressed on
// a continuous trend index, seasonal-phase dummies, optional exogenous
// covariates, and an optional one-period lag of the target. Fit is ordinary
// least squares.
package regression

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wagerlytics/handlecast/model"
	"github.com/wagerlytics/handlecast/stats"
	"github.com/wagerlytics/handlecast/timeseries"
)

// ErrSingularMatrix is returned when the design matrix is rank-deficient,
// e.g. a covariate collinear with the trend.
var ErrSingularMatrix = errors.New("regression: singular design matrix")

var _ model.Candidate = (*Model)(nil)

// Config selects the regressors.
type Config struct {
	Period     int  // seasonal phases; 12 for monthly data (default 12)
	IncludeLag bool // include the one-period lag of the target

	Covariates []timeseries.Covariate

	// FutureCovariates supplies covariate values for forecast periods, one
	// slice per covariate name, indexed by horizon step. Required for
	// forecasting when Covariates is non-empty.
	FutureCovariates map[string][]float64
}

// DefaultConfig returns the default regression configuration: trend plus
// seasonal dummies plus the lagged target.
func DefaultConfig() *Config {
	return &Config{
		Period:     12,
		IncludeLag: true,
	}
}

// Coefficient is one estimated regressor with its significance test.
type Coefficient struct {
	Name        string
	Estimate    float64
	StdErr      float64
	TStat       float64
	PValue      float64
	Significant bool // p <= 0.05
}

// Model is a fitted regression candidate. Immutable once fit; it retains
// only training data, so multi-step forecasts can only feed back their own
// predictions for the lag regressor.
type Model struct {
	cfg    Config
	train  *timeseries.Series
	coeffs []Coefficient

	xtxInv     *mat.Dense
	sigma2     float64
	fittedVals []float64
	residuals  []float64
	fitStats   modelStats

	lagCoeff float64 // 0 when the lag regressor is absent
}

type modelStats struct {
	logLik float64
	aic    float64
	aicc   float64
	bic    float64
	adjR2  float64
	nObs   int
	k      int
}

// Fit estimates the model on the training series by ordinary least squares.
func Fit(series *timeseries.Series, cfg *Config) (*Model, error) {
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
	startRow := 0
	if cfg.IncludeLag {
		startRow = 1
	}
	rows := n - startRow

	names := columnNames(cfg)
	k := len(names)
	if rows <= k {
		return nil, fmt.Errorf("%w: %d observations for %d regressors", stats.ErrInsufficientData, rows, k)
	}

	covRows, err := timeseries.AlignCovariates(series, cfg.Covariates)
	if err != nil {
		return nil, err
	}

	x := mat.NewDense(rows, k, nil)
	y := make([]float64, rows)
	for t := startRow; t < n; t++ {
		i := t - startRow
		y[i] = series.ValueAt(t)
		x.SetRow(i, designRow(series, cfg, covRows, t))
	}

	// Least squares by QR. Solving the normal equations instead would
	// square the design's condition number and reject legitimate covariates
	// as rank-deficient.
	var qr mat.QR
	qr.Factorize(x)

	yv := mat.NewVecDense(rows, y)
	beta := mat.NewVecDense(k, nil)
	if err := qr.SolveVecTo(beta, false, yv); err != nil {
		c, ok := err.(mat.Condition)
		if !ok || float64(c) > 1e14 {
			return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
		}
	}

	// (X'X)^-1 = R^-1 R^-T, needed for coefficient standard errors and
	// forecast parameter variance.
	var rFull mat.Dense
	qr.RTo(&rFull)
	var rInv mat.Dense
	if err := rInv.Inverse(rFull.Slice(0, k, 0, k)); err != nil {
		c, ok := err.(mat.Condition)
		if !ok || float64(c) > 1e14 {
			return nil, fmt.Errorf("%w: %v", ErrSingularMatrix, err)
		}
	}
	xtxInv := &mat.Dense{}
	xtxInv.Mul(&rInv, rInv.T())

	fitted := make([]float64, rows)
	residuals := make([]float64, rows)
	sse := 0.0
	for i := 0; i < rows; i++ {
		pred := mat.Dot(x.RowView(i), beta)
		fitted[i] = pred
		residuals[i] = y[i] - pred
		sse += residuals[i] * residuals[i]
	}

	sigma2 := sse / float64(rows-k)

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(rows - k)}
	coeffs := make([]Coefficient, k)
	for j := 0; j < k; j++ {
		est := beta.AtVec(j)
		se := math.Sqrt(sigma2 * xtxInv.At(j, j))
		tStat := math.Inf(1)
		pValue := 0.0
		if se > 0 {
			tStat = est / se
			pValue = 2 * (1 - tDist.CDF(math.Abs(tStat)))
		}
		coeffs[j] = Coefficient{
			Name:        names[j],
			Estimate:    est,
			StdErr:      se,
			TStat:       tStat,
			PValue:      pValue,
			Significant: pValue <= 0.05,
		}
	}

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(rows)
	sst := 0.0
	for _, v := range y {
		d := v - mean
		sst += d * d
	}
	r2 := 0.0
	if sst > 0 {
		r2 = 1 - sse/sst
	}
	adjR2 := 1 - (1-r2)*float64(rows-1)/float64(rows-k)

	logLik := stats.GaussianLogLik(sse, rows)
	ic := stats.CalculateIC(logLik, rows, k+1) // +1 for the variance

	m := &Model{
		cfg:        *cfg,
		train:      series,
		coeffs:     coeffs,
		xtxInv:     xtxInv,
		sigma2:     sigma2,
		fittedVals: fitted,
		residuals:  residuals,
		fitStats: modelStats{
			logLik: logLik,
			aic:    ic.AIC,
			aicc:   ic.AICc,
			bic:    ic.BIC,
			adjR2:  adjR2,
			nObs:   rows,
			k:      k + 1,
		},
	}
	if cfg.IncludeLag {
		m.lagCoeff = coeffs[k-1].Estimate
	}
	return m, nil
}

// columnNames lists the design matrix columns in order: intercept, trend,
// seasonal dummies (January is the dropped reference phase), covariates,
// lag.
func columnNames(cfg *Config) []string {
	names := []string{"intercept", "trend"}
	for m := time.February; m <= time.December; m++ {
		names = append(names, "month_"+m.String())
	}
	for _, cov := range cfg.Covariates {
		names = append(names, cov.Name)
	}
	if cfg.IncludeLag {
		names = append(names, "lag1")
	}
	return names
}

// designRow builds the regressor row for training position t.
func designRow(series *timeseries.Series, cfg *Config, covRows [][]float64, t int) []float64 {
	row := make([]float64, 0, len(columnNames(cfg)))
	row = append(row, 1, float64(t))
	row = append(row, monthDummies(series.PeriodAt(t).Month)...)
	if len(covRows) > 0 {
		row = append(row, covRows[t]...)
	}
	if cfg.IncludeLag {
		row = append(row, series.ValueAt(t-1))
	}
	return row
}

// monthDummies encodes the seasonal phase with January as reference.
func monthDummies(m time.Month) []float64 {
	dummies := make([]float64, 11)
	if m != time.January {
		dummies[int(m)-2] = 1
	}
	return dummies
}

// Name identifies the candidate configuration.
func (m *Model) Name() string {
	name := "regression(trend+season"
	if len(m.cfg.Covariates) > 0 {
		name += fmt.Sprintf("+%dcov", len(m.cfg.Covariates))
	}
	if m.cfg.IncludeLag {
		name += "+lag"
	}
	return name + ")"
}

// Coefficients returns the estimated regressors with significance tests.
func (m *Model) Coefficients() []Coefficient {
	return append([]Coefficient(nil), m.coeffs...)
}

// Stats returns the candidate's fit statistics.
func (m *Model) Stats() model.FitStats {
	return model.FitStats{
		LogLik:    m.fitStats.logLik,
		AIC:       m.fitStats.aic,
		AICc:      m.fitStats.aicc,
		BIC:       m.fitStats.bic,
		AdjR2:     m.fitStats.adjR2,
		Sigma2:    m.sigma2,
		NumParams: m.fitStats.k,
		NObs:      m.fitStats.nObs,
	}
}

// FittedValues returns the in-sample fitted values. With the lag regressor
// the first training observation has no fitted value.
func (m *Model) FittedValues() []float64 {
	return append([]float64(nil), m.fittedVals...)
}

// Residuals returns the in-sample residuals matching FittedValues.
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.residuals...)
}

// TrainEnd returns the last training period.
func (m *Model) TrainEnd() timeseries.Period {
	return m.train.End()
}

// DropInsignificant refits the model excluding covariates (and the lag
// regressor) whose coefficients were not significant at the 5% level. The
// structural trend and seasonal terms are always kept.
func (m *Model) DropInsignificant() (*Model, error) {
	next := m.cfg
	next.Covariates = nil
	for _, cov := range m.cfg.Covariates {
		for _, c := range m.coeffs {
			if c.Name == cov.Name && c.Significant {
				next.Covariates = append(next.Covariates, cov)
			}
		}
	}
	if m.cfg.IncludeLag {
		for _, c := range m.coeffs {
			if c.Name == "lag1" {
				next.IncludeLag = c.Significant
			}
		}
	}
	return Fit(m.train, &next)
}

// PredictWithInterval forecasts steps periods past the training range. When
// the model includes the lagged target, each step's lag input is the
// previous step's own forecast (the first step uses the last training
// value); future observations are never consulted. Models with covariates
// require FutureCovariates to cover the horizon.
func (m *Model) PredictWithInterval(steps int, confidence float64) (point, lower, upper []float64, err error) {
	if steps < 1 {
		return nil, nil, nil, errors.New("regression: steps must be at least 1")
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}

	futureCovs := make([][]float64, steps)
	for h := 0; h < steps; h++ {
		futureCovs[h] = make([]float64, len(m.cfg.Covariates))
		for j, cov := range m.cfg.Covariates {
			vals, ok := m.cfg.FutureCovariates[cov.Name]
			if !ok || len(vals) < steps {
				return nil, nil, nil, fmt.Errorf("regression: covariate %q lacks %d future values", cov.Name, steps)
			}
			futureCovs[h][j] = vals[h]
		}
	}

	z := stats.NormalQuantile((1 + confidence) / 2)
	n := m.train.Len()

	point = make([]float64, steps)
	lower = make([]float64, steps)
	upper = make([]float64, steps)

	prev := m.train.ValueAt(n - 1)
	lagVar := 0.0 // accumulated forecast-error variance fed through the lag

	for h := 0; h < steps; h++ {
		period := m.train.End().Add(h + 1)

		row := make([]float64, 0, len(m.coeffs))
		row = append(row, 1, float64(n+h))
		row = append(row, monthDummies(period.Month)...)
		row = append(row, futureCovs[h]...)
		if m.cfg.IncludeLag {
			row = append(row, prev)
		}

		pred := 0.0
		for j, c := range m.coeffs {
			pred += c.Estimate * row[j]
		}
		point[h] = pred
		prev = pred

		// Parameter uncertainty x'(X'X)^-1 x plus residual variance
		// propagated through the lag recursion.
		xv := mat.NewVecDense(len(row), row)
		var tmp mat.VecDense
		tmp.MulVec(m.xtxInv, xv)
		paramVar := m.sigma2 * mat.Dot(xv, &tmp)

		lagVar = m.sigma2 + m.lagCoeff*m.lagCoeff*lagVar

		se := math.Sqrt(lagVar + paramVar)
		lower[h] = pred - z*se
		upper[h] = pred + z*se
	}

	return point, lower, upper, nil
}
