// Package selector fits the regression, smoothing, and seasonal ARIMA
// families on the same training series, scores them on a shared likelihood
// basis, and picks a winner.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wagerlytics/handlecast/model"
	"github.com/wagerlytics/handlecast/regression"
	"github.com/wagerlytics/handlecast/sarima"
	"github.com/wagerlytics/handlecast/smoothing"
	"github.com/wagerlytics/handlecast/stats"
	"github.com/wagerlytics/handlecast/timeseries"
)

// Rule decides how candidates are ranked.
type Rule int

const (
	// RuleAICc picks the lowest AICc outright.
	RuleAICc Rule = iota
	// RuleDiagnostics prefers candidates whose residuals pass the Ljung-Box
	// check, ranking those by AICc; if none pass it falls back to RuleAICc.
	RuleDiagnostics
)

// Warning codes attached to the chosen candidate's diagnostics.
const (
	ResidualAutocorrelationWarning = "residual-autocorrelation"
	NonNormalResidualsWarning      = "non-normal-residuals"
)

// Warning is a non-fatal diagnostic finding.
type Warning struct {
	Candidate string
	Code      string
	Detail    string
}

// Config holds selection options.
type Config struct {
	Period     int     // seasonal period (default 12)
	Confidence float64 // interval level carried to forecasting (default 0.95)
	Rule       Rule

	// Regression may carry tuned fit options; nil derives one from Period.
	// Either way the covariates passed to Select take precedence over any
	// the config itself carries.
	Regression *regression.Config
	Smoothing  *smoothing.Config    // nil derives one from Period
	Search     *sarima.SearchConfig // nil derives one from Period
}

// DefaultConfig returns the default selection configuration.
func DefaultConfig() *Config {
	return &Config{
		Period:     12,
		Confidence: 0.95,
		Rule:       RuleAICc,
	}
}

// Scored is one surviving candidate with its ranking inputs.
type Scored struct {
	Candidate model.Candidate
	AICc      float64
	AdjR2     float64

	// LjungBoxPass is false when the residual autocorrelation check
	// rejects at the 5% level. Candidates too short to test pass.
	LjungBoxPass bool
}

// Result is the outcome of a selection run. Candidates are sorted by AICc,
// ties broken by name, so runs over identical inputs are reproducible.
type Result struct {
	Chosen     model.Candidate
	Candidates []Scored
	Warnings   []Warning
}

// Select fits every family concurrently, drops candidates that fail to fit,
// and ranks the survivors. All families failing is an error aggregating
// each failure.
func Select(ctx context.Context, train *timeseries.Series, covariates []timeseries.Covariate, cfg *Config) (*Result, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Period <= 1 {
		cfg.Period = 12
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = 0.95
	}
	if err := train.Dense(); err != nil {
		return nil, err
	}

	type slot struct {
		family    string
		candidate model.Candidate
		err       error
	}
	slots := make([]slot, 3)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rcfg *regression.Config
		if cfg.Regression != nil {
			clone := *cfg.Regression
			rcfg = &clone
		} else {
			rcfg = regression.DefaultConfig()
			rcfg.Period = cfg.Period
		}
		// The covariates argument wins over whatever the sub-config carries,
		// so callers tuning regression options still get their covariates in.
		if len(covariates) > 0 {
			rcfg.Covariates = covariates
		}
		m, err := regression.Fit(train, rcfg)
		slots[0] = slot{family: "regression", candidate: candidateOrNil(m, err), err: err}
		return nil
	})

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		scfg := cfg.Smoothing
		if scfg == nil {
			scfg = smoothing.DefaultConfig()
			scfg.Period = cfg.Period
		}
		m, _, err := smoothing.FitBest(train, scfg)
		slots[1] = slot{family: "smoothing", candidate: candidateOrNil(m, err), err: err}
		return nil
	})

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		acfg := cfg.Search
		if acfg == nil {
			acfg = sarima.DefaultSearchConfig()
			acfg.Period = cfg.Period
		}
		res, err := sarima.AutoFit(train, acfg)
		var c model.Candidate
		if err == nil {
			c = res.Model
		}
		slots[2] = slot{family: "sarima", candidate: c, err: err}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		scored   []Scored
		failures []error
	)
	for _, s := range slots {
		if s.err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", s.family, s.err))
			continue
		}
		st := s.candidate.Stats()
		scored = append(scored, Scored{
			Candidate:    s.candidate,
			AICc:         st.AICc,
			AdjR2:        st.AdjR2,
			LjungBoxPass: ljungBoxPass(s.candidate, cfg.Period),
		})
	}
	if len(scored) == 0 {
		return nil, fmt.Errorf("selector: every candidate failed: %w", errors.Join(failures...))
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].AICc != scored[j].AICc {
			return scored[i].AICc < scored[j].AICc
		}
		return scored[i].Candidate.Name() < scored[j].Candidate.Name()
	})

	chosen := pick(scored, cfg.Rule)

	return &Result{
		Chosen:     chosen,
		Candidates: scored,
		Warnings:   diagnose(chosen, cfg.Period),
	}, nil
}

func candidateOrNil(c model.Candidate, err error) model.Candidate {
	if err != nil {
		return nil
	}
	return c
}

func pick(scored []Scored, rule Rule) model.Candidate {
	if rule == RuleDiagnostics {
		for _, s := range scored {
			if s.LjungBoxPass {
				return s.Candidate
			}
		}
	}
	return scored[0].Candidate
}

func ljungBoxPass(c model.Candidate, period int) bool {
	residuals := c.Residuals()
	fitdf := c.Stats().NumParams - 1
	lags := period
	if lags >= len(residuals) {
		return true
	}
	lb := stats.LjungBox(residuals, lags, fitdf)
	if lb == nil {
		return true
	}
	return lb.PValue >= 0.05
}

// diagnose runs residual checks on the winner. Findings are warnings, not
// errors: a candidate with autocorrelated residuals is still usable, the
// intervals are just optimistic.
func diagnose(c model.Candidate, period int) []Warning {
	var warnings []Warning
	residuals := c.Residuals()

	fitdf := c.Stats().NumParams - 1
	if lb := stats.LjungBox(residuals, period, fitdf); lb != nil && lb.PValue < 0.05 {
		warnings = append(warnings, Warning{
			Candidate: c.Name(),
			Code:      ResidualAutocorrelationWarning,
			Detail:    fmt.Sprintf("Ljung-Box p=%.4f at lag %d", lb.PValue, lb.Lags),
		})
	}
	if jb := stats.JarqueBera(residuals); jb != nil && jb.PValue < 0.05 {
		warnings = append(warnings, Warning{
			Candidate: c.Name(),
			Code:      NonNormalResidualsWarning,
			Detail:    fmt.Sprintf("Jarque-Bera p=%.4f", jb.PValue),
		})
	}
	return warnings
}
