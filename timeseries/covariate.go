package timeseries

import (
	"fmt"
	"math"
)

// Covariate is an auxiliary series aligned to a target by exact period
// match, such as the count of legal jurisdictions or of leagues in season.
type Covariate struct {
	Name   string
	Series *Series
}

// NewCovariate wraps a series as a named covariate.
func NewCovariate(name string, s *Series) Covariate {
	return Covariate{Name: name, Series: s}
}

// AlignCovariates builds the covariate matrix for the target series: one row
// per target period, one column per covariate. A covariate that does not
// cover some target period is an error, never a silent drop.
func AlignCovariates(target *Series, covs []Covariate) ([][]float64, error) {
	rows := make([][]float64, target.Len())
	for i := range rows {
		rows[i] = make([]float64, len(covs))
	}

	for j, cov := range covs {
		for i := 0; i < target.Len(); i++ {
			p := target.PeriodAt(i)
			v, ok := cov.Series.At(p)
			if !ok || math.IsNaN(v) {
				return nil, fmt.Errorf("%w: covariate %q has no value for %s", ErrMissingPeriod, cov.Name, p)
			}
			rows[i][j] = v
		}
	}

	return rows, nil
}
