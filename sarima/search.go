package sarima

import (
	"fmt"
	"math"

	"github.com/wagerlytics/handlecast/stats"
	"github.com/wagerlytics/handlecast/timeseries"
)

// SearchConfig bounds the stepwise order search.
type SearchConfig struct {
	Period int // seasonal period (default 12)

	MaxP  int // maximum non-seasonal AR order (default 2)
	MaxQ  int // maximum non-seasonal MA order (default 2)
	MaxSP int // maximum seasonal AR order (default 2)
	MaxSQ int // maximum seasonal MA order (default 2)

	MaxD  int // non-seasonal differencing allowance (default 2)
	MaxSD int // seasonal differencing allowance (default 1)

	StationarityTest string // "kpss" (default) or "adf"
}

// DefaultSearchConfig returns the default search bounds.
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		Period:           12,
		MaxP:             2,
		MaxQ:             2,
		MaxSP:            2,
		MaxSQ:            2,
		MaxD:             2,
		MaxSD:            1,
		StationarityTest: "kpss",
	}
}

// SearchResult reports the winning order and how much of the grid the
// stepwise walk visited.
type SearchResult struct {
	Model     *Model
	AICc      float64
	Evaluated int
}

type orderSpec struct {
	p, q, sp, sq int
}

func (s orderSpec) params() int { return s.p + s.q + s.sp + s.sq }

// AutoFit chooses differencing orders from stationarity tests and seasonal
// strength, then runs a stepwise AICc search over the (p,q)(P,Q) grid. Ties
// on AICc go to the order with fewer parameters.
func AutoFit(series *timeseries.Series, cfg *SearchConfig) (*SearchResult, error) {
	if cfg == nil {
		cfg = DefaultSearchConfig()
	}
	if cfg.Period <= 1 {
		cfg.Period = 12
	}
	if err := series.Dense(); err != nil {
		return nil, err
	}
	if series.Len() < 2*cfg.Period {
		return nil, fmt.Errorf("%w: order search needs %d observations, have %d",
			stats.ErrInsufficientData, 2*cfg.Period, series.Len())
	}

	sd := stats.NSDiffs(series, cfg.Period, cfg.MaxSD)

	deseasoned := series
	for i := 0; i < sd; i++ {
		deseasoned = deseasoned.SeasonalDiff(cfg.Period)
	}
	d, stationary := stats.NDiffs(deseasoned, cfg.MaxD, cfg.StationarityTest)
	if !stationary {
		return nil, fmt.Errorf("%w: d=%d, D=%d exhausted", ErrNonStationary, d, sd)
	}

	fitSpec := func(s orderSpec) (*Model, error) {
		return Fit(series, Order{
			P: s.p, D: d, Q: s.q,
			SP: s.sp, SD: sd, SQ: s.sq, M: cfg.Period,
		})
	}

	inBounds := func(s orderSpec) bool {
		return s.p >= 0 && s.p <= cfg.MaxP &&
			s.q >= 0 && s.q <= cfg.MaxQ &&
			s.sp >= 0 && s.sp <= cfg.MaxSP &&
			s.sq >= 0 && s.sq <= cfg.MaxSQ
	}

	startSpecs := []orderSpec{
		{0, 0, 0, 0},
		{1, 0, 1, 0},
		{0, 1, 0, 1},
		{1, 1, 1, 1},
		{2, 2, 1, 1},
	}

	var (
		best     *Model
		bestSpec orderSpec
		bestAICc = math.Inf(1)
	)
	evaluated := 0
	tried := map[orderSpec]bool{}

	consider := func(s orderSpec) bool {
		if !inBounds(s) || tried[s] {
			return false
		}
		tried[s] = true

		m, err := fitSpec(s)
		if err != nil {
			return false
		}
		evaluated++

		aicc := m.Stats().AICc
		if aicc < bestAICc || (aicc == bestAICc && s.params() < bestSpec.params()) {
			best = m
			bestSpec = s
			bestAICc = aicc
			return true
		}
		return false
	}

	for _, s := range startSpecs {
		consider(s)
	}
	if best == nil {
		return nil, fmt.Errorf("sarima: no order could be fit with d=%d, D=%d", d, sd)
	}

	improved := true
	for improved {
		improved = false
		base := bestSpec
		neighbors := []orderSpec{
			{base.p + 1, base.q, base.sp, base.sq},
			{base.p - 1, base.q, base.sp, base.sq},
			{base.p, base.q + 1, base.sp, base.sq},
			{base.p, base.q - 1, base.sp, base.sq},
			{base.p, base.q, base.sp + 1, base.sq},
			{base.p, base.q, base.sp - 1, base.sq},
			{base.p, base.q, base.sp, base.sq + 1},
			{base.p, base.q, base.sp, base.sq - 1},
			{base.p + 1, base.q + 1, base.sp, base.sq},
			{base.p - 1, base.q - 1, base.sp, base.sq},
		}
		for _, s := range neighbors {
			if consider(s) {
				improved = true
			}
		}
	}

	return &SearchResult{Model: best, AICc: bestAICc, Evaluated: evaluated}, nil
}
