package timeseries

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CSVOptions holds options for loading a monthly series from CSV.
type CSVOptions struct {
	PeriodColumn     string   // column holding "2006-01" periods (default: "month")
	ValueColumn      string   // column holding the target value (default: "handle")
	CovariateColumns []string // optional extra numeric columns to load as covariates
	Delimiter        rune     // field delimiter (default: ',')
}

// DefaultCSVOptions returns the default CSV loading options.
func DefaultCSVOptions() *CSVOptions {
	return &CSVOptions{
		PeriodColumn: "month",
		ValueColumn:  "handle",
		Delimiter:    ',',
	}
}

// LoadCSV loads a monthly series, plus any requested covariates, from a CSV
// file with a header row.
func LoadCSV(filename string, opts *CSVOptions) (*Series, []Covariate, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return LoadCSVFromReader(file, opts)
}

// LoadCSVFromReader loads a monthly series from an io.Reader.
func LoadCSVFromReader(r io.Reader, opts *CSVOptions) (*Series, []Covariate, error) {
	if opts == nil {
		opts = DefaultCSVOptions()
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, err
	}

	periodIdx, valueIdx := -1, -1
	covIdx := make([]int, len(opts.CovariateColumns))
	for i := range covIdx {
		covIdx[i] = -1
	}

	for i, h := range header {
		h = strings.TrimSpace(strings.Trim(h, "\""))
		switch {
		case h == opts.PeriodColumn:
			periodIdx = i
		case h == opts.ValueColumn:
			valueIdx = i
		default:
			for j, name := range opts.CovariateColumns {
				if h == name {
					covIdx[j] = i
				}
			}
		}
	}

	if periodIdx == -1 {
		return nil, nil, fmt.Errorf("csv: period column %q not found", opts.PeriodColumn)
	}
	if valueIdx == -1 {
		return nil, nil, fmt.Errorf("csv: value column %q not found", opts.ValueColumn)
	}
	for j, idx := range covIdx {
		if idx == -1 {
			return nil, nil, fmt.Errorf("csv: covariate column %q not found", opts.CovariateColumns[j])
		}
	}

	var points []Point
	covPoints := make([][]Point, len(covIdx))

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		period, err := ParsePeriod(strings.TrimSpace(record[periodIdx]))
		if err != nil {
			return nil, nil, err
		}

		value, err := strconv.ParseFloat(strings.TrimSpace(record[valueIdx]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("csv: bad value at %s: %w", period, err)
		}
		points = append(points, Point{Period: period, Value: value})

		for j, idx := range covIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("csv: bad %s at %s: %w", opts.CovariateColumns[j], period, err)
			}
			covPoints[j] = append(covPoints[j], Point{Period: period, Value: v})
		}
	}

	if len(points) == 0 {
		return nil, nil, errors.New("csv: no data rows")
	}

	series, err := New(opts.ValueColumn, points)
	if err != nil {
		return nil, nil, err
	}

	covs := make([]Covariate, len(covIdx))
	for j := range covIdx {
		cs, err := New(opts.CovariateColumns[j], covPoints[j])
		if err != nil {
			return nil, nil, err
		}
		covs[j] = Covariate{Name: opts.CovariateColumns[j], Series: cs}
	}

	return series, covs, nil
}
