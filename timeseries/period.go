package timeseries

import (
	"fmt"
	"time"
)

// Period identifies one calendar month. Periods are the index type for every
// series in this module; arithmetic is in whole months.
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod creates a period, normalizing out-of-range months
// (e.g. month 13 of 2023 becomes January 2024).
func NewPeriod(year int, month time.Month) Period {
	y, m := normalize(year, int(month))
	return Period{Year: y, Month: time.Month(m)}
}

// ParsePeriod parses a period in "2006-01" form.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// index returns the absolute month number, used for ordering and spacing.
func (p Period) index() int {
	return p.Year*12 + int(p.Month) - 1
}

// Add returns the period n months after p (n may be negative).
func (p Period) Add(n int) Period {
	return NewPeriod(p.Year, p.Month+time.Month(n))
}

// Next returns the immediately following month.
func (p Period) Next() Period {
	return p.Add(1)
}

// Sub returns the number of months from q to p.
func (p Period) Sub(q Period) int {
	return p.index() - q.index()
}

// Before reports whether p precedes q.
func (p Period) Before(q Period) bool {
	return p.index() < q.index()
}

// After reports whether p follows q.
func (p Period) After(q Period) bool {
	return p.index() > q.index()
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func normalize(year, month int) (int, int) {
	month-- // zero-based for the modulo arithmetic
	year += month / 12
	month %= 12
	if month < 0 {
		month += 12
		year--
	}
	return year, month + 1
}
