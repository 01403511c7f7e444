// Package main runs the full handle forecasting pipeline: load or build a
// monthly handle series, decompose it, compare model families, forecast,
// and project a recurring event's contribution.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/wagerlytics/handlecast/event"
	"github.com/wagerlytics/handlecast/model"
	"github.com/wagerlytics/handlecast/selector"
	"github.com/wagerlytics/handlecast/stats"
	"github.com/wagerlytics/handlecast/timeseries"
)

func main() {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("handlecast - monthly wagering handle forecast")
	fmt.Println(strings.Repeat("=", 72))

	series, err := loadSeries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nSeries: %s, %d months (%s to %s)\n",
		series.Name(), series.Len(), series.Start(), series.End())

	printDecomposition(series)

	result, err := selector.Select(context.Background(), series, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "select: %v\n", err)
		os.Exit(1)
	}
	printCandidates(result)

	forecast, err := model.NewForecaster(result.Chosen).Horizon(14, 0.95)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forecast: %v\n", err)
		os.Exit(1)
	}
	printForecast(forecast)

	printEventProjection(forecast)
}

// loadSeries reads a CSV passed as the first argument, or builds a synthetic
// seven-year handle series with trend and a summer peak.
func loadSeries() (*timeseries.Series, error) {
	if len(os.Args) > 1 {
		series, _, err := timeseries.LoadCSV(os.Args[1], nil)
		return series, err
	}

	rng := rand.New(rand.NewSource(42))
	values := make([]float64, 84)
	for i := range values {
		values[i] = 48_000_000 +
			350_000*float64(i) +
			6_000_000*math.Sin(2*math.Pi*float64(i-2)/12) +
			900_000*rng.NormFloat64()
	}
	return timeseries.FromValues("handle", timeseries.NewPeriod(2019, time.January), values)
}

func printDecomposition(series *timeseries.Series) {
	fmt.Println("\n--- Decomposition ---")

	decomp, err := stats.Decompose(series, 12, nil)
	if err != nil {
		fmt.Printf("decompose: %v\n", err)
		return
	}

	fmt.Printf("Seasonal strength: %.3f\n", decomp.SeasonalStrength())
	fmt.Print("First-year seasonal indices: ")
	seasonal := decomp.Seasonal.Values()
	for i := 0; i < 12 && i < len(seasonal); i++ {
		fmt.Printf("%+.2fM ", seasonal[i]/1e6)
	}
	fmt.Println()
}

func printCandidates(result *selector.Result) {
	fmt.Println("\n--- Model comparison ---")
	fmt.Printf("%-28s %12s %8s %10s\n", "Candidate", "AICc", "AdjR2", "LjungBox")
	for _, s := range result.Candidates {
		pass := "pass"
		if !s.LjungBoxPass {
			pass = "reject"
		}
		fmt.Printf("%-28s %12.2f %8.4f %10s\n", s.Candidate.Name(), s.AICc, s.AdjR2, pass)
	}
	fmt.Printf("\nChosen: %s\n", result.Chosen.Name())
	for _, w := range result.Warnings {
		fmt.Printf("warning [%s]: %s\n", w.Code, w.Detail)
	}
}

func printForecast(forecast *model.Forecast) {
	fmt.Println("\n--- 14-month forecast (95% interval) ---")
	fmt.Printf("%-10s %14s %14s %14s\n", "Period", "Point", "Lower", "Upper")
	for i := 0; i < forecast.Len(); i++ {
		fmt.Printf("%-10s %14.0f %14.0f %14.0f\n",
			forecast.Periods[i], forecast.Point[i], forecast.Lower[i], forecast.Upper[i])
	}
}

// printEventProjection projects a recurring February event from its last
// two editions onto the first forecast February.
func printEventProjection(forecast *model.Forecast) {
	fmt.Println("\n--- Event projection ---")

	var febPoint float64
	var febPeriod timeseries.Period
	found := false
	for i, p := range forecast.Periods {
		if p.Month == time.February {
			febPoint = forecast.Point[i]
			febPeriod = p
			found = true
			break
		}
	}
	if !found {
		fmt.Println("no February inside the forecast horizon")
		return
	}

	occurrences := []event.Occurrence{
		{Period: timeseries.NewPeriod(febPeriod.Year-2, time.February), EventAmount: 6_100_000, PeriodTotal: 61_000_000},
		{Period: timeseries.NewPeriod(febPeriod.Year-1, time.February), EventAmount: 8_200_000, PeriodTotal: 68_000_000},
	}

	est, err := event.Project(febPoint, occurrences)
	if err != nil {
		fmt.Printf("project: %v\n", err)
		return
	}

	fmt.Printf("Shares to date:    %.4f, %.4f\n", est.Ratios[0], est.Ratios[1])
	fmt.Printf("Projected share:   %.4f (delta %+.4f per edition)\n", est.ProjectedRatio, est.RatioDelta)
	fmt.Printf("%s handle:     %.0f\n", febPeriod, febPoint)
	fmt.Printf("Event handle:      %.0f\n", est.Value)
}
