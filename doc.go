// Package handlecast forecasts monthly wagering handle and the share a
// recurring event captures of it.
//
// The pipeline fits three model families on the same training series,
// scores them on a shared Gaussian likelihood basis, and forecasts with the
// winner:
//
//   - regression: trend + month dummies + covariates + optional lag
//   - smoothing: additive-error exponential smoothing (trend/damped/seasonal)
//   - sarima: seasonal ARIMA with automatic order search
//
// # Quick Start
//
// Select a model and forecast 14 months:
//
//	series, _ := timeseries.FromValues("handle", timeseries.NewPeriod(2019, time.January), values)
//	result, _ := selector.Select(ctx, series, nil, nil)
//	forecast, _ := model.NewForecaster(result.Chosen).Horizon(14, 0.95)
//
// Project a recurring event's contribution to a forecast month:
//
//	est, _ := event.Project(forecastPoint, occurrences)
//
// # Packages
//
//   - timeseries: monthly periods, immutable series, gap handling, CSV loading
//   - stats: ACF/PACF, stationarity tests, decomposition, differencing, diagnostics
//   - model: the candidate interface and period-stamped forecasting
//   - regression, smoothing, sarima: the model families
//   - selector: parallel fitting, ranking, residual diagnostics
//   - event: event-share extrapolation
package handlecast
