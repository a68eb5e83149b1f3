package echoapi

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/telatku/telatku/core"
	"github.com/telatku/telatku/core/analytics"
)

const mimeCSV = "text/csv; charset=utf-8"

var errInvalidFormat = errors.New("format must be csv or xlsx")

type analyticsApi struct {
	svc analytics.Service
}

func registerAnalyticsAPI(g *echo.Group, jwt echo.MiddlewareFunc, guards guards, deps Deps) {
	api := analyticsApi{svc: deps.AnalyticsSvc}

	ag := g.Group("/analytics", jwt, guards.analytics)
	ag.GET("", api.report)
	ag.GET("/report", api.report)
	ag.GET("/statistics", api.view(func(r analytics.Report) interface{} { return r.Statistics }))
	ag.GET("/trend", api.view(func(r analytics.Report) interface{} { return r.Trend }))
	ag.GET("/classes", api.view(func(r analytics.Report) interface{} { return r.Classes }))
	ag.GET("/reasons", api.view(func(r analytics.Report) interface{} { return r.Reasons }))
	ag.GET("/students", api.view(func(r analytics.Report) interface{} { return r.TopStudents }))
	ag.GET("/export", api.export)
}

func (api *analyticsApi) bindFilter(ctx echo.Context) (analytics.Filter, error) {
	var filter analytics.Filter
	if err := ctx.Bind(&filter); err != nil {
		return filter, core.NewValidationError(errors.New("invalid filter"))
	}
	if err := api.svc.Normalize(&filter); err != nil {
		return filter, err
	}
	return filter, nil
}

func (api *analyticsApi) fetchReport(ctx echo.Context) (analytics.Report, error) {
	filter, err := api.bindFilter(ctx)
	if err != nil {
		return analytics.Report{}, err
	}
	report, err := api.svc.Report(ctx.Request().Context(), filter)
	if err != nil {
		return analytics.Report{}, errors.Wrap(err, "computing report")
	}
	return report, nil
}

func (api *analyticsApi) report(ctx echo.Context) error {
	report, err := api.fetchReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, report)
}

// view serves a single part of the report.
func (api *analyticsApi) view(part func(analytics.Report) interface{}) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		report, err := api.fetchReport(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, part(report))
	}
}

// export downloads the filtered records as `format=csv` (default) or `format=xlsx`.
func (api *analyticsApi) export(ctx echo.Context) error {
	format := ctx.QueryParam("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" {
		return core.NewFieldValidationError("format", errInvalidFormat)
	}

	filter, err := api.bindFilter(ctx)
	if err != nil {
		return err
	}
	records, err := api.svc.Records(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying records to export")
	}

	// buffered so that a write error still gets a proper error response
	var buf bytes.Buffer
	contentType := mimeCSV
	if format == "xlsx" {
		contentType = mimeXLSX
		err = analytics.WriteXLSX(&buf, records)
	} else {
		err = analytics.WriteCSV(&buf, records)
	}
	if err != nil {
		return errors.Wrap(err, "writing export")
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		`attachment; filename="`+analytics.ExportFilename(filter, format)+`"`)
	return ctx.Blob(http.StatusOK, contentType, buf.Bytes())
}
