package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/elfein/storefront/internal/logging"
	"github.com/elfein/storefront/internal/reports"
)

type AdminReportHandler struct {
	Gen *reports.Generator
}

func (h *AdminReportHandler) parseRange(c echo.Context) (reports.Range, time.Time, time.Time, error) {
	r := reports.Range(c.QueryParam("range"))
	if r == "" {
		r = reports.RangeDaily
	}
	var from, to time.Time
	if raw := c.QueryParam("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		from = parsed
	}
	if raw := c.QueryParam("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return "", time.Time{}, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		to = parsed
	}
	return r, from, to, nil
}

func (h *AdminReportHandler) Sales(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.sales_report")

	r, from, to, err := h.parseRange(c)
	if err != nil {
		return err
	}

	orders, sum, err := h.Gen.Report(ctx, r, from, to)
	if err != nil {
		if errors.Is(err, reports.ErrBadRange) || errors.Is(err, reports.ErrCustomDates) {
			l.Warn("sales_report_error", "status", 400, "error", err)
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("sales_report_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"summary": sum, "orders": orders})
}

func (h *AdminReportHandler) SalesCSV(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.sales_report_csv")

	r, from, to, err := h.parseRange(c)
	if err != nil {
		return err
	}

	orders, sum, err := h.Gen.Report(ctx, r, from, to)
	if err != nil {
		if errors.Is(err, reports.ErrBadRange) || errors.Is(err, reports.ErrCustomDates) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		l.Error("sales_report_csv_error", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="sales_report.csv"`)
	c.Response().WriteHeader(http.StatusOK)
	if err := reports.WriteCSV(c.Response(), orders, sum); err != nil {
		l.Error("sales_report_csv_error", "status", 500, "error", err)
		return err
	}
	return nil
}
