package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/report"
)

// ReportUsecase is the reporting surface consumed by ReportHandler.
type ReportUsecase interface {
	Stats(ctx context.Context, f domain.ReportFilter) (*domain.DefectStats, error)
	Trends(ctx context.Context, projectID *int64, period domain.TrendPeriod) (*domain.Trends, error)
	TeamPerformance(ctx context.Context, f domain.ReportFilter) ([]domain.MemberPerformance, error)
	Export(ctx context.Context, w io.Writer, f domain.ReportFilter, format report.Format) (int, error)
}

// ReportHandler handles statistics and export endpoints.
type ReportHandler struct {
	reports ReportUsecase
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports ReportUsecase) *ReportHandler {
	return &ReportHandler{reports: reports}
}

func reportFilter(c echo.Context) (domain.ReportFilter, error) {
	var (
		f   domain.ReportFilter
		err error
	)
	if f.ProjectID, err = queryID(c, "projectId"); err != nil {
		return f, err
	}
	if f.From, err = queryDate(c, "startDate"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(c, "endDate"); err != nil {
		return f, err
	}
	f.Status = queryString[domain.DefectStatus](c, "status")
	f.Priority = queryString[domain.Priority](c, "priority")
	return f, nil
}

// Stats returns defect totals and breakdowns.
func (h *ReportHandler) Stats(c echo.Context) error {
	f, err := reportFilter(c)
	if err != nil {
		return err
	}
	stats, err := h.reports.Stats(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stats)
}

// Trends returns created and resolved counts per period.
func (h *ReportHandler) Trends(c echo.Context) error {
	projectID, err := queryID(c, "projectId")
	if err != nil {
		return err
	}
	trends, err := h.reports.Trends(c.Request().Context(), projectID, domain.TrendPeriod(c.QueryParam("period")))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, trends)
}

// TeamPerformance returns per-assignee workload and resolution times.
func (h *ReportHandler) TeamPerformance(c echo.Context) error {
	f, err := reportFilter(c)
	if err != nil {
		return err
	}
	members, err := h.reports.TeamPerformance(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, members)
}

// Export downloads the filtered defects as CSV or XLSX.
func (h *ReportHandler) Export(c echo.Context) error {
	f, err := reportFilter(c)
	if err != nil {
		return err
	}
	format := report.Format(c.QueryParam("format"))
	if format == "" {
		format = report.FormatCSV
	}

	// Buffered so a failure still produces a JSON error instead of a truncated file.
	var buf bytes.Buffer
	if _, err := h.reports.Export(c.Request().Context(), &buf, f, format); err != nil {
		return err
	}

	filename := fmt.Sprintf("defects-%s.%s", time.Now().UTC().Format("20060102"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}
