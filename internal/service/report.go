package service

import (
	"context"
	"io"
	"time"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/logging"
	"github.com/sumire/defects/internal/report"
)

// ReportStore defines the aggregate queries consumed by ReportService.
type ReportStore interface {
	DefectStats(ctx context.Context, f domain.ReportFilter, now time.Time) (*domain.DefectStats, error)
	Trends(ctx context.Context, projectID *int64, period domain.TrendPeriod, since time.Time) (*domain.Trends, error)
	TeamPerformance(ctx context.Context, f domain.ReportFilter) ([]domain.MemberPerformance, error)
	ExportRows(ctx context.Context, f domain.ReportFilter) ([]domain.ExportRow, error)
}

// ReportService builds statistics and exports over defects.
type ReportService struct {
	reports ReportStore
	now     func() time.Time
}

// NewReportService creates a new ReportService. A nil now uses time.Now.
func NewReportService(reports ReportStore, now func() time.Time) *ReportService {
	if now == nil {
		now = time.Now
	}
	return &ReportService{reports: reports, now: now}
}

// Stats aggregates defects matching f.
func (s *ReportService) Stats(ctx context.Context, f domain.ReportFilter) (*domain.DefectStats, error) {
	if err := checkReportFilter(f); err != nil {
		return nil, err
	}
	return s.reports.DefectStats(ctx, f, s.now())
}

// Trends counts created and resolved defects per bucket. The window is the
// last 7 days for day, 30 days for week and 12 months for month buckets. Any
// other period falls back to week.
func (s *ReportService) Trends(ctx context.Context, projectID *int64, period domain.TrendPeriod) (*domain.Trends, error) {
	now := s.now()
	var since time.Time
	switch period {
	case domain.TrendDay:
		since = now.AddDate(0, 0, -7)
	case domain.TrendMonth:
		since = now.AddDate(0, -12, 0)
	default:
		period = domain.TrendWeek
		since = now.AddDate(0, 0, -30)
	}
	return s.reports.Trends(ctx, projectID, period, since)
}

// TeamPerformance summarizes defects per assignee.
func (s *ReportService) TeamPerformance(ctx context.Context, f domain.ReportFilter) ([]domain.MemberPerformance, error) {
	if err := checkReportFilter(f); err != nil {
		return nil, err
	}
	return s.reports.TeamPerformance(ctx, f)
}

// Export writes the defects matching f to w and returns how many were written.
func (s *ReportService) Export(ctx context.Context, w io.Writer, f domain.ReportFilter, format report.Format) (int, error) {
	if !format.Valid() {
		return 0, domain.NewValidationError("format", "must be csv or xlsx")
	}
	if err := checkReportFilter(f); err != nil {
		return 0, err
	}
	rows, err := s.reports.ExportRows(ctx, f)
	if err != nil {
		return 0, err
	}
	if err := report.Write(w, format, rows); err != nil {
		return 0, err
	}
	logging.FromContext(ctx).Info("defects exported", "format", format, "count", len(rows))
	return len(rows), nil
}

func checkReportFilter(f domain.ReportFilter) error {
	if f.Status != nil && !f.Status.Valid() {
		return domain.NewValidationError("status", "unknown status %q", *f.Status)
	}
	if f.Priority != nil && !f.Priority.Valid() {
		return domain.NewValidationError("priority", "unknown priority %q", *f.Priority)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return domain.NewValidationError("endDate", "must not be before startDate")
	}
	return nil
}
