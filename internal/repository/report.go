package repository

import (
	"context"
	"fmt"
	"time"

	"xorm.io/builder"

	"github.com/sumire/defects/internal/domain"
)

var trendFormats = map[domain.TrendPeriod]string{
	domain.TrendDay:   "YYYY-MM-DD HH24",
	domain.TrendWeek:  "YYYY-MM-DD",
	domain.TrendMonth: "YYYY-MM",
}

// ReportRepository runs aggregate queries over defects.
type ReportRepository struct {
	db *DB
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db *DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func reportCond(f domain.ReportFilter) builder.Cond {
	cond := builder.NewCond()
	if f.ProjectID != nil {
		cond = cond.And(builder.Eq{"d.project_id": *f.ProjectID})
	}
	if f.Status != nil {
		cond = cond.And(builder.Eq{"d.status": *f.Status})
	}
	if f.Priority != nil {
		cond = cond.And(builder.Eq{"d.priority": *f.Priority})
	}
	if f.From != nil {
		cond = cond.And(builder.Gte{"d.created_at": *f.From})
	}
	if f.To != nil {
		cond = cond.And(builder.Lte{"d.created_at": *f.To})
	}
	return cond
}

func (r *ReportRepository) count(ctx context.Context, cond builder.Cond) (int64, error) {
	whereSQL, args, err := where(cond)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.get(ctx, &n, r.db.Rebind(`SELECT COUNT(*) FROM defects d`+whereSQL), args...); err != nil {
		return 0, fmt.Errorf("count defects: %w", err)
	}
	return n, nil
}

func (r *ReportRepository) groupBy(ctx context.Context, column string, cond builder.Cond) ([]domain.GroupCount, error) {
	whereSQL, args, err := where(cond)
	if err != nil {
		return nil, err
	}
	groups := []domain.GroupCount{}
	query := r.db.Rebind(`SELECT d.` + column + ` AS key, COUNT(*) AS count FROM defects d` + whereSQL +
		` GROUP BY d.` + column + ` ORDER BY d.` + column)
	if err := r.db.selectAll(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("group defects by %s: %w", column, err)
	}
	return groups, nil
}

// DefectStats aggregates the defects matching f. Overdue counts open defects due before now.
func (r *ReportRepository) DefectStats(ctx context.Context, f domain.ReportFilter, now time.Time) (*domain.DefectStats, error) {
	cond := reportCond(f)

	var (
		stats domain.DefectStats
		err   error
	)
	if stats.Total, err = r.count(ctx, cond); err != nil {
		return nil, err
	}
	if stats.Resolved, err = r.count(ctx, cond.And(builder.Eq{"d.status": domain.DefectStatusClosed})); err != nil {
		return nil, err
	}
	overdue := cond.And(
		builder.Lt{"d.due_date": now},
		builder.NotIn("d.status", domain.DefectStatusClosed, domain.DefectStatusCancelled),
	)
	if stats.Overdue, err = r.count(ctx, overdue); err != nil {
		return nil, err
	}
	if stats.ByStatus, err = r.groupBy(ctx, "status", cond); err != nil {
		return nil, err
	}
	if stats.ByPriority, err = r.groupBy(ctx, "priority", cond); err != nil {
		return nil, err
	}

	whereSQL, args, err := where(cond)
	if err != nil {
		return nil, err
	}
	stats.ByAssignee = []domain.AssigneeCount{}
	query := r.db.Rebind(`SELECT d.assignee_id, u.username, COUNT(*) AS count
		FROM defects d LEFT JOIN users u ON u.id = d.assignee_id` + whereSQL + `
		GROUP BY d.assignee_id, u.username
		ORDER BY count DESC, d.assignee_id NULLS LAST`)
	if err := r.db.selectAll(ctx, &stats.ByAssignee, query, args...); err != nil {
		return nil, fmt.Errorf("group defects by assignee: %w", err)
	}

	return &stats, nil
}

// ProjectStats aggregates the defects of one project.
func (r *ReportRepository) ProjectStats(ctx context.Context, projectID int64) (*domain.ProjectStats, error) {
	cond := builder.Eq{"d.project_id": projectID}

	var (
		stats domain.ProjectStats
		err   error
	)
	if stats.TotalDefects, err = r.count(ctx, cond); err != nil {
		return nil, err
	}
	if stats.ByStatus, err = r.groupBy(ctx, "status", cond); err != nil {
		return nil, err
	}
	if stats.ByPriority, err = r.groupBy(ctx, "priority", cond); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Trends counts defects created since since, and those of them closed, per period bucket.
func (r *ReportRepository) Trends(ctx context.Context, projectID *int64, period domain.TrendPeriod, since time.Time) (*domain.Trends, error) {
	format, ok := trendFormats[period]
	if !ok {
		return nil, domain.NewValidationError("period", "must be one of day, week, month")
	}

	cond := builder.NewCond().And(builder.Gte{"d.created_at": since})
	if projectID != nil {
		cond = cond.And(builder.Eq{"d.project_id": *projectID})
	}

	created, err := r.trend(ctx, "d.created_at", format, cond)
	if err != nil {
		return nil, err
	}
	resolved, err := r.trend(ctx, "d.resolved_at", format, cond.And(
		builder.Eq{"d.status": domain.DefectStatusClosed},
		builder.NotNull{"d.resolved_at"},
	))
	if err != nil {
		return nil, err
	}
	return &domain.Trends{Created: created, Resolved: resolved}, nil
}

func (r *ReportRepository) trend(ctx context.Context, column, format string, cond builder.Cond) ([]domain.TrendPoint, error) {
	whereSQL, args, err := where(cond)
	if err != nil {
		return nil, err
	}
	points := []domain.TrendPoint{}
	query := r.db.Rebind(`SELECT TO_CHAR(` + column + `, ?) AS period, COUNT(*) AS count
		FROM defects d` + whereSQL + ` GROUP BY 1 ORDER BY 1`)
	if err := r.db.selectAll(ctx, &points, query, append([]any{format}, args...)...); err != nil {
		return nil, fmt.Errorf("trend by %s: %w", column, err)
	}
	return points, nil
}

// TeamPerformance summarizes defects per assignee, including the unassigned bucket.
func (r *ReportRepository) TeamPerformance(ctx context.Context, f domain.ReportFilter) ([]domain.MemberPerformance, error) {
	whereSQL, args, err := where(reportCond(f))
	if err != nil {
		return nil, err
	}
	rows := []domain.MemberPerformance{}
	query := r.db.Rebind(`SELECT d.assignee_id, u.username, u.role,
		COUNT(*) AS total_assigned,
		COUNT(CASE WHEN d.status = 'closed' THEN 1 END) AS completed,
		COUNT(CASE WHEN d.status = 'in_progress' THEN 1 END) AS in_progress,
		AVG(CASE WHEN d.status = 'closed' THEN EXTRACT(EPOCH FROM (d.resolved_at - d.created_at)) / 86400 END)::float8 AS avg_resolution_days
		FROM defects d LEFT JOIN users u ON u.id = d.assignee_id` + whereSQL + `
		GROUP BY d.assignee_id, u.username, u.role
		ORDER BY total_assigned DESC, d.assignee_id NULLS LAST`)
	if err := r.db.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("team performance: %w", err)
	}
	return rows, nil
}

// ExportRows returns the defects matching f flattened for export, newest first.
func (r *ReportRepository) ExportRows(ctx context.Context, f domain.ReportFilter) ([]domain.ExportRow, error) {
	whereSQL, args, err := where(reportCond(f))
	if err != nil {
		return nil, err
	}
	rows := []domain.ExportRow{}
	query := r.db.Rebind(`SELECT d.id, p.name AS project_name, d.title, d.description, d.priority, d.status,
		a.username AS assignee, rep.username AS reporter, d.due_date, d.created_at, d.resolved_at
		FROM defects d
		LEFT JOIN projects p ON p.id = d.project_id
		LEFT JOIN users a ON a.id = d.assignee_id
		LEFT JOIN users rep ON rep.id = d.reporter_id` + whereSQL + `
		ORDER BY d.created_at DESC, d.id DESC`)
	if err := r.db.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("export defects: %w", err)
	}
	return rows, nil
}
