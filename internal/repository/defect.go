package repository

import (
	"context"
	"fmt"

	"xorm.io/builder"

	"github.com/sumire/defects/internal/domain"
)

const defectColumns = `d.id, d.project_id, d.stage_id, d.title, d.description, d.priority, d.status,
	d.assignee_id, d.reporter_id, d.due_date, d.resolved_at, d.created_at, d.updated_at`

const defectViewFrom = `
	FROM defects d
	JOIN projects p ON p.id = d.project_id
	LEFT JOIN stages s ON s.id = d.stage_id
	LEFT JOIN users a ON a.id = d.assignee_id
	JOIN users rep ON rep.id = d.reporter_id`

const defectViewSelect = `SELECT ` + defectColumns + `,
	p.name AS project_name, s.name AS stage_name,
	a.username AS assignee_username, rep.username AS reporter_username` + defectViewFrom

var defectSortColumns = map[domain.DefectSortField]string{
	domain.SortCreatedAt: "d.created_at",
	domain.SortUpdatedAt: "d.updated_at",
	domain.SortPriority:  "CASE d.priority WHEN 'low' THEN 1 WHEN 'medium' THEN 2 WHEN 'high' THEN 3 WHEN 'critical' THEN 4 END",
	domain.SortStatus:    "d.status",
	domain.SortDueDate:   "d.due_date",
	domain.SortTitle:     "d.title",
}

type defectRow struct {
	domain.Defect
	ProjectName      string  `db:"project_name"`
	StageName        *string `db:"stage_name"`
	AssigneeUsername *string `db:"assignee_username"`
	ReporterUsername string  `db:"reporter_username"`
}

func (r defectRow) view() domain.DefectView {
	v := domain.DefectView{
		Defect:   r.Defect,
		Project:  domain.ProjectRef{ID: r.ProjectID, Name: r.ProjectName},
		Reporter: domain.UserRef{ID: r.ReporterID, Username: r.ReporterUsername},
	}
	if r.StageID != nil && r.StageName != nil {
		v.Stage = &domain.StageRef{ID: *r.StageID, Name: *r.StageName}
	}
	if r.AssigneeID != nil && r.AssigneeUsername != nil {
		v.Assignee = &domain.UserRef{ID: *r.AssigneeID, Username: *r.AssigneeUsername}
	}
	return v
}

// DefectRepository handles defect data access operations.
type DefectRepository struct {
	db *DB
}

// NewDefectRepository creates a new DefectRepository.
func NewDefectRepository(db *DB) *DefectRepository {
	return &DefectRepository{db: db}
}

func defectCond(f domain.DefectFilter) builder.Cond {
	cond := builder.NewCond()
	if f.ProjectID != nil {
		cond = cond.And(builder.Eq{"d.project_id": *f.ProjectID})
	}
	if f.StageID != nil {
		cond = cond.And(builder.Eq{"d.stage_id": *f.StageID})
	}
	if f.Status != nil {
		cond = cond.And(builder.Eq{"d.status": *f.Status})
	}
	if f.Priority != nil {
		cond = cond.And(builder.Eq{"d.priority": *f.Priority})
	}
	if f.AssigneeID != nil {
		cond = cond.And(builder.Eq{"d.assignee_id": *f.AssigneeID})
	}
	if f.ReporterID != nil {
		cond = cond.And(builder.Eq{"d.reporter_id": *f.ReporterID})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		cond = cond.And(builder.Expr("(d.title ILIKE ? OR d.description ILIKE ?)", pattern, pattern))
	}
	return cond
}

func defectOrder(f domain.DefectFilter) string {
	col, ok := defectSortColumns[f.SortBy]
	if !ok {
		col = defectSortColumns[domain.SortCreatedAt]
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir + " NULLS LAST, d.id " + dir
}

// List returns one page of defects with associations and the total match count.
func (r *DefectRepository) List(ctx context.Context, f domain.DefectFilter) ([]domain.DefectView, int64, error) {
	whereSQL, args, err := where(defectCond(f))
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.get(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM defects d`+whereSQL), args...); err != nil {
		return nil, 0, fmt.Errorf("count defects: %w", err)
	}

	opts := f.ListOptions.Normalize()
	query := r.db.Rebind(defectViewSelect + whereSQL + defectOrder(f) + ` LIMIT ? OFFSET ?`)

	var rows []defectRow
	if err := r.db.selectAll(ctx, &rows, query, append(args, opts.Limit, opts.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("list defects: %w", err)
	}

	views := make([]domain.DefectView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, total, nil
}

// FindByID retrieves a defect by its ID.
func (r *DefectRepository) FindByID(ctx context.Context, id int64) (*domain.Defect, error) {
	var d domain.Defect
	err := r.db.get(ctx, &d, `SELECT `+defectColumns+` FROM defects d WHERE d.id = $1`, id)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find defect %d: %w", id, err)
	}
	return &d, nil
}

// FindByIDForUpdate retrieves a defect and locks its row until the
// surrounding transaction ends.
func (r *DefectRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Defect, error) {
	var d domain.Defect
	err := r.db.get(ctx, &d, `SELECT `+defectColumns+` FROM defects d WHERE d.id = $1 FOR UPDATE`, id)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock defect %d: %w", id, err)
	}
	return &d, nil
}

// FindView retrieves a defect with its project, stage, assignee and reporter resolved.
func (r *DefectRepository) FindView(ctx context.Context, id int64) (*domain.DefectView, error) {
	var row defectRow
	if err := r.db.get(ctx, &row, defectViewSelect+` WHERE d.id = $1`, id); err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find defect view %d: %w", id, err)
	}
	v := row.view()
	return &v, nil
}

// Create inserts a new defect.
func (r *DefectRepository) Create(ctx context.Context, d domain.Defect) (*domain.Defect, error) {
	var result domain.Defect
	err := r.db.get(ctx, &result,
		`INSERT INTO defects (project_id, stage_id, title, description, priority, status,
		                      assignee_id, reporter_id, due_date, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, project_id, stage_id, title, description, priority, status,
		           assignee_id, reporter_id, due_date, resolved_at, created_at, updated_at`,
		d.ProjectID, d.StageID, d.Title, d.Description, d.Priority, d.Status,
		d.AssigneeID, d.ReporterID, d.DueDate, d.ResolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create defect: %w", err)
	}
	return &result, nil
}

// Update overwrites the mutable columns of a defect in one statement.
func (r *DefectRepository) Update(ctx context.Context, d domain.Defect) error {
	res, err := r.db.exec(ctx,
		`UPDATE defects
		 SET stage_id = $1, title = $2, description = $3, priority = $4, status = $5,
		     assignee_id = $6, due_date = $7, resolved_at = $8, updated_at = NOW()
		 WHERE id = $9`,
		d.StageID, d.Title, d.Description, d.Priority, d.Status,
		d.AssigneeID, d.DueDate, d.ResolvedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update defect %d: %w", d.ID, err)
	}
	return affected(res)
}

// Delete removes a defect; comments, attachments and history cascade.
func (r *DefectRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.exec(ctx, `DELETE FROM defects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete defect %d: %w", id, err)
	}
	return affected(res)
}
