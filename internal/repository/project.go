package repository

import (
	"context"
	"fmt"

	"xorm.io/builder"

	"github.com/sumire/defects/internal/domain"
)

const projectColumns = `p.id, p.name, p.description, p.status, p.start_date, p.end_date, p.created_by, p.created_at, p.updated_at`

type projectRow struct {
	domain.Project
	CreatorUsername string `db:"creator_username"`
}

func (r projectRow) view() domain.ProjectView {
	return domain.ProjectView{
		Project: r.Project,
		Creator: domain.UserRef{ID: r.CreatedBy, Username: r.CreatorUsername},
	}
}

// ProjectRepository handles project data access operations.
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func projectCond(f domain.ProjectFilter) builder.Cond {
	cond := builder.NewCond()
	if f.Status != nil {
		cond = cond.And(builder.Eq{"p.status": *f.Status})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		cond = cond.And(builder.Expr("(p.name ILIKE ? OR p.description ILIKE ?)", pattern, pattern))
	}
	return cond
}

// List returns one page of projects, newest first, and the total match count.
func (r *ProjectRepository) List(ctx context.Context, f domain.ProjectFilter) ([]domain.ProjectView, int64, error) {
	whereSQL, args, err := where(projectCond(f))
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.get(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM projects p`+whereSQL), args...); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	opts := f.ListOptions.Normalize()
	query := r.db.Rebind(`SELECT ` + projectColumns + `, u.username AS creator_username
		FROM projects p JOIN users u ON u.id = p.created_by` + whereSQL + `
		ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?`)

	var rows []projectRow
	if err := r.db.selectAll(ctx, &rows, query, append(args, opts.Limit, opts.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}

	views := make([]domain.ProjectView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, total, nil
}

// FindByID retrieves a project by its ID.
func (r *ProjectRepository) FindByID(ctx context.Context, id int64) (*domain.Project, error) {
	view, err := r.FindView(ctx, id)
	if err != nil {
		return nil, err
	}
	return &view.Project, nil
}

// FindView retrieves a project with its creator resolved.
func (r *ProjectRepository) FindView(ctx context.Context, id int64) (*domain.ProjectView, error) {
	var row projectRow
	err := r.db.get(ctx, &row,
		`SELECT `+projectColumns+`, u.username AS creator_username
		 FROM projects p JOIN users u ON u.id = p.created_by
		 WHERE p.id = $1`, id)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find project %d: %w", id, err)
	}
	view := row.view()
	return &view, nil
}

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, p domain.Project) (*domain.Project, error) {
	var result domain.Project
	err := r.db.get(ctx, &result,
		`INSERT INTO projects (name, description, status, start_date, end_date, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, name, description, status, start_date, end_date, created_by, created_at, updated_at`,
		p.Name, p.Description, p.Status, p.StartDate, p.EndDate, p.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &result, nil
}

// Update overwrites the mutable columns of a project.
func (r *ProjectRepository) Update(ctx context.Context, p domain.Project) error {
	res, err := r.db.exec(ctx,
		`UPDATE projects
		 SET name = $1, description = $2, status = $3, start_date = $4, end_date = $5, updated_at = NOW()
		 WHERE id = $6`,
		p.Name, p.Description, p.Status, p.StartDate, p.EndDate, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	return affected(res)
}

// Delete removes a project; stages, defects and their dependents cascade.
func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}
	return affected(res)
}
