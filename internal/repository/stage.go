package repository

import (
	"context"
	"fmt"

	"github.com/sumire/defects/internal/domain"
)

const stageColumns = `s.id, s.project_id, s.name, s.description, s.sort_order, s.status, s.created_at, s.updated_at`

type stageRow struct {
	domain.Stage
	ProjectName string `db:"project_name"`
}

// StageRepository handles stage data access operations.
type StageRepository struct {
	db *DB
}

// NewStageRepository creates a new StageRepository.
func NewStageRepository(db *DB) *StageRepository {
	return &StageRepository{db: db}
}

// ListByProject returns the stages of a project by ascending order.
func (r *StageRepository) ListByProject(ctx context.Context, projectID int64) ([]domain.Stage, error) {
	stages := []domain.Stage{}
	err := r.db.selectAll(ctx, &stages,
		`SELECT `+stageColumns+` FROM stages s WHERE s.project_id = $1 ORDER BY s.sort_order ASC, s.id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list stages of project %d: %w", projectID, err)
	}
	return stages, nil
}

// FindByID retrieves a stage by its ID.
func (r *StageRepository) FindByID(ctx context.Context, id int64) (*domain.Stage, error) {
	detail, err := r.FindDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return &detail.Stage, nil
}

// FindDetail retrieves a stage with its project resolved.
func (r *StageRepository) FindDetail(ctx context.Context, id int64) (*domain.StageDetail, error) {
	var row stageRow
	err := r.db.get(ctx, &row,
		`SELECT `+stageColumns+`, p.name AS project_name
		 FROM stages s JOIN projects p ON p.id = s.project_id
		 WHERE s.id = $1`, id)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find stage %d: %w", id, err)
	}
	return &domain.StageDetail{
		Stage:   row.Stage,
		Project: domain.ProjectRef{ID: row.ProjectID, Name: row.ProjectName},
	}, nil
}

// Create inserts a new stage.
func (r *StageRepository) Create(ctx context.Context, s domain.Stage) (*domain.Stage, error) {
	var result domain.Stage
	err := r.db.get(ctx, &result,
		`INSERT INTO stages (project_id, name, description, sort_order, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, project_id, name, description, sort_order, status, created_at, updated_at`,
		s.ProjectID, s.Name, s.Description, s.Order, s.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("create stage: %w", err)
	}
	return &result, nil
}

// Update overwrites the mutable columns of a stage.
func (r *StageRepository) Update(ctx context.Context, s domain.Stage) error {
	res, err := r.db.exec(ctx,
		`UPDATE stages
		 SET name = $1, description = $2, sort_order = $3, status = $4, updated_at = NOW()
		 WHERE id = $5`,
		s.Name, s.Description, s.Order, s.Status, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update stage %d: %w", s.ID, err)
	}
	return affected(res)
}

// Delete removes a stage.
func (r *StageRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.exec(ctx, `DELETE FROM stages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete stage %d: %w", id, err)
	}
	return affected(res)
}

// CountDefects returns how many defects reference the stage.
func (r *StageRepository) CountDefects(ctx context.Context, id int64) (int64, error) {
	var n int64
	if err := r.db.get(ctx, &n, `SELECT COUNT(*) FROM defects WHERE stage_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count defects of stage %d: %w", id, err)
	}
	return n, nil
}
