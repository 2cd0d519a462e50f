package service

import (
	"context"
	"fmt"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/logging"
)

// StageStore defines the stage data access interface consumed by StageService.
type StageStore interface {
	ListByProject(ctx context.Context, projectID int64) ([]domain.Stage, error)
	FindByID(ctx context.Context, id int64) (*domain.Stage, error)
	FindDetail(ctx context.Context, id int64) (*domain.StageDetail, error)
	Create(ctx context.Context, s domain.Stage) (*domain.Stage, error)
	Update(ctx context.Context, s domain.Stage) error
	Delete(ctx context.Context, id int64) error
	CountDefects(ctx context.Context, id int64) (int64, error)
}

// CreateStageInput is the payload for adding a stage to a project.
type CreateStageInput struct {
	ProjectID   int64              `json:"project_id" validate:"required,gt=0"`
	Name        string             `json:"name" validate:"required,max=200"`
	Description *string            `json:"description"`
	Order       int                `json:"order" validate:"gte=0"`
	Status      domain.StageStatus `json:"status" validate:"omitempty,oneof=pending in_progress completed"`
}

// StagePatch is a partial stage update.
type StagePatch struct {
	Name        domain.Optional[string]             `json:"name"`
	Description domain.Optional[string]             `json:"description"`
	Order       domain.Optional[int]                `json:"order"`
	Status      domain.Optional[domain.StageStatus] `json:"status"`
}

// StageService manages project stages.
type StageService struct {
	tx       Transactor
	stages   StageStore
	projects projectFinder
}

// NewStageService creates a new StageService.
func NewStageService(tx Transactor, stages StageStore, projects projectFinder) *StageService {
	return &StageService{tx: tx, stages: stages, projects: projects}
}

// ListByProject returns the stages of a project in order.
func (s *StageService) ListByProject(ctx context.Context, projectID int64) ([]domain.Stage, error) {
	if _, err := s.projects.FindByID(ctx, projectID); err != nil {
		return nil, err
	}
	stages, err := s.stages.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return nonNil(stages), nil
}

// Get returns a stage with its project.
func (s *StageService) Get(ctx context.Context, id int64) (*domain.StageDetail, error) {
	return s.stages.FindDetail(ctx, id)
}

// Create adds a stage to an existing project.
func (s *StageService) Create(ctx context.Context, in CreateStageInput) (*domain.Stage, error) {
	name := cleanText(in.Name)
	if err := checkLength("name", name, 2, 200); err != nil {
		return nil, err
	}
	if in.Order < 0 {
		return nil, domain.NewValidationError("order", "must not be negative")
	}
	status := in.Status
	if status == "" {
		status = domain.StageStatusPending
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status %q", status)
	}
	if _, err := s.projects.FindByID(ctx, in.ProjectID); err != nil {
		return nil, err
	}

	stage, err := s.stages.Create(ctx, domain.Stage{
		ProjectID:   in.ProjectID,
		Name:        name,
		Description: cleanOptionalText(in.Description),
		Order:       in.Order,
		Status:      status,
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("stage created", "stage_id", stage.ID, "project_id", stage.ProjectID)
	return stage, nil
}

// Update applies patch to a stage.
func (s *StageService) Update(ctx context.Context, id int64, patch StagePatch) (*domain.Stage, error) {
	stage, err := s.stages.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *stage

	if patch.Name.Set {
		if patch.Name.Value == nil {
			return nil, domain.NewValidationError("name", "is required")
		}
		name := cleanText(*patch.Name.Value)
		if err := checkLength("name", name, 2, 200); err != nil {
			return nil, err
		}
		updated.Name = name
	}
	if patch.Description.Set {
		updated.Description = cleanOptionalText(patch.Description.Value)
	}
	if patch.Order.Set {
		if patch.Order.Value == nil || *patch.Order.Value < 0 {
			return nil, domain.NewValidationError("order", "must be a non-negative integer")
		}
		updated.Order = *patch.Order.Value
	}
	if patch.Status.Set {
		if patch.Status.Value == nil || !patch.Status.Value.Valid() {
			return nil, domain.NewValidationError("status", "must be one of pending, in_progress, completed")
		}
		updated.Status = *patch.Status.Value
	}

	if err := s.stages.Update(ctx, updated); err != nil {
		return nil, err
	}
	return s.stages.FindByID(ctx, id)
}

// Delete removes a stage. It fails with domain.ErrConflict while defects reference it.
func (s *StageService) Delete(ctx context.Context, id int64) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.stages.FindByID(ctx, id); err != nil {
			return err
		}
		n, err := s.stages.CountDefects(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: stage %d is referenced by %d defects", domain.ErrConflict, id, n)
		}
		if err := s.stages.Delete(ctx, id); err != nil {
			return err
		}
		logging.FromContext(ctx).Info("stage deleted", "stage_id", id)
		return nil
	})
}
