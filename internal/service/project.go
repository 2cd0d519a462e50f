package service

import (
	"context"
	"time"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/logging"
	"github.com/sumire/defects/internal/storage"
)

// ProjectStore defines the project data access interface consumed by ProjectService.
type ProjectStore interface {
	List(ctx context.Context, f domain.ProjectFilter) ([]domain.ProjectView, int64, error)
	FindByID(ctx context.Context, id int64) (*domain.Project, error)
	FindView(ctx context.Context, id int64) (*domain.ProjectView, error)
	Create(ctx context.Context, p domain.Project) (*domain.Project, error)
	Update(ctx context.Context, p domain.Project) error
	Delete(ctx context.Context, id int64) error
}

type stageLister interface {
	ListByProject(ctx context.Context, projectID int64) ([]domain.Stage, error)
}

type projectAttachmentPaths interface {
	StoragePathsByProject(ctx context.Context, projectID int64) ([]string, error)
}

type projectStatsReader interface {
	ProjectStats(ctx context.Context, projectID int64) (*domain.ProjectStats, error)
}

// CreateProjectInput is the payload for creating a project.
type CreateProjectInput struct {
	Name        string               `json:"name" validate:"required,max=200"`
	Description *string              `json:"description"`
	Status      domain.ProjectStatus `json:"status" validate:"omitempty,oneof=planning active paused completed cancelled"`
	StartDate   *time.Time           `json:"start_date"`
	EndDate     *time.Time           `json:"end_date"`
}

// ProjectPatch is a partial project update.
type ProjectPatch struct {
	Name        domain.Optional[string]               `json:"name"`
	Description domain.Optional[string]               `json:"description"`
	Status      domain.Optional[domain.ProjectStatus] `json:"status"`
	StartDate   domain.Optional[time.Time]            `json:"start_date"`
	EndDate     domain.Optional[time.Time]            `json:"end_date"`
}

// ProjectService manages projects.
type ProjectService struct {
	tx          Transactor
	projects    ProjectStore
	stages      stageLister
	attachments projectAttachmentPaths
	stats       projectStatsReader
	files       storage.FileStore
}

// NewProjectService creates a new ProjectService.
func NewProjectService(tx Transactor, projects ProjectStore, stages stageLister, attachments projectAttachmentPaths, stats projectStatsReader, files storage.FileStore) *ProjectService {
	return &ProjectService{
		tx:          tx,
		projects:    projects,
		stages:      stages,
		attachments: attachments,
		stats:       stats,
		files:       files,
	}
}

// List returns one page of projects.
func (s *ProjectService) List(ctx context.Context, f domain.ProjectFilter) (domain.Page[domain.ProjectView], error) {
	if f.Status != nil && !f.Status.Valid() {
		return domain.Page[domain.ProjectView]{}, domain.NewValidationError("status", "unknown status %q", *f.Status)
	}
	f.ListOptions = f.ListOptions.Normalize()
	items, total, err := s.projects.List(ctx, f)
	if err != nil {
		return domain.Page[domain.ProjectView]{}, err
	}
	return domain.NewPage(items, total, f.ListOptions), nil
}

// Get returns a project with its creator and ordered stages.
func (s *ProjectService) Get(ctx context.Context, id int64) (*domain.ProjectDetail, error) {
	view, err := s.projects.FindView(ctx, id)
	if err != nil {
		return nil, err
	}
	stages, err := s.stages.ListByProject(ctx, id)
	if err != nil {
		return nil, err
	}
	creator := view.Creator
	return &domain.ProjectDetail{Project: view.Project, Creator: &creator, Stages: nonNil(stages)}, nil
}

// Create adds a project owned by actorID.
func (s *ProjectService) Create(ctx context.Context, in CreateProjectInput, actorID int64) (*domain.Project, error) {
	name := cleanText(in.Name)
	if err := checkLength("name", name, 3, 200); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = domain.ProjectStatusPlanning
	}
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status %q", status)
	}
	if err := checkDateRange(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	project, err := s.projects.Create(ctx, domain.Project{
		Name:        name,
		Description: cleanOptionalText(in.Description),
		Status:      status,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		CreatedBy:   actorID,
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("project created", "project_id", project.ID, "actor_id", actorID)
	return project, nil
}

// Update applies patch to a project.
func (s *ProjectService) Update(ctx context.Context, id int64, patch ProjectPatch) (*domain.Project, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *project

	if patch.Name.Set {
		if patch.Name.Value == nil {
			return nil, domain.NewValidationError("name", "is required")
		}
		name := cleanText(*patch.Name.Value)
		if err := checkLength("name", name, 3, 200); err != nil {
			return nil, err
		}
		updated.Name = name
	}
	if patch.Description.Set {
		updated.Description = cleanOptionalText(patch.Description.Value)
	}
	if patch.Status.Set {
		if patch.Status.Value == nil || !patch.Status.Value.Valid() {
			return nil, domain.NewValidationError("status", "must be one of planning, active, paused, completed, cancelled")
		}
		updated.Status = *patch.Status.Value
	}
	if patch.StartDate.Set {
		updated.StartDate = patch.StartDate.Value
	}
	if patch.EndDate.Set {
		updated.EndDate = patch.EndDate.Value
	}
	if err := checkDateRange(updated.StartDate, updated.EndDate); err != nil {
		return nil, err
	}

	if err := s.projects.Update(ctx, updated); err != nil {
		return nil, err
	}
	return s.projects.FindByID(ctx, id)
}

// Delete removes a project with its stages and defects. Stored attachment
// files of those defects are removed after the transaction commits.
func (s *ProjectService) Delete(ctx context.Context, id, actorID int64) error {
	var paths []string
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.projects.FindByID(ctx, id); err != nil {
			return err
		}
		var err error
		if paths, err = s.attachments.StoragePathsByProject(ctx, id); err != nil {
			return err
		}
		return s.projects.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	removeFiles(ctx, s.files, paths)
	logging.FromContext(ctx).Info("project deleted", "project_id", id, "actor_id", actorID)
	return nil
}

// Stats aggregates the defects of a project.
func (s *ProjectService) Stats(ctx context.Context, id int64) (*domain.ProjectStats, error) {
	if _, err := s.projects.FindByID(ctx, id); err != nil {
		return nil, err
	}
	return s.stats.ProjectStats(ctx, id)
}

func checkDateRange(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return domain.NewValidationError("end_date", "must not be before start_date")
	}
	return nil
}
