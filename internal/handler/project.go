package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/service"
)

// ProjectUsecase is the project surface consumed by ProjectHandler.
type ProjectUsecase interface {
	List(ctx context.Context, f domain.ProjectFilter) (domain.Page[domain.ProjectView], error)
	Get(ctx context.Context, id int64) (*domain.ProjectDetail, error)
	Create(ctx context.Context, in service.CreateProjectInput, actorID int64) (*domain.Project, error)
	Update(ctx context.Context, id int64, patch service.ProjectPatch) (*domain.Project, error)
	Delete(ctx context.Context, id, actorID int64) error
	Stats(ctx context.Context, id int64) (*domain.ProjectStats, error)
}

// StageUsecase is the stage surface consumed by StageHandler and ProjectHandler.
type StageUsecase interface {
	ListByProject(ctx context.Context, projectID int64) ([]domain.Stage, error)
	Get(ctx context.Context, id int64) (*domain.StageDetail, error)
	Create(ctx context.Context, in service.CreateStageInput) (*domain.Stage, error)
	Update(ctx context.Context, id int64, patch service.StagePatch) (*domain.Stage, error)
	Delete(ctx context.Context, id int64) error
}

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	projects ProjectUsecase
	stages   StageUsecase
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects ProjectUsecase, stages StageUsecase) *ProjectHandler {
	return &ProjectHandler{projects: projects, stages: stages}
}

// List returns a page of projects filtered by status and search.
func (h *ProjectHandler) List(c echo.Context) error {
	opts, err := listOptions(c)
	if err != nil {
		return err
	}
	page, err := h.projects.List(c.Request().Context(), domain.ProjectFilter{
		Status:      queryString[domain.ProjectStatus](c, "status"),
		Search:      c.QueryParam("search"),
		ListOptions: opts,
	})
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, page)
}

// Get returns a project with its stages.
func (h *ProjectHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	project, err := h.projects.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, project)
}

// Create adds a project.
func (h *ProjectHandler) Create(c echo.Context) error {
	identity, _ := CurrentUser(c)
	var in service.CreateProjectInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	project, err := h.projects.Create(c.Request().Context(), in, identity.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, project)
}

// Update applies a partial update to a project.
func (h *ProjectHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var patch service.ProjectPatch
	if err := bindBody(c, &patch); err != nil {
		return err
	}
	project, err := h.projects.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, project)
}

// Delete removes a project and everything in it.
func (h *ProjectHandler) Delete(c echo.Context) error {
	identity, _ := CurrentUser(c)
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.projects.Delete(c.Request().Context(), id, identity.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats returns defect counts of a project.
func (h *ProjectHandler) Stats(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stats, err := h.projects.Stats(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stats)
}

// Stages lists the stages of a project in order.
func (h *ProjectHandler) Stages(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stages, err := h.stages.ListByProject(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stages)
}

// StageHandler handles stage endpoints.
type StageHandler struct {
	stages StageUsecase
}

// NewStageHandler creates a new StageHandler.
func NewStageHandler(stages StageUsecase) *StageHandler {
	return &StageHandler{stages: stages}
}

// Get returns a stage with its project.
func (h *StageHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	stage, err := h.stages.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stage)
}

// Create adds a stage to a project.
func (h *StageHandler) Create(c echo.Context) error {
	var in service.CreateStageInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	stage, err := h.stages.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, stage)
}

// Update applies a partial update to a stage.
func (h *StageHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var patch service.StagePatch
	if err := bindBody(c, &patch); err != nil {
		return err
	}
	stage, err := h.stages.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, stage)
}

// Delete removes a stage no defect references.
func (h *StageHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.stages.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
