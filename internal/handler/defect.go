package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/service"
)

// DefectUsecase is the defect surface consumed by DefectHandler.
type DefectUsecase interface {
	List(ctx context.Context, f domain.DefectFilter) (domain.Page[domain.DefectView], error)
	Get(ctx context.Context, id int64) (*domain.DefectDetail, error)
	Create(ctx context.Context, in service.CreateDefectInput, actorID int64) (*domain.DefectView, error)
	Update(ctx context.Context, id int64, patch service.DefectPatch, actorID int64) (*domain.DefectView, error)
	Delete(ctx context.Context, id, actorID int64) error
	AddComment(ctx context.Context, defectID int64, content string, actorID int64) (*domain.CommentView, error)
	History(ctx context.Context, defectID int64, opts domain.ListOptions) (domain.Page[domain.ChangeEntryView], error)
	HistoryEntry(ctx context.Context, id int64) (*domain.ChangeEntryView, error)
}

// DefectHandler handles defect, comment and history endpoints.
type DefectHandler struct {
	defects DefectUsecase
}

// NewDefectHandler creates a new DefectHandler.
func NewDefectHandler(defects DefectUsecase) *DefectHandler {
	return &DefectHandler{defects: defects}
}

// List returns a filtered, sorted page of defects.
func (h *DefectHandler) List(c echo.Context) error {
	f, err := defectFilter(c)
	if err != nil {
		return err
	}
	page, err := h.defects.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, page)
}

func defectFilter(c echo.Context) (domain.DefectFilter, error) {
	opts, err := listOptions(c)
	if err != nil {
		return domain.DefectFilter{}, err
	}
	f := domain.DefectFilter{
		Status:      queryString[domain.DefectStatus](c, "status"),
		Priority:    queryString[domain.Priority](c, "priority"),
		Search:      c.QueryParam("search"),
		SortBy:      domain.DefectSortField(c.QueryParam("sortBy")),
		Desc:        true,
		ListOptions: opts,
	}

	ids := map[string]**int64{
		"projectId":  &f.ProjectID,
		"stageId":    &f.StageID,
		"assigneeId": &f.AssigneeID,
		"reporterId": &f.ReporterID,
	}
	for name, dst := range ids {
		if *dst, err = queryID(c, name); err != nil {
			return domain.DefectFilter{}, err
		}
	}

	switch strings.ToLower(c.QueryParam("sortOrder")) {
	case "", "desc":
	case "asc":
		f.Desc = false
	default:
		return domain.DefectFilter{}, domain.NewValidationError("sortOrder", "must be asc or desc")
	}
	return f, nil
}

// Get returns a defect with comments, attachments and recent history.
func (h *DefectHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	defect, err := h.defects.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, defect)
}

// Create files a defect reported by the caller.
func (h *DefectHandler) Create(c echo.Context) error {
	identity, _ := CurrentUser(c)
	var in service.CreateDefectInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	defect, err := h.defects.Create(c.Request().Context(), in, identity.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, defect)
}

// Update applies a partial update, including status transitions.
func (h *DefectHandler) Update(c echo.Context) error {
	identity, _ := CurrentUser(c)
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var patch service.DefectPatch
	if err := bindBody(c, &patch); err != nil {
		return err
	}
	defect, err := h.defects.Update(c.Request().Context(), id, patch, identity.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, defect)
}

// Delete removes a defect.
func (h *DefectHandler) Delete(c echo.Context) error {
	identity, _ := CurrentUser(c)
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.defects.Delete(c.Request().Context(), id, identity.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AddComment appends a comment by the caller.
func (h *DefectHandler) AddComment(c echo.Context) error {
	identity, _ := CurrentUser(c)
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req struct {
		Content string `json:"content" validate:"required"`
	}
	if err := bindBody(c, &req); err != nil {
		return err
	}
	comment, err := h.defects.AddComment(c.Request().Context(), id, req.Content, identity.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, comment)
}

// History returns a page of the defect's change history.
func (h *DefectHandler) History(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	opts, err := listOptions(c)
	if err != nil {
		return err
	}
	page, err := h.defects.History(c.Request().Context(), id, opts)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, page)
}

// HistoryEntry returns one change history entry.
func (h *DefectHandler) HistoryEntry(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	entry, err := h.defects.HistoryEntry(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, entry)
}
