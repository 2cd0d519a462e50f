package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/logging"
	"github.com/sumire/defects/internal/metrics"
	"github.com/sumire/defects/internal/storage"
)

// detailHistoryLimit bounds the history embedded in a defect detail.
const detailHistoryLimit = 50

// History labels for assignee changes.
const (
	unassigned  = "Unassigned"
	unknownUser = "Unknown"
)

// DefectStore defines the defect data access interface consumed by DefectService.
type DefectStore interface {
	List(ctx context.Context, f domain.DefectFilter) ([]domain.DefectView, int64, error)
	FindByID(ctx context.Context, id int64) (*domain.Defect, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Defect, error)
	FindView(ctx context.Context, id int64) (*domain.DefectView, error)
	Create(ctx context.Context, d domain.Defect) (*domain.Defect, error)
	Update(ctx context.Context, d domain.Defect) error
	Delete(ctx context.Context, id int64) error
}

// CommentStore defines comment persistence.
type CommentStore interface {
	Create(ctx context.Context, c domain.Comment) (*domain.CommentView, error)
	ListByDefect(ctx context.Context, defectID int64) ([]domain.CommentView, error)
}

// HistoryReader reads the change history of defects.
type HistoryReader interface {
	ListByDefect(ctx context.Context, defectID int64, opts domain.ListOptions) ([]domain.ChangeEntryView, int64, error)
	FindView(ctx context.Context, id int64) (*domain.ChangeEntryView, error)
}

type attachmentLister interface {
	ListByDefect(ctx context.Context, defectID int64) ([]domain.AttachmentView, error)
	StoragePathsByDefect(ctx context.Context, defectID int64) ([]string, error)
}

// CreateDefectInput is the payload for filing a defect.
type CreateDefectInput struct {
	ProjectID   int64           `json:"project_id" validate:"required,gt=0"`
	StageID     *int64          `json:"stage_id" validate:"omitempty,gt=0"`
	Title       string          `json:"title" validate:"required,max=300"`
	Description *string         `json:"description"`
	Priority    domain.Priority `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	AssigneeID  *int64          `json:"assignee_id" validate:"omitempty,gt=0"`
	DueDate     *time.Time      `json:"due_date"`
}

// DefectPatch is a partial defect update. Absent keys are left untouched.
type DefectPatch struct {
	Title       domain.Optional[string]              `json:"title"`
	Description domain.Optional[string]              `json:"description"`
	Priority    domain.Optional[domain.Priority]     `json:"priority"`
	Status      domain.Optional[domain.DefectStatus] `json:"status"`
	AssigneeID  domain.Optional[int64]               `json:"assignee_id"`
	StageID     domain.Optional[int64]               `json:"stage_id"`
	DueDate     domain.Optional[time.Time]           `json:"due_date"`
}

// DefectDeps bundles the collaborators of DefectService.
type DefectDeps struct {
	Tx          Transactor
	Defects     DefectStore
	Projects    projectFinder
	Stages      stageFinder
	Users       userFinder
	Comments    CommentStore
	Attachments attachmentLister
	History     HistoryReader
	Recorder    *ChangeRecorder
	Files       storage.FileStore
	Now         func() time.Time
}

// DefectService implements the defect lifecycle.
type DefectService struct {
	tx          Transactor
	defects     DefectStore
	projects    projectFinder
	stages      stageFinder
	users       userFinder
	comments    CommentStore
	attachments attachmentLister
	history     HistoryReader
	recorder    *ChangeRecorder
	files       storage.FileStore
	now         func() time.Time
}

// NewDefectService creates a new DefectService.
func NewDefectService(deps DefectDeps) *DefectService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &DefectService{
		tx:          deps.Tx,
		defects:     deps.Defects,
		projects:    deps.Projects,
		stages:      deps.Stages,
		users:       deps.Users,
		comments:    deps.Comments,
		attachments: deps.Attachments,
		history:     deps.History,
		recorder:    deps.Recorder,
		files:       deps.Files,
		now:         now,
	}
}

// List returns one page of defects matching f.
func (s *DefectService) List(ctx context.Context, f domain.DefectFilter) (domain.Page[domain.DefectView], error) {
	if f.SortBy == "" {
		f.SortBy = domain.SortCreatedAt
	}
	if !f.SortBy.Valid() {
		return domain.Page[domain.DefectView]{}, domain.NewValidationError("sortBy", "unsupported sort field %q", f.SortBy)
	}
	if f.Status != nil && !f.Status.Valid() {
		return domain.Page[domain.DefectView]{}, domain.NewValidationError("status", "unknown status %q", *f.Status)
	}
	if f.Priority != nil && !f.Priority.Valid() {
		return domain.Page[domain.DefectView]{}, domain.NewValidationError("priority", "unknown priority %q", *f.Priority)
	}
	f.ListOptions = f.ListOptions.Normalize()

	items, total, err := s.defects.List(ctx, f)
	if err != nil {
		return domain.Page[domain.DefectView]{}, err
	}
	return domain.NewPage(items, total, f.ListOptions), nil
}

// Get returns a defect with comments, attachments and its latest history.
func (s *DefectService) Get(ctx context.Context, id int64) (*domain.DefectDetail, error) {
	view, err := s.defects.FindView(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByDefect(ctx, id)
	if err != nil {
		return nil, err
	}
	attachments, err := s.attachments.ListByDefect(ctx, id)
	if err != nil {
		return nil, err
	}
	history, _, err := s.history.ListByDefect(ctx, id, domain.ListOptions{Page: 1, Limit: detailHistoryLimit})
	if err != nil {
		return nil, err
	}
	return &domain.DefectDetail{
		DefectView:  *view,
		Comments:    nonNil(comments),
		Attachments: nonNil(attachments),
		History:     nonNil(history),
	}, nil
}

// Create files a new defect in status new with actorID as reporter.
func (s *DefectService) Create(ctx context.Context, in CreateDefectInput, actorID int64) (*domain.DefectView, error) {
	if in.ProjectID <= 0 {
		return nil, domain.NewValidationError("project_id", "is required")
	}
	title := cleanText(in.Title)
	if err := checkLength("title", title, 3, 300); err != nil {
		return nil, err
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, domain.NewValidationError("priority", "unknown priority %q", priority)
	}

	if _, err := s.projects.FindByID(ctx, in.ProjectID); err != nil {
		return nil, err
	}
	if in.StageID != nil {
		if err := s.checkStage(ctx, *in.StageID, in.ProjectID); err != nil {
			return nil, err
		}
	}
	if in.AssigneeID != nil {
		if _, err := s.users.FindByID(ctx, *in.AssigneeID); err != nil {
			return nil, err
		}
	}

	defect := domain.Defect{
		ProjectID:   in.ProjectID,
		StageID:     in.StageID,
		Title:       title,
		Description: cleanOptionalText(in.Description),
		Priority:    priority,
		Status:      domain.DefectStatusNew,
		AssigneeID:  in.AssigneeID,
		ReporterID:  actorID,
		DueDate:     in.DueDate,
	}

	var created *domain.Defect
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.defects.Create(ctx, defect)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, created.ID, actorID, "status", nil, domain.DefectStatusNew, domain.ChangeCreated)
	})
	if err != nil {
		return nil, err
	}

	metrics.ObserveDefectCreated()
	logging.FromContext(ctx).Info("defect created",
		"defect_id", created.ID,
		"project_id", created.ProjectID,
		"actor_id", actorID,
	)

	return s.defects.FindView(ctx, created.ID)
}

type fieldChange struct {
	field    string
	from, to any
}

// Update applies patch to the defect. The row is locked and re-read inside the
// transaction, every changed field is recorded in the history and the row is
// written once. A rejected status transition writes nothing.
func (s *DefectService) Update(ctx context.Context, id int64, patch DefectPatch, actorID int64) (*domain.DefectView, error) {
	var (
		current, updated domain.Defect
		changes          []fieldChange
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.defects.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		current = *locked
		if updated, changes, err = s.applyPatch(ctx, current, patch); err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		for _, c := range changes {
			if err := s.recorder.Record(ctx, id, actorID, c.field, c.from, c.to, domain.ChangeUpdated); err != nil {
				return err
			}
		}
		return s.defects.Update(ctx, updated)
	})
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return s.defects.FindView(ctx, id)
	}

	if updated.Status != current.Status {
		metrics.ObserveTransition(current.Status, updated.Status)
	}
	fields := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.field)
	}
	logging.FromContext(ctx).Info("defect updated",
		"defect_id", id,
		"actor_id", actorID,
		"fields", fields,
	)

	return s.defects.FindView(ctx, id)
}

// applyPatch validates patch against current and returns the patched defect
// with one change per differing field.
func (s *DefectService) applyPatch(ctx context.Context, current domain.Defect, patch DefectPatch) (domain.Defect, []fieldChange, error) {
	updated := current
	var changes []fieldChange

	if patch.Title.Set {
		if patch.Title.Value == nil {
			return current, nil, domain.NewValidationError("title", "is required")
		}
		title := cleanText(*patch.Title.Value)
		if err := checkLength("title", title, 3, 300); err != nil {
			return current, nil, err
		}
		if title != updated.Title {
			changes = append(changes, fieldChange{"title", updated.Title, title})
			updated.Title = title
		}
	}

	if patch.Description.Set {
		desc := cleanOptionalText(patch.Description.Value)
		if !sameText(desc, updated.Description) {
			changes = append(changes, fieldChange{"description", updated.Description, desc})
			updated.Description = desc
		}
	}

	if patch.Priority.Set {
		if patch.Priority.Value == nil || !patch.Priority.Value.Valid() {
			return current, nil, domain.NewValidationError("priority", "must be one of low, medium, high, critical")
		}
		if p := *patch.Priority.Value; p != updated.Priority {
			changes = append(changes, fieldChange{"priority", updated.Priority, p})
			updated.Priority = p
		}
	}

	if patch.AssigneeID.Set {
		assignee := patch.AssigneeID.Value
		to := unassigned
		if assignee != nil {
			u, err := s.users.FindByID(ctx, *assignee)
			if err != nil {
				return current, nil, err
			}
			to = u.Username
		}
		if !sameID(assignee, updated.AssigneeID) {
			from, err := s.assigneeName(ctx, updated.AssigneeID)
			if err != nil {
				return current, nil, err
			}
			changes = append(changes, fieldChange{"assignee_id", from, to})
			updated.AssigneeID = assignee
		}
	}

	if patch.StageID.Set {
		stage := patch.StageID.Value
		if stage != nil {
			if err := s.checkStage(ctx, *stage, updated.ProjectID); err != nil {
				return current, nil, err
			}
		}
		if !sameID(stage, updated.StageID) {
			changes = append(changes, fieldChange{"stage_id", updated.StageID, stage})
			updated.StageID = stage
		}
	}

	if patch.DueDate.Set {
		due := patch.DueDate.Value
		if !sameTime(due, updated.DueDate) {
			changes = append(changes, fieldChange{"due_date", updated.DueDate, due})
			updated.DueDate = due
		}
	}

	if patch.Status.Set {
		if patch.Status.Value == nil || !patch.Status.Value.Valid() {
			return current, nil, domain.NewValidationError("status", "must be one of new, in_progress, review, closed, cancelled")
		}
		if to := *patch.Status.Value; to != updated.Status {
			from, resolvedBefore := updated.Status, updated.ResolvedAt
			if err := updated.ApplyTransition(to, s.now()); err != nil {
				return current, nil, err
			}
			changes = append(changes, fieldChange{"status", from, to})
			if !sameTime(resolvedBefore, updated.ResolvedAt) {
				changes = append(changes, fieldChange{"resolved_at", resolvedBefore, updated.ResolvedAt})
			}
		}
	}

	return updated, changes, nil
}

// assigneeName is the history label of an assignee.
func (s *DefectService) assigneeName(ctx context.Context, id *int64) (string, error) {
	if id == nil {
		return unassigned, nil
	}
	u, err := s.users.FindByID(ctx, *id)
	if errors.Is(err, domain.ErrNotFound) {
		return unknownUser, nil
	}
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// Delete removes a defect with its comments, attachments and history.
// Stored attachment files are removed after the transaction commits.
func (s *DefectService) Delete(ctx context.Context, id, actorID int64) error {
	var paths []string
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.defects.FindByID(ctx, id); err != nil {
			return err
		}
		var err error
		if paths, err = s.attachments.StoragePathsByDefect(ctx, id); err != nil {
			return err
		}
		return s.defects.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	removeFiles(ctx, s.files, paths)
	logging.FromContext(ctx).Info("defect deleted", "defect_id", id, "actor_id", actorID)
	return nil
}

// AddComment appends a comment to a defect.
func (s *DefectService) AddComment(ctx context.Context, defectID int64, content string, actorID int64) (*domain.CommentView, error) {
	text := cleanText(content)
	if text == "" {
		return nil, domain.NewValidationError("content", "is required")
	}
	if utf8.RuneCountInString(text) > domain.MaxCommentLength {
		return nil, domain.NewValidationError("content", "must be at most %d characters", domain.MaxCommentLength)
	}
	if _, err := s.defects.FindByID(ctx, defectID); err != nil {
		return nil, err
	}

	comment, err := s.comments.Create(ctx, domain.Comment{DefectID: defectID, UserID: actorID, Content: text})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("comment added", "defect_id", defectID, "comment_id", comment.ID, "actor_id", actorID)
	return comment, nil
}

// History returns one page of a defect's change history, newest first.
func (s *DefectService) History(ctx context.Context, defectID int64, opts domain.ListOptions) (domain.Page[domain.ChangeEntryView], error) {
	if _, err := s.defects.FindByID(ctx, defectID); err != nil {
		return domain.Page[domain.ChangeEntryView]{}, err
	}
	opts = opts.Normalize()
	items, total, err := s.history.ListByDefect(ctx, defectID, opts)
	if err != nil {
		return domain.Page[domain.ChangeEntryView]{}, err
	}
	return domain.NewPage(items, total, opts), nil
}

// HistoryEntry returns a single change entry.
func (s *DefectService) HistoryEntry(ctx context.Context, id int64) (*domain.ChangeEntryView, error) {
	return s.history.FindView(ctx, id)
}

func (s *DefectService) checkStage(ctx context.Context, stageID, projectID int64) error {
	stage, err := s.stages.FindByID(ctx, stageID)
	if err != nil {
		return err
	}
	if stage.ProjectID != projectID {
		return domain.NewValidationError("stage_id", "stage %d does not belong to project %d", stageID, projectID)
	}
	return nil
}

// removeFiles deletes stored objects, logging failures instead of returning them.
func removeFiles(ctx context.Context, files storage.FileStore, paths []string) {
	for _, p := range paths {
		if err := files.Delete(ctx, p); err != nil {
			logging.FromContext(ctx).Warn("failed to remove stored file", "path", p, "error", err)
		}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
