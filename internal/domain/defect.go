package domain

import "time"

// DefectStatus represents the lifecycle state of a defect.
type DefectStatus string

const (
	DefectStatusNew        DefectStatus = "new"
	DefectStatusInProgress DefectStatus = "in_progress"
	DefectStatusReview     DefectStatus = "review"
	DefectStatusClosed     DefectStatus = "closed"
	DefectStatusCancelled  DefectStatus = "cancelled"
)

// DefectStatuses lists every status in lifecycle order.
var DefectStatuses = []DefectStatus{
	DefectStatusNew,
	DefectStatusInProgress,
	DefectStatusReview,
	DefectStatusClosed,
	DefectStatusCancelled,
}

// transitions holds the outgoing edges of each status. Closed and cancelled are terminal.
var transitions = map[DefectStatus][]DefectStatus{
	DefectStatusNew:        {DefectStatusInProgress, DefectStatusCancelled},
	DefectStatusInProgress: {DefectStatusReview, DefectStatusNew, DefectStatusCancelled},
	DefectStatusReview:     {DefectStatusClosed, DefectStatusInProgress},
	DefectStatusClosed:     {},
	DefectStatusCancelled:  {},
}

// Valid reports whether s is a known defect status.
func (s DefectStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s DefectStatus) Terminal() bool {
	return s == DefectStatusClosed || s == DefectStatusCancelled
}

// CanTransition reports whether a defect may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to DefectStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority ranks the urgency of a defect.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Defect represents a tracked issue within a project.
type Defect struct {
	ID          int64        `json:"id" db:"id"`
	ProjectID   int64        `json:"project_id" db:"project_id"`
	StageID     *int64       `json:"stage_id,omitempty" db:"stage_id"`
	Title       string       `json:"title" db:"title"`
	Description *string      `json:"description,omitempty" db:"description"`
	Priority    Priority     `json:"priority" db:"priority"`
	Status      DefectStatus `json:"status" db:"status"`
	AssigneeID  *int64       `json:"assignee_id,omitempty" db:"assignee_id"`
	ReporterID  int64        `json:"reporter_id" db:"reporter_id"`
	DueDate     *time.Time   `json:"due_date,omitempty" db:"due_date"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// ApplyTransition moves the defect to status to. Closing stamps ResolvedAt once;
// no other transition touches it.
func (d *Defect) ApplyTransition(to DefectStatus, now time.Time) error {
	if !CanTransition(d.Status, to) {
		return &TransitionError{From: d.Status, To: to}
	}
	d.Status = to
	if to == DefectStatusClosed && d.ResolvedAt == nil {
		resolved := now
		d.ResolvedAt = &resolved
	}
	return nil
}

// DefectView is a defect with its associations resolved.
type DefectView struct {
	Defect
	Project  ProjectRef `json:"project"`
	Stage    *StageRef  `json:"stage,omitempty"`
	Assignee *UserRef   `json:"assignee,omitempty"`
	Reporter UserRef    `json:"reporter"`
}

// DefectDetail is a defect with every related collection loaded.
type DefectDetail struct {
	DefectView
	Comments    []CommentView     `json:"comments"`
	Attachments []AttachmentView  `json:"attachments"`
	History     []ChangeEntryView `json:"history"`
}

// DefectSortField names a column a defect listing can be ordered by.
type DefectSortField string

const (
	SortCreatedAt DefectSortField = "createdAt"
	SortUpdatedAt DefectSortField = "updatedAt"
	SortPriority  DefectSortField = "priority"
	SortStatus    DefectSortField = "status"
	SortDueDate   DefectSortField = "dueDate"
	SortTitle     DefectSortField = "title"
)

// Valid reports whether f is a sortable field.
func (f DefectSortField) Valid() bool {
	switch f {
	case SortCreatedAt, SortUpdatedAt, SortPriority, SortStatus, SortDueDate, SortTitle:
		return true
	}
	return false
}

// DefectFilter narrows and orders a defect listing.
type DefectFilter struct {
	ProjectID  *int64
	StageID    *int64
	Status     *DefectStatus
	Priority   *Priority
	AssigneeID *int64
	ReporterID *int64
	Search     string
	SortBy     DefectSortField
	Desc       bool
	ListOptions
}
