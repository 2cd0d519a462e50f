package domain

import "time"

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusPaused    ProjectStatus = "paused"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusCancelled ProjectStatus = "cancelled"
)

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusPaused,
		ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

// Project groups stages and defects.
type Project struct {
	ID          int64         `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description *string       `json:"description,omitempty" db:"description"`
	Status      ProjectStatus `json:"status" db:"status"`
	StartDate   *time.Time    `json:"start_date,omitempty" db:"start_date"`
	EndDate     *time.Time    `json:"end_date,omitempty" db:"end_date"`
	CreatedBy   int64         `json:"created_by" db:"created_by"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// ProjectDetail is a project with its creator and stages resolved.
type ProjectDetail struct {
	Project
	Creator *UserRef `json:"creator,omitempty"`
	Stages  []Stage  `json:"stages"`
}

// ProjectRef is the compact project shape embedded in other resources.
type ProjectRef struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// ProjectView is a project with its creator resolved.
type ProjectView struct {
	Project
	Creator UserRef `json:"creator"`
}

// ProjectFilter narrows a project listing.
type ProjectFilter struct {
	Status *ProjectStatus
	Search string
	ListOptions
}
