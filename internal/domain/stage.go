package domain

import "time"

// StageStatus represents the progress of a project stage.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusInProgress StageStatus = "in_progress"
	StageStatusCompleted  StageStatus = "completed"
)

// Valid reports whether s is a known stage status.
func (s StageStatus) Valid() bool {
	switch s {
	case StageStatusPending, StageStatusInProgress, StageStatusCompleted:
		return true
	}
	return false
}

// Stage is a named, ordered phase of a project.
type Stage struct {
	ID          int64       `json:"id" db:"id"`
	ProjectID   int64       `json:"project_id" db:"project_id"`
	Name        string      `json:"name" db:"name"`
	Description *string     `json:"description,omitempty" db:"description"`
	Order       int         `json:"order" db:"sort_order"`
	Status      StageStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// StageDetail is a stage with its project resolved.
type StageDetail struct {
	Stage
	Project ProjectRef `json:"project"`
}

// StageRef is the compact stage shape embedded in defects.
type StageRef struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
