package domain

import "time"

// ReportFilter narrows defects considered by reports and exports.
type ReportFilter struct {
	ProjectID *int64
	Status    *DefectStatus
	Priority  *Priority
	From      *time.Time
	To        *time.Time
}

// GroupCount is the number of defects sharing a key.
type GroupCount struct {
	Key   string `json:"key" db:"key"`
	Count int64  `json:"count" db:"count"`
}

// AssigneeCount is the number of defects assigned to one user (nil for unassigned).
type AssigneeCount struct {
	AssigneeID *int64  `json:"assignee_id" db:"assignee_id"`
	Username   *string `json:"username" db:"username"`
	Count      int64   `json:"count" db:"count"`
}

// DefectStats aggregates defects matching a ReportFilter.
type DefectStats struct {
	Total      int64           `json:"total"`
	Resolved   int64           `json:"resolved"`
	Overdue    int64           `json:"overdue"`
	ByStatus   []GroupCount    `json:"by_status"`
	ByPriority []GroupCount    `json:"by_priority"`
	ByAssignee []AssigneeCount `json:"by_assignee"`
}

// ProjectStats aggregates the defects of one project.
type ProjectStats struct {
	TotalDefects int64        `json:"total_defects"`
	ByStatus     []GroupCount `json:"by_status"`
	ByPriority   []GroupCount `json:"by_priority"`
}

// TrendPeriod is the bucket width of a trend report.
type TrendPeriod string

const (
	TrendDay   TrendPeriod = "day"
	TrendWeek  TrendPeriod = "week"
	TrendMonth TrendPeriod = "month"
)

// TrendPoint counts defects falling in one time bucket.
type TrendPoint struct {
	Period string `json:"period" db:"period"`
	Count  int64  `json:"count" db:"count"`
}

// Trends holds created and resolved defect counts per bucket.
type Trends struct {
	Created  []TrendPoint `json:"created"`
	Resolved []TrendPoint `json:"resolved"`
}

// MemberPerformance summarizes the defects assigned to one user.
type MemberPerformance struct {
	AssigneeID        *int64   `json:"assignee_id" db:"assignee_id"`
	Username          *string  `json:"username" db:"username"`
	Role              *Role    `json:"role" db:"role"`
	TotalAssigned     int64    `json:"total_assigned" db:"total_assigned"`
	Completed         int64    `json:"completed" db:"completed"`
	InProgress        int64    `json:"in_progress" db:"in_progress"`
	AvgResolutionDays *float64 `json:"avg_resolution_days" db:"avg_resolution_days"`
}

// ExportRow is one defect flattened for CSV/XLSX export.
type ExportRow struct {
	ID          int64        `db:"id"`
	ProjectName *string      `db:"project_name"`
	Title       string       `db:"title"`
	Description *string      `db:"description"`
	Priority    Priority     `db:"priority"`
	Status      DefectStatus `db:"status"`
	Assignee    *string      `db:"assignee"`
	Reporter    *string      `db:"reporter"`
	DueDate     *time.Time   `db:"due_date"`
	CreatedAt   time.Time    `db:"created_at"`
	ResolvedAt  *time.Time   `db:"resolved_at"`
}
