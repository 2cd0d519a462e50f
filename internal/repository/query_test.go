package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"xorm.io/builder"

	"github.com/sumire/defects/internal/domain"
)

func TestWhere_Empty(t *testing.T) {
	sqlStr, args, err := where(builder.NewCond())
	require.NoError(t, err)
	assert.Empty(t, sqlStr)
	assert.Nil(t, args)

	sqlStr, _, err = where(nil)
	require.NoError(t, err)
	assert.Empty(t, sqlStr)
}

func TestDefectCond(t *testing.T) {
	project := int64(4)
	assignee := int64(9)
	status := domain.DefectStatusReview

	sqlStr, args, err := where(defectCond(domain.DefectFilter{
		ProjectID:  &project,
		Status:     &status,
		AssigneeID: &assignee,
		Search:     "crack",
	}))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sqlStr, " WHERE "))
	for _, frag := range []string{"d.project_id=?", "d.status=?", "d.assignee_id=?", "d.title ILIKE ?", "d.description ILIKE ?"} {
		assert.Contains(t, sqlStr, frag)
	}
	assert.NotContains(t, sqlStr, "d.stage_id")
	assert.NotContains(t, sqlStr, "d.reporter_id")
	assert.Equal(t, []any{project, status, assignee, "%crack%", "%crack%"}, args)
}

func TestDefectOrder(t *testing.T) {
	tests := []struct {
		name   string
		filter domain.DefectFilter
		want   string
	}{
		{"default", domain.DefectFilter{Desc: true}, " ORDER BY d.created_at DESC NULLS LAST, d.id DESC"},
		{"due date ascending", domain.DefectFilter{SortBy: domain.SortDueDate}, " ORDER BY d.due_date ASC NULLS LAST, d.id ASC"},
		{"unknown falls back", domain.DefectFilter{SortBy: "severity", Desc: true}, " ORDER BY d.created_at DESC NULLS LAST, d.id DESC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, defectOrder(tt.filter))
		})
	}

	priority := defectOrder(domain.DefectFilter{SortBy: domain.SortPriority, Desc: true})
	assert.Contains(t, priority, "WHEN 'critical' THEN 4")
	assert.True(t, strings.HasSuffix(priority, "DESC NULLS LAST, d.id DESC"))
}

func TestProjectCond(t *testing.T) {
	active := domain.ProjectStatusActive
	sqlStr, args, err := where(projectCond(domain.ProjectFilter{Status: &active}))
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "p.status=?")
	assert.NotContains(t, sqlStr, "ILIKE")
	assert.Equal(t, []any{active}, args)
}

func TestReportCond(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	high := domain.PriorityHigh

	sqlStr, args, err := where(reportCond(domain.ReportFilter{Priority: &high, From: &from, To: &to}))
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "d.priority=?")
	assert.Contains(t, sqlStr, "d.created_at>=?")
	assert.Contains(t, sqlStr, "d.created_at<=?")
	assert.Equal(t, []any{high, from, to}, args)
}
