package service

import (
	"slices"

	"github.com/sumire/defects/internal/domain"
)

// Action names an operation gated by the access policy.
type Action string

const (
	ActionProjectView   Action = "project.view"
	ActionProjectCreate Action = "project.create"
	ActionProjectUpdate Action = "project.update"
	ActionProjectDelete Action = "project.delete"

	ActionStageView   Action = "stage.view"
	ActionStageCreate Action = "stage.create"
	ActionStageUpdate Action = "stage.update"
	ActionStageDelete Action = "stage.delete"

	ActionDefectView   Action = "defect.view"
	ActionDefectCreate Action = "defect.create"
	ActionDefectUpdate Action = "defect.update"
	ActionDefectDelete Action = "defect.delete"

	ActionCommentCreate Action = "comment.create"
	ActionHistoryView   Action = "history.view"

	ActionAttachmentView   Action = "attachment.view"
	ActionAttachmentUpload Action = "attachment.upload"
	ActionAttachmentDelete Action = "attachment.delete"

	ActionReportView Action = "report.view"
)

var (
	managerOnly       = []domain.Role{domain.RoleManager}
	managerOrEngineer = []domain.Role{domain.RoleManager, domain.RoleEngineer}
	anyAuthenticated  = []domain.Role{}
)

// Policy maps every action to the roles allowed to perform it.
// An empty list admits any authenticated user.
var Policy = map[Action][]domain.Role{
	ActionProjectView:   anyAuthenticated,
	ActionProjectCreate: managerOnly,
	ActionProjectUpdate: managerOnly,
	ActionProjectDelete: managerOnly,

	ActionStageView:   anyAuthenticated,
	ActionStageCreate: managerOrEngineer,
	ActionStageUpdate: managerOrEngineer,
	ActionStageDelete: managerOnly,

	ActionDefectView:   anyAuthenticated,
	ActionDefectCreate: managerOrEngineer,
	ActionDefectUpdate: managerOrEngineer,
	ActionDefectDelete: managerOnly,

	ActionCommentCreate: anyAuthenticated,
	ActionHistoryView:   anyAuthenticated,

	ActionAttachmentView:   anyAuthenticated,
	ActionAttachmentUpload: managerOrEngineer,
	// Ownership is checked by AttachmentService.Delete.
	ActionAttachmentDelete: anyAuthenticated,

	ActionReportView: anyAuthenticated,
}

// Authorize reports whether role satisfies required. An empty list admits every role.
func Authorize(role domain.Role, required []domain.Role) bool {
	if len(required) == 0 {
		return true
	}
	return slices.Contains(required, role)
}

// Allowed reports whether role may perform action. Unknown actions are denied.
func Allowed(role domain.Role, action Action) bool {
	required, ok := Policy[action]
	if !ok {
		return false
	}
	return Authorize(role, required)
}
