package domain

import "time"

// ChangeAction classifies a change history entry.
type ChangeAction string

const (
	ChangeCreated ChangeAction = "created"
	ChangeUpdated ChangeAction = "updated"
	ChangeDeleted ChangeAction = "deleted"
)

// ChangeEntry is one append-only audit record of a defect field mutation.
type ChangeEntry struct {
	ID        int64        `json:"id" db:"id"`
	DefectID  int64        `json:"defect_id" db:"defect_id"`
	UserID    int64        `json:"user_id" db:"user_id"`
	Field     string       `json:"field" db:"field"`
	OldValue  *string      `json:"old_value" db:"old_value"`
	NewValue  *string      `json:"new_value" db:"new_value"`
	Action    ChangeAction `json:"action" db:"action"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// ChangeEntryView is a change entry with its actor resolved.
type ChangeEntryView struct {
	ChangeEntry
	User UserRef `json:"user"`
}
