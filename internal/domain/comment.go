package domain

import "time"

// MaxCommentLength bounds comment content after trimming.
const MaxCommentLength = 5000

// Comment is an immutable remark on a defect.
type Comment struct {
	ID        int64     `json:"id" db:"id"`
	DefectID  int64     `json:"defect_id" db:"defect_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CommentView is a comment with its author resolved.
type CommentView struct {
	Comment
	Author UserRef `json:"author"`
}
