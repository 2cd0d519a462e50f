package repository

import (
	"context"
	"fmt"

	"github.com/sumire/defects/internal/domain"
)

type commentRow struct {
	domain.Comment
	AuthorUsername string `db:"author_username"`
}

// CommentRepository handles comment data access operations.
type CommentRepository struct {
	db *DB
}

// NewCommentRepository creates a new CommentRepository.
func NewCommentRepository(db *DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// Create inserts a comment and returns it with its author.
func (r *CommentRepository) Create(ctx context.Context, c domain.Comment) (*domain.CommentView, error) {
	var row commentRow
	err := r.db.get(ctx, &row,
		`WITH inserted AS (
		     INSERT INTO comments (defect_id, user_id, content)
		     VALUES ($1, $2, $3)
		     RETURNING id, defect_id, user_id, content, created_at
		 )
		 SELECT i.id, i.defect_id, i.user_id, i.content, i.created_at, u.username AS author_username
		 FROM inserted i JOIN users u ON u.id = i.user_id`,
		c.DefectID, c.UserID, c.Content,
	)
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	return &domain.CommentView{
		Comment: row.Comment,
		Author:  domain.UserRef{ID: row.UserID, Username: row.AuthorUsername},
	}, nil
}

// ListByDefect returns the comments of a defect, newest first.
func (r *CommentRepository) ListByDefect(ctx context.Context, defectID int64) ([]domain.CommentView, error) {
	var rows []commentRow
	err := r.db.selectAll(ctx, &rows,
		`SELECT c.id, c.defect_id, c.user_id, c.content, c.created_at, u.username AS author_username
		 FROM comments c JOIN users u ON u.id = c.user_id
		 WHERE c.defect_id = $1
		 ORDER BY c.created_at DESC, c.id DESC`, defectID)
	if err != nil {
		return nil, fmt.Errorf("list comments of defect %d: %w", defectID, err)
	}

	views := make([]domain.CommentView, 0, len(rows))
	for _, row := range rows {
		views = append(views, domain.CommentView{
			Comment: row.Comment,
			Author:  domain.UserRef{ID: row.UserID, Username: row.AuthorUsername},
		})
	}
	return views, nil
}
