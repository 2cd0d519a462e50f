package repository

import (
	"context"
	"fmt"

	"github.com/sumire/defects/internal/domain"
)

const historyColumns = `h.id, h.defect_id, h.user_id, h.field, h.old_value, h.new_value, h.action, h.created_at`

type historyRow struct {
	domain.ChangeEntry
	Username string `db:"username"`
}

func (r historyRow) view() domain.ChangeEntryView {
	return domain.ChangeEntryView{
		ChangeEntry: r.ChangeEntry,
		User:        domain.UserRef{ID: r.UserID, Username: r.Username},
	}
}

// HistoryRepository appends and reads defect change history.
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append writes one change entry.
func (r *HistoryRepository) Append(ctx context.Context, e domain.ChangeEntry) error {
	_, err := r.db.exec(ctx,
		`INSERT INTO change_history (defect_id, user_id, field, old_value, new_value, action)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.DefectID, e.UserID, e.Field, e.OldValue, e.NewValue, e.Action,
	)
	if err != nil {
		return fmt.Errorf("append change entry for defect %d: %w", e.DefectID, err)
	}
	return nil
}

// ListByDefect returns one page of a defect's history, newest first, and the total.
func (r *HistoryRepository) ListByDefect(ctx context.Context, defectID int64, opts domain.ListOptions) ([]domain.ChangeEntryView, int64, error) {
	var total int64
	if err := r.db.get(ctx, &total,
		`SELECT COUNT(*) FROM change_history WHERE defect_id = $1`, defectID); err != nil {
		return nil, 0, fmt.Errorf("count history of defect %d: %w", defectID, err)
	}

	opts = opts.Normalize()
	var rows []historyRow
	err := r.db.selectAll(ctx, &rows,
		`SELECT `+historyColumns+`, u.username
		 FROM change_history h JOIN users u ON u.id = h.user_id
		 WHERE h.defect_id = $1
		 ORDER BY h.created_at DESC, h.id DESC
		 LIMIT $2 OFFSET $3`, defectID, opts.Limit, opts.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list history of defect %d: %w", defectID, err)
	}

	views := make([]domain.ChangeEntryView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, total, nil
}

// FindView retrieves a single change entry with its actor.
func (r *HistoryRepository) FindView(ctx context.Context, id int64) (*domain.ChangeEntryView, error) {
	var row historyRow
	err := r.db.get(ctx, &row,
		`SELECT `+historyColumns+`, u.username
		 FROM change_history h JOIN users u ON u.id = h.user_id
		 WHERE h.id = $1`, id)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find change entry %d: %w", id, err)
	}
	v := row.view()
	return &v, nil
}
