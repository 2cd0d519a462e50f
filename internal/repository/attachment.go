package repository

import (
	"context"
	"fmt"

	"github.com/sumire/defects/internal/domain"
)

const attachmentColumns = `a.id, a.defect_id, a.filename, a.original_name, a.mime_type, a.size, a.storage_path, a.uploaded_by, a.created_at`

type attachmentRow struct {
	domain.Attachment
	UploaderUsername string `db:"uploader_username"`
}

func (r attachmentRow) view() domain.AttachmentView {
	return domain.AttachmentView{
		Attachment: r.Attachment,
		Uploader:   domain.UserRef{ID: r.UploadedBy, Username: r.UploaderUsername},
	}
}

// AttachmentRepository handles attachment metadata.
type AttachmentRepository struct {
	db *DB
}

// NewAttachmentRepository creates a new AttachmentRepository.
func NewAttachmentRepository(db *DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts attachment metadata.
func (r *AttachmentRepository) Create(ctx context.Context, a domain.Attachment) (*domain.Attachment, error) {
	var result domain.Attachment
	err := r.db.get(ctx, &result,
		`INSERT INTO attachments (defect_id, filename, original_name, mime_type, size, storage_path, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, defect_id, filename, original_name, mime_type, size, storage_path, uploaded_by, created_at`,
		a.DefectID, a.Filename, a.OriginalName, a.MimeType, a.Size, a.StoragePath, a.UploadedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}
	return &result, nil
}

// FindView retrieves an attachment with its uploader.
func (r *AttachmentRepository) FindView(ctx context.Context, id int64) (*domain.AttachmentView, error) {
	var row attachmentRow
	err := r.db.get(ctx, &row,
		`SELECT `+attachmentColumns+`, u.username AS uploader_username
		 FROM attachments a JOIN users u ON u.id = a.uploaded_by
		 WHERE a.id = $1`, id)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find attachment %d: %w", id, err)
	}
	v := row.view()
	return &v, nil
}

// ListByDefect returns the attachments of a defect, newest first.
func (r *AttachmentRepository) ListByDefect(ctx context.Context, defectID int64) ([]domain.AttachmentView, error) {
	var rows []attachmentRow
	err := r.db.selectAll(ctx, &rows,
		`SELECT `+attachmentColumns+`, u.username AS uploader_username
		 FROM attachments a JOIN users u ON u.id = a.uploaded_by
		 WHERE a.defect_id = $1
		 ORDER BY a.created_at DESC, a.id DESC`, defectID)
	if err != nil {
		return nil, fmt.Errorf("list attachments of defect %d: %w", defectID, err)
	}

	views := make([]domain.AttachmentView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

// Delete removes attachment metadata.
func (r *AttachmentRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment %d: %w", id, err)
	}
	return affected(res)
}

// StoragePathsByDefect lists the stored object paths of a defect's attachments.
func (r *AttachmentRepository) StoragePathsByDefect(ctx context.Context, defectID int64) ([]string, error) {
	paths := []string{}
	if err := r.db.selectAll(ctx, &paths,
		`SELECT storage_path FROM attachments WHERE defect_id = $1`, defectID); err != nil {
		return nil, fmt.Errorf("list attachment paths of defect %d: %w", defectID, err)
	}
	return paths, nil
}

// StoragePathsByProject lists the stored object paths of every attachment in a project.
func (r *AttachmentRepository) StoragePathsByProject(ctx context.Context, projectID int64) ([]string, error) {
	paths := []string{}
	if err := r.db.selectAll(ctx, &paths,
		`SELECT a.storage_path FROM attachments a
		 JOIN defects d ON d.id = a.defect_id
		 WHERE d.project_id = $1`, projectID); err != nil {
		return nil, fmt.Errorf("list attachment paths of project %d: %w", projectID, err)
	}
	return paths, nil
}
