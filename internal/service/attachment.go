package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/logging"
	"github.com/sumire/defects/internal/storage"
)

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

// AttachmentStore defines attachment metadata persistence.
type AttachmentStore interface {
	Create(ctx context.Context, a domain.Attachment) (*domain.Attachment, error)
	FindView(ctx context.Context, id int64) (*domain.AttachmentView, error)
	ListByDefect(ctx context.Context, defectID int64) ([]domain.AttachmentView, error)
	Delete(ctx context.Context, id int64) error
}

type defectFinder interface {
	FindByID(ctx context.Context, id int64) (*domain.Defect, error)
}

// AttachmentService stores files uploaded to defects.
type AttachmentService struct {
	attachments AttachmentStore
	defects     defectFinder
	files       storage.FileStore
	maxBytes    int64
}

// NewAttachmentService creates a new AttachmentService. A non-positive
// maxBytes falls back to domain.MaxAttachmentSize.
func NewAttachmentService(attachments AttachmentStore, defects defectFinder, files storage.FileStore, maxBytes int64) *AttachmentService {
	if maxBytes <= 0 {
		maxBytes = domain.MaxAttachmentSize
	}
	return &AttachmentService{attachments: attachments, defects: defects, files: files, maxBytes: maxBytes}
}

// Upload validates and stores r as an attachment of a defect. Pass -1 as size when unknown.
func (s *AttachmentService) Upload(ctx context.Context, defectID int64, originalName string, r io.Reader, size, actorID int64) (*domain.AttachmentView, error) {
	if _, err := s.defects.FindByID(ctx, defectID); err != nil {
		return nil, err
	}
	if size > s.maxBytes {
		return nil, s.tooLarge()
	}
	name := filepath.Base(strings.TrimSpace(originalName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, domain.NewValidationError("file", "file name is required")
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, domain.NewValidationError("file", "file is empty")
	}

	mime := mimetype.Detect(head)
	if !allowedType(mime) {
		return nil, domain.NewValidationError("file", "file type %s is not allowed", mime.String())
	}

	filename := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	storagePath := fmt.Sprintf("defects/%d/%s", defectID, filename)
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), r), s.maxBytes+1)

	written, err := s.files.Save(ctx, storagePath, body, size)
	if err != nil {
		return nil, fmt.Errorf("save attachment: %w", err)
	}
	if written > s.maxBytes {
		removeFiles(ctx, s.files, []string{storagePath})
		return nil, s.tooLarge()
	}

	attachment, err := s.attachments.Create(ctx, domain.Attachment{
		DefectID:     defectID,
		Filename:     filename,
		OriginalName: name,
		MimeType:     baseType(mime.String()),
		Size:         written,
		StoragePath:  storagePath,
		UploadedBy:   actorID,
	})
	if err != nil {
		removeFiles(ctx, s.files, []string{storagePath})
		return nil, err
	}

	logging.FromContext(ctx).Info("attachment uploaded",
		"attachment_id", attachment.ID,
		"defect_id", defectID,
		"size", humanize.IBytes(uint64(written)),
		"actor_id", actorID,
	)
	return s.attachments.FindView(ctx, attachment.ID)
}

// List returns the attachments of a defect.
func (s *AttachmentService) List(ctx context.Context, defectID int64) ([]domain.AttachmentView, error) {
	if _, err := s.defects.FindByID(ctx, defectID); err != nil {
		return nil, err
	}
	views, err := s.attachments.ListByDefect(ctx, defectID)
	if err != nil {
		return nil, err
	}
	return nonNil(views), nil
}

// Open returns attachment metadata and its content. The caller closes the reader.
func (s *AttachmentService) Open(ctx context.Context, id int64) (*domain.AttachmentView, io.ReadCloser, error) {
	view, err := s.attachments.FindView(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Open(ctx, view.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: attachment %d content missing", domain.ErrNotFound, id)
		}
		return nil, nil, err
	}
	return view, rc, nil
}

// Delete removes an attachment. Only managers and the uploader may do so.
func (s *AttachmentService) Delete(ctx context.Context, id int64, actor domain.Identity) error {
	view, err := s.attachments.FindView(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleManager && actor.ID != view.UploadedBy {
		return domain.ErrForbidden
	}

	if err := s.files.Delete(ctx, view.StoragePath); err != nil {
		return fmt.Errorf("delete attachment content: %w", err)
	}
	if err := s.attachments.Delete(ctx, id); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("attachment deleted", "attachment_id", id, "actor_id", actor.ID)
	return nil
}

func (s *AttachmentService) tooLarge() error {
	return domain.NewValidationError("file", "file exceeds the %s limit", humanize.IBytes(uint64(s.maxBytes)))
}

// allowedType matches the detected type itself, not its parents: text/html
// descends from text/plain.
func allowedType(mime *mimetype.MIME) bool {
	return mimetype.EqualsAny(mime.String(), domain.AllowedAttachmentTypes...)
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return strings.TrimSpace(mime[:i])
	}
	return mime
}
