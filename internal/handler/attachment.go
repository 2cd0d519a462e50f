package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/defects/internal/domain"
)

// AttachmentUsecase is the attachment surface consumed by AttachmentHandler.
type AttachmentUsecase interface {
	Upload(ctx context.Context, defectID int64, originalName string, r io.Reader, size, actorID int64) (*domain.AttachmentView, error)
	List(ctx context.Context, defectID int64) ([]domain.AttachmentView, error)
	Open(ctx context.Context, id int64) (*domain.AttachmentView, io.ReadCloser, error)
	Delete(ctx context.Context, id int64, actor domain.Identity) error
}

// AttachmentHandler handles file upload and download endpoints.
type AttachmentHandler struct {
	attachments AttachmentUsecase
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(attachments AttachmentUsecase) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

// Upload stores the multipart "file" field as an attachment of the defect.
func (h *AttachmentHandler) Upload(c echo.Context) error {
	identity, _ := CurrentUser(c)
	defectID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			return he
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			return domain.NewValidationError("file", "a multipart file field named file is required")
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	attachment, err := h.attachments.Upload(c.Request().Context(), defectID, fh.Filename, src, fh.Size, identity.ID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, attachment)
}

// List returns the attachments of a defect.
func (h *AttachmentHandler) List(c echo.Context) error {
	defectID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	attachments, err := h.attachments.List(c.Request().Context(), defectID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, attachments)
}

// Download streams the stored file under its original name.
func (h *AttachmentHandler) Download(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	view, rc, err := h.attachments.Open(c.Request().Context(), id)
	if err != nil {
		return err
	}
	defer rc.Close()

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": view.OriginalName}))
	header.Set(echo.HeaderContentLength, strconv.FormatInt(view.Size, 10))
	header.Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, view.MimeType, rc)
}

// Delete removes an attachment owned by the caller, or any attachment for managers.
func (h *AttachmentHandler) Delete(c echo.Context) error {
	identity, _ := CurrentUser(c)
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.attachments.Delete(c.Request().Context(), id, identity); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
