package domain

import "time"

// MaxAttachmentSize is the largest accepted upload, in bytes.
const MaxAttachmentSize int64 = 10 << 20

// AllowedAttachmentTypes lists the MIME types accepted for upload.
var AllowedAttachmentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
	"text/csv",
}

// Attachment is a file uploaded to a defect.
type Attachment struct {
	ID           int64     `json:"id" db:"id"`
	DefectID     int64     `json:"defect_id" db:"defect_id"`
	Filename     string    `json:"filename" db:"filename"`
	OriginalName string    `json:"original_name" db:"original_name"`
	MimeType     string    `json:"mime_type" db:"mime_type"`
	Size         int64     `json:"size" db:"size"`
	StoragePath  string    `json:"-" db:"storage_path"`
	UploadedBy   int64     `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AttachmentView is an attachment with its uploader resolved.
type AttachmentView struct {
	Attachment
	Uploader UserRef `json:"uploader"`
}
