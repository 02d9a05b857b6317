// Package file is the upload domain: presigned upload URLs for lesson
// assets, the lesson manifest, and the completeness check that decides
// when every expected file has landed in storage.
package file

import (
	"context"
	"fmt"
)

// UploadURL is a presigned PUT target plus the headers the client must
// send with it.
type UploadURL struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// UploadedFile describes one expected asset listed in the manifest.
type UploadedFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	ETag        string `json:"etag,omitempty"`
}

// ManifestMeta is the sidecar recorded by the client at upload time:
// the owning user and the key prefix the assets live under.
type ManifestMeta struct {
	UserID   string `json:"userId"`
	FilesKey string `json:"filesKey"`
}

// Manifest is the metadata.json uploaded alongside a lesson's assets.
// It is produced once by the client and read-only from the backend's
// perspective.
type Manifest struct {
	LessonID string         `json:"lessonId"`
	UserID   string         `json:"userId"`
	Files    []UploadedFile `json:"files"`
	Metadata ManifestMeta   `json:"metadata"`
}

// ObjectStore is the storage port the upload domain consumes. A missing
// object is reported as (false, nil) by ObjectExists; only infrastructure
// failures surface as errors.
type ObjectStore interface {
	// PresignPut returns a presigned PUT URL for the key with the given
	// content type and optional object metadata.
	PresignPut(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (UploadURL, error)

	// ObjectExists probes whether an object is present.
	ObjectExists(ctx context.Context, bucket, key string) (bool, error)

	// GetObject returns the object body and its user metadata.
	GetObject(ctx context.Context, bucket, key string) ([]byte, map[string]string, error)
}

// ErrorCode classifies upload-domain failures.
type ErrorCode string

const (
	CodeInvalidLessonID   ErrorCode = "INVALID_LESSON_ID"
	CodeInvalidUserID     ErrorCode = "INVALID_USER_ID"
	CodePresignFailed     ErrorCode = "PRESIGN_FAILED"
	CodeGetMetadataFailed ErrorCode = "GET_METADATA_FAILED"
	CodeCheckFilesFailed  ErrorCode = "CHECK_FILES_FAILED"
)

// ValidationDetails records what a rejected identifier should have
// looked like and what was actually received.
type ValidationDetails struct {
	Expected string `json:"expected"`
	Received string `json:"received"`
}

// Error is a typed upload-domain failure. Details holds a per-code
// payload (ValidationDetails for identifier rejections, the underlying
// cause text otherwise).
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
