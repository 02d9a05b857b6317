package file

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Service implements the upload domain over an ObjectStore port.
type Service struct {
	objects ObjectStore
}

// NewService creates a Service backed by the given object store.
func NewService(objects ObjectStore) *Service {
	return &Service{objects: objects}
}

func userKey(userID string) string {
	return "user#" + userID
}

// MetadataKey returns the storage key of a lesson's manifest.
func MetadataKey(userID, lessonID string) string {
	return fmt.Sprintf("uploads/%s/%s/metadata.json", userKey(userID), lessonID)
}

// IsMetadataKey reports whether key points at a lesson manifest.
func IsMetadataKey(key string) bool {
	return strings.HasPrefix(key, "uploads/") && strings.HasSuffix(key, "/metadata.json")
}

// MetadataUploadURL presigns a PUT for the lesson's metadata.json.
func (s *Service) MetadataUploadURL(ctx context.Context, bucket, userID, lessonID string) (UploadURL, error) {
	if err := validateIDs(userID, lessonID); err != nil {
		return UploadURL{}, err
	}

	url, err := s.objects.PresignPut(ctx, bucket, MetadataKey(userID, lessonID), "application/json", nil)
	if err != nil {
		return UploadURL{}, &Error{
			Code:    CodePresignFailed,
			Message: "Failed to generate upload metadata URL",
			Details: err.Error(),
		}
	}
	return url, nil
}

// UserFileUploadURL presigns a PUT for a single lesson asset. The key
// embeds the MIME major type and a millisecond timestamp so repeated
// uploads of the same content type never collide:
//
//	uploads/user#{userId}/{lessonId}/original/{type}/{millis}.{ext}
func (s *Service) UserFileUploadURL(ctx context.Context, bucket, userID, lessonID, contentType string) (UploadURL, error) {
	if err := validateIDs(userID, lessonID); err != nil {
		return UploadURL{}, err
	}

	major, ext, ok := strings.Cut(contentType, "/")
	if !ok {
		return UploadURL{}, &Error{
			Code:    CodePresignFailed,
			Message: "Invalid content type",
			Details: ValidationDetails{Expected: "type/subtype (e.g., image/png)", Received: contentType},
		}
	}

	key := fmt.Sprintf("uploads/%s/%s/original/%s/%d.%s",
		userKey(userID), lessonID, major, time.Now().UnixMilli(), ext)
	url, err := s.objects.PresignPut(ctx, bucket, key, contentType, map[string]string{"userId": userKey(userID)})
	if err != nil {
		return UploadURL{}, &Error{
			Code:    CodePresignFailed,
			Message: "Failed to generate user upload URL",
			Details: err.Error(),
		}
	}
	return url, nil
}

// GetManifest reads and decodes a lesson manifest from storage.
func (s *Service) GetManifest(ctx context.Context, bucket, key string) (Manifest, error) {
	body, _, err := s.objects.GetObject(ctx, bucket, key)
	if err != nil {
		return Manifest{}, &Error{
			Code:    CodeGetMetadataFailed,
			Message: "Failed to get metadata",
			Details: err.Error(),
		}
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return Manifest{}, &Error{
			Code:    CodeGetMetadataFailed,
			Message: "Failed to parse metadata",
			Details: err.Error(),
		}
	}
	return manifest, nil
}

// AreAllFilesUploaded probes storage for every file the manifest lists
// under its filesKey prefix and ANDs the results. All probes run
// concurrently and all are issued regardless of early failures: a
// storage-level error from one probe must not mask a "file missing"
// result from another, so any probe error fails the whole check with
// CHECK_FILES_FAILED instead.
func (s *Service) AreAllFilesUploaded(ctx context.Context, bucket string, manifest Manifest) (bool, error) {
	exists := make([]bool, len(manifest.Files))

	var g errgroup.Group
	for i, f := range manifest.Files {
		key := manifest.Metadata.FilesKey + "/" + f.Name
		g.Go(func() error {
			ok, err := s.objects.ObjectExists(ctx, bucket, key)
			if err != nil {
				return fmt.Errorf("probe %s: %w", key, err)
			}
			exists[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, &Error{
			Code:    CodeCheckFilesFailed,
			Message: "Failed to check if all files are uploaded",
			Details: err.Error(),
		}
	}

	missing := 0
	for _, ok := range exists {
		if !ok {
			missing++
		}
	}
	if missing > 0 {
		log.Debug().
			Str("lessonId", manifest.LessonID).
			Int("expected", len(manifest.Files)).
			Int("missing", missing).
			Msg("Lesson upload incomplete")
		return false, nil
	}
	return true, nil
}
