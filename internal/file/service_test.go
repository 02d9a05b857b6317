package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

const (
	validUserID   = "123e4567-e89b-12d3-a456-426614174000"
	validLessonID = "lesson#123e4567-e89b-12d3-a456-426614174000"
	testBucket    = "lesson-uploads"
)

// fakeObjectStore records presign and probe calls and serves canned
// objects and existence answers.
type fakeObjectStore struct {
	mu sync.Mutex

	presignCalls []presignCall
	presignErr   error

	objects map[string][]byte
	getErr  error

	existing   map[string]bool
	probeCalls []string
	probeErr   map[string]error
}

type presignCall struct {
	bucket      string
	key         string
	contentType string
	metadata    map[string]string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:  make(map[string][]byte),
		existing: make(map[string]bool),
		probeErr: make(map[string]error),
	}
}

func (f *fakeObjectStore) PresignPut(_ context.Context, bucket, key, contentType string, metadata map[string]string) (UploadURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presignCalls = append(f.presignCalls, presignCall{bucket, key, contentType, metadata})
	if f.presignErr != nil {
		return UploadURL{}, f.presignErr
	}
	return UploadURL{
		URL:     fmt.Sprintf("https://%s.example.com/%s?signed", bucket, key),
		Headers: map[string]string{"content-type": contentType},
	}, nil
}

func (f *fakeObjectStore) ObjectExists(_ context.Context, _ string, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls = append(f.probeCalls, key)
	if err := f.probeErr[key]; err != nil {
		return false, err
	}
	return f.existing[key], nil
}

func (f *fakeObjectStore) GetObject(_ context.Context, _ string, key string) ([]byte, map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, nil, f.getErr
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, nil, errors.New("no such key")
	}
	return body, nil, nil
}

func (f *fakeObjectStore) probes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probeCalls...)
}

func testManifest(names ...string) Manifest {
	files := make([]UploadedFile, len(names))
	for i, n := range names {
		files[i] = UploadedFile{Name: n, Size: 10, ContentType: "text/plain"}
	}
	return Manifest{
		LessonID: validLessonID,
		UserID:   validUserID,
		Files:    files,
		Metadata: ManifestMeta{
			UserID:   "user#" + validUserID,
			FilesKey: "uploads/user#" + validUserID + "/" + validLessonID + "/original",
		},
	}
}

func TestMetadataUploadURL(t *testing.T) {
	store := newFakeObjectStore()
	svc := NewService(store)

	url, err := svc.MetadataUploadURL(context.Background(), testBucket, validUserID, validLessonID)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url.URL == "" {
		t.Error("expected a presigned URL")
	}
	if len(store.presignCalls) != 1 {
		t.Fatalf("expected 1 presign call, got %d", len(store.presignCalls))
	}
	call := store.presignCalls[0]
	wantKey := "uploads/user#" + validUserID + "/" + validLessonID + "/metadata.json"
	if call.key != wantKey {
		t.Errorf("expected key %s, got %s", wantKey, call.key)
	}
	if call.contentType != "application/json" {
		t.Errorf("expected application/json, got %s", call.contentType)
	}
}

func TestUserFileUploadURL_KeyShape(t *testing.T) {
	store := newFakeObjectStore()
	svc := NewService(store)

	_, err := svc.UserFileUploadURL(context.Background(), testBucket, validUserID, validLessonID, "image/png")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := store.presignCalls[0]
	wantPrefix := "uploads/user#" + validUserID + "/" + validLessonID + "/original/image/"
	if !strings.HasPrefix(call.key, wantPrefix) {
		t.Errorf("expected key prefix %s, got %s", wantPrefix, call.key)
	}
	if !strings.HasSuffix(call.key, ".png") {
		t.Errorf("expected .png suffix, got %s", call.key)
	}
	if call.metadata["userId"] != "user#"+validUserID {
		t.Errorf("expected userId metadata, got %v", call.metadata)
	}
}

func TestUserFileUploadURL_InvalidIDs(t *testing.T) {
	cases := []struct {
		name     string
		userID   string
		lessonID string
		wantCode ErrorCode
		received string
	}{
		{"bad lesson id", validUserID, "not-a-lesson", CodeInvalidLessonID, "not-a-lesson"},
		{"missing prefix", validUserID, "123e4567-e89b-12d3-a456-426614174000", CodeInvalidLessonID, "123e4567-e89b-12d3-a456-426614174000"},
		{"bad user id", "nope", validLessonID, CodeInvalidUserID, "nope"},
		// Lesson ID is checked first when both are invalid.
		{"both invalid", "nope", "also-nope", CodeInvalidLessonID, "also-nope"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeObjectStore()
			svc := NewService(store)

			_, err := svc.UserFileUploadURL(context.Background(), testBucket, tc.userID, tc.lessonID, "text/plain")

			var domainErr *Error
			if !errors.As(err, &domainErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if domainErr.Code != tc.wantCode {
				t.Errorf("expected code %s, got %s", tc.wantCode, domainErr.Code)
			}
			details, ok := domainErr.Details.(ValidationDetails)
			if !ok {
				t.Fatalf("expected ValidationDetails, got %T", domainErr.Details)
			}
			if details.Received != tc.received {
				t.Errorf("expected received %q, got %q", tc.received, details.Received)
			}
			if details.Expected == "" {
				t.Error("expected format hint must not be empty")
			}
			if len(store.presignCalls) != 0 {
				t.Error("presign must not be attempted for invalid IDs")
			}
		})
	}
}

func TestUserFileUploadURL_PresignFailure(t *testing.T) {
	store := newFakeObjectStore()
	store.presignErr = errors.New("signing broke")
	svc := NewService(store)

	_, err := svc.UserFileUploadURL(context.Background(), testBucket, validUserID, validLessonID, "text/plain")

	var domainErr *Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if domainErr.Code != CodePresignFailed {
		t.Errorf("expected code %s, got %s", CodePresignFailed, domainErr.Code)
	}
}

func TestIsMetadataKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"uploads/user#" + validUserID + "/" + validLessonID + "/metadata.json", true},
		{"uploads/user#" + validUserID + "/" + validLessonID + "/original/text/1.txt", false},
		{"other/metadata.json", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsMetadataKey(tc.key); got != tc.want {
			t.Errorf("IsMetadataKey(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestGetManifest(t *testing.T) {
	store := newFakeObjectStore()
	manifest := testManifest("a.txt", "b.png")
	body, _ := json.Marshal(manifest)
	key := MetadataKey(validUserID, validLessonID)
	store.objects[key] = body
	svc := NewService(store)

	got, err := svc.GetManifest(context.Background(), testBucket, key)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LessonID != validLessonID || len(got.Files) != 2 {
		t.Errorf("manifest not decoded: %+v", got)
	}
}

func TestGetManifest_Unparseable(t *testing.T) {
	store := newFakeObjectStore()
	store.objects["k"] = []byte("not json")
	svc := NewService(store)

	_, err := svc.GetManifest(context.Background(), testBucket, "k")

	var domainErr *Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if domainErr.Code != CodeGetMetadataFailed {
		t.Errorf("expected code %s, got %s", CodeGetMetadataFailed, domainErr.Code)
	}
}

func TestAreAllFilesUploaded_AllPresent(t *testing.T) {
	store := newFakeObjectStore()
	manifest := testManifest("a.txt", "b.png", "c.jpg")
	for _, f := range manifest.Files {
		store.existing[manifest.Metadata.FilesKey+"/"+f.Name] = true
	}
	svc := NewService(store)

	ok, err := svc.AreAllFilesUploaded(context.Background(), testBucket, manifest)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected complete upload")
	}
	if probes := store.probes(); len(probes) != 3 {
		t.Errorf("expected 3 probes, got %d: %v", len(probes), probes)
	}
}

func TestAreAllFilesUploaded_OneMissing(t *testing.T) {
	store := newFakeObjectStore()
	manifest := testManifest("a.txt", "b.png", "c.jpg")
	store.existing[manifest.Metadata.FilesKey+"/a.txt"] = true
	store.existing[manifest.Metadata.FilesKey+"/c.jpg"] = true
	svc := NewService(store)

	ok, err := svc.AreAllFilesUploaded(context.Background(), testBucket, manifest)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected incomplete upload")
	}
	// A missing file is a normal answer, not a short-circuit: every
	// expected file is still probed.
	if probes := store.probes(); len(probes) != 3 {
		t.Errorf("expected 3 probes, got %d: %v", len(probes), probes)
	}
}

func TestAreAllFilesUploaded_ProbeError(t *testing.T) {
	store := newFakeObjectStore()
	manifest := testManifest("a.txt", "b.png")
	store.existing[manifest.Metadata.FilesKey+"/a.txt"] = true
	store.probeErr[manifest.Metadata.FilesKey+"/b.png"] = errors.New("timeout")
	svc := NewService(store)

	ok, err := svc.AreAllFilesUploaded(context.Background(), testBucket, manifest)

	if ok {
		t.Error("a failed check must not report complete")
	}
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if domainErr.Code != CodeCheckFilesFailed {
		t.Errorf("expected code %s, got %s", CodeCheckFilesFailed, domainErr.Code)
	}
}

func TestAreAllFilesUploaded_NoFiles(t *testing.T) {
	store := newFakeObjectStore()
	svc := NewService(store)

	ok, err := svc.AreAllFilesUploaded(context.Background(), testBucket, testManifest())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("an empty manifest is vacuously complete")
	}
	if probes := store.probes(); len(probes) != 0 {
		t.Errorf("expected no probes, got %v", probes)
	}
}
