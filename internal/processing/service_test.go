package processing

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeStore is an in-memory StepStatusStore. Every mutating call is
// counted so tests can assert which writes actually happened.
type fakeStore struct {
	mu       sync.Mutex
	statuses map[string]Status
	errors   map[string]string

	getCalls        int
	inProgressCalls int
	completedCalls  int
	failedCalls     int
	acquireCalls    int

	getErr     error
	writeErr   error
	acquireErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses: make(map[string]Status),
		errors:   make(map[string]string),
	}
}

func key(userID, lessonID, step string) string {
	return userID + "/" + lessonID + "/" + step
}

func (f *fakeStore) GetStatus(_ context.Context, userID, lessonID, step string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return StatusUnknown, f.getErr
	}
	return f.statuses[key(userID, lessonID, step)], nil
}

func (f *fakeStore) MarkInProgress(_ context.Context, userID, lessonID, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inProgressCalls++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.statuses[key(userID, lessonID, step)] = StatusInProgress
	return nil
}

func (f *fakeStore) MarkCompleted(_ context.Context, userID, lessonID, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completedCalls++
	if f.writeErr != nil {
		return f.writeErr
	}
	f.statuses[key(userID, lessonID, step)] = StatusCompleted
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, userID, lessonID, step, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls++
	if f.writeErr != nil {
		return f.writeErr
	}
	k := key(userID, lessonID, step)
	f.statuses[k] = StatusFailed
	f.errors[k] = errMsg
	return nil
}

func (f *fakeStore) TryAcquire(_ context.Context, userID, lessonID, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquireCalls++
	if f.acquireErr != nil {
		return f.acquireErr
	}
	k := key(userID, lessonID, step)
	switch f.statuses[k] {
	case StatusInProgress, StatusCompleted:
		return &ConflictError{Step: step, Current: f.statuses[k]}
	}
	f.statuses[k] = StatusInProgress
	return nil
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inProgressCalls + f.completedCalls + f.failedCalls + f.acquireCalls
}

const (
	testUserID   = "u1"
	testLessonID = "l1"
	testStep     = "upload-complete"
)

func TestCreateLessonProcessing_NewRecord(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	result := svc.CreateLessonProcessing(context.Background(), CreateRequest{
		UserID: testUserID, LessonID: testLessonID, Step: testStep,
	})

	if !result.Success {
		t.Fatalf("expected success, got error: %+v", result.Error)
	}
	if result.Data == nil {
		t.Fatal("expected data in successful result")
	}
	if result.Data.Status != StatusInProgress {
		t.Errorf("expected status %s, got %s", StatusInProgress, result.Data.Status)
	}
	if result.Data.LessonID != testLessonID || result.Data.UserID != testUserID || result.Data.Step != testStep {
		t.Errorf("result identifiers do not match request: %+v", result.Data)
	}
	if result.Data.Timestamp == "" {
		t.Error("expected a timestamp in the result")
	}
	if store.statuses[key(testUserID, testLessonID, testStep)] != StatusInProgress {
		t.Error("expected IN_PROGRESS record in store")
	}
}

func TestCreateLessonProcessing_MissingFields(t *testing.T) {
	cases := []struct {
		name    string
		req     CreateRequest
		missing []string
	}{
		{"all empty", CreateRequest{}, []string{"userId", "lessonId", "step"}},
		{"no user", CreateRequest{LessonID: testLessonID, Step: testStep}, []string{"userId"}},
		{"no lesson", CreateRequest{UserID: testUserID, Step: testStep}, []string{"lessonId"}},
		{"no step", CreateRequest{UserID: testUserID, LessonID: testLessonID}, []string{"step"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc := NewService(store)

			result := svc.CreateLessonProcessing(context.Background(), tc.req)

			if result.Success {
				t.Fatal("expected failure for missing fields")
			}
			if result.Error.Code != CodeInvalidInput {
				t.Errorf("expected code %s, got %s", CodeInvalidInput, result.Error.Code)
			}
			details, ok := result.Error.Details.(MissingFieldDetails)
			if !ok {
				t.Fatalf("expected MissingFieldDetails, got %T", result.Error.Details)
			}
			if len(details.Missing) != len(tc.missing) {
				t.Fatalf("expected missing %v, got %v", tc.missing, details.Missing)
			}
			for i, want := range tc.missing {
				if details.Missing[i] != want {
					t.Errorf("missing[%d]: expected %s, got %s", i, want, details.Missing[i])
				}
			}
			if store.getCalls != 0 || store.writes() != 0 {
				t.Error("store must not be touched when validation fails")
			}
		})
	}
}

func TestCreateLessonProcessing_AlreadyExists(t *testing.T) {
	for _, existing := range []Status{StatusInProgress, StatusCompleted, StatusFailed} {
		t.Run(string(existing), func(t *testing.T) {
			store := newFakeStore()
			store.statuses[key(testUserID, testLessonID, testStep)] = existing
			svc := NewService(store)

			result := svc.CreateLessonProcessing(context.Background(), CreateRequest{
				UserID: testUserID, LessonID: testLessonID, Step: testStep,
			})

			if result.Success {
				t.Fatal("expected ALREADY_EXISTS failure")
			}
			if result.Error.Code != CodeAlreadyExists {
				t.Errorf("expected code %s, got %s", CodeAlreadyExists, result.Error.Code)
			}
			if store.writes() != 0 {
				t.Error("existing record must not be overwritten")
			}
			if store.statuses[key(testUserID, testLessonID, testStep)] != existing {
				t.Errorf("status changed from %s", existing)
			}
		})
	}
}

func TestCreateLessonProcessing_StoreError(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("dynamo down")
	svc := NewService(store)

	result := svc.CreateLessonProcessing(context.Background(), CreateRequest{
		UserID: testUserID, LessonID: testLessonID, Step: testStep,
	})

	if result.Success {
		t.Fatal("expected failure when the store read fails")
	}
	if result.Error.Code != CodeInternalError {
		t.Errorf("expected code %s, got %s", CodeInternalError, result.Error.Code)
	}
	details, ok := result.Error.Details.(CauseDetails)
	if !ok {
		t.Fatalf("expected CauseDetails, got %T", result.Error.Details)
	}
	if details.Cause != "dynamo down" {
		t.Errorf("expected underlying cause, got %q", details.Cause)
	}
}

func TestGetProcessingStatus_Found(t *testing.T) {
	store := newFakeStore()
	store.statuses[key(testUserID, testLessonID, testStep)] = StatusCompleted
	svc := NewService(store)

	result := svc.GetProcessingStatus(context.Background(), testUserID, testLessonID, testStep)

	if !result.Success {
		t.Fatalf("expected success, got error: %+v", result.Error)
	}
	if result.Data.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, result.Data.Status)
	}
}

func TestGetProcessingStatus_NotFound(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	result := svc.GetProcessingStatus(context.Background(), testUserID, testLessonID, testStep)

	if result.Success {
		t.Fatal("expected NOT_FOUND failure")
	}
	if result.Error.Code != CodeNotFound {
		t.Errorf("expected code %s, got %s", CodeNotFound, result.Error.Code)
	}
}

func TestMarkStepCompleted(t *testing.T) {
	store := newFakeStore()
	store.statuses[key(testUserID, testLessonID, testStep)] = StatusInProgress
	svc := NewService(store)

	result := svc.MarkStepCompleted(context.Background(), testUserID, testLessonID, testStep)

	if !result.Success {
		t.Fatalf("expected success, got error: %+v", result.Error)
	}
	if result.Data.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, result.Data.Status)
	}
	if store.statuses[key(testUserID, testLessonID, testStep)] != StatusCompleted {
		t.Error("store not updated to COMPLETED")
	}
}

func TestMarkStepFailed(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	result := svc.MarkStepFailed(context.Background(), testUserID, testLessonID, testStep, "extraction timed out")

	if !result.Success {
		t.Fatalf("expected success, got error: %+v", result.Error)
	}
	if result.Data.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, result.Data.Status)
	}
	if got := store.errors[key(testUserID, testLessonID, testStep)]; got != "extraction timed out" {
		t.Errorf("expected stored error message, got %q", got)
	}
}

func TestMarkStepFailed_EmptyError(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	result := svc.MarkStepFailed(context.Background(), testUserID, testLessonID, testStep, "")

	if result.Success {
		t.Fatal("expected failure for empty error message")
	}
	if result.Error.Code != CodeInvalidInput {
		t.Errorf("expected code %s, got %s", CodeInvalidInput, result.Error.Code)
	}
	details, ok := result.Error.Details.(MissingFieldDetails)
	if !ok {
		t.Fatalf("expected MissingFieldDetails, got %T", result.Error.Details)
	}
	if len(details.Missing) != 1 || details.Missing[0] != "error" {
		t.Errorf("expected missing [error], got %v", details.Missing)
	}
	if store.writes() != 0 {
		t.Error("store must not be written on validation failure")
	}
}

func TestMarkStepFailed_WriteError(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("throttled")
	svc := NewService(store)

	result := svc.MarkStepFailed(context.Background(), testUserID, testLessonID, testStep, "boom")

	if result.Success {
		t.Fatal("expected failure when the store write fails")
	}
	if result.Error.Code != CodeInternalError {
		t.Errorf("expected code %s, got %s", CodeInternalError, result.Error.Code)
	}
}
