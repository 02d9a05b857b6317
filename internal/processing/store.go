package processing

import (
	"context"
	"errors"
	"fmt"
)

// ErrStepConflict is returned by TryAcquire when the step cannot be moved
// to IN_PROGRESS because another record already holds a blocking status.
// Use errors.Is to detect it; the wrapped message names the blocking status.
var ErrStepConflict = errors.New("step status conflict")

// ConflictError reports which status blocked a TryAcquire transition.
type ConflictError struct {
	Step    string
	Current Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("step %q blocked by status %s", e.Step, e.Current)
}

// Is makes errors.Is(err, ErrStepConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrStepConflict
}

// StepStatusStore is the persistence port for step status records, keyed
// by (userID, lessonID, step). Implementations must be safe for concurrent
// use and must make every operation a retry-safe upsert: repeating any call
// after a partial failure leaves the store in the same logical end state.
type StepStatusStore interface {
	// GetStatus returns the current status, or StatusUnknown when no
	// record exists. Absence is not an error.
	GetStatus(ctx context.Context, userID, lessonID, step string) (Status, error)

	// MarkInProgress unconditionally upserts an IN_PROGRESS record with a
	// fresh timestamp (last-writer-wins).
	MarkInProgress(ctx context.Context, userID, lessonID, step string) error

	// MarkCompleted updates the record to COMPLETED with a fresh timestamp.
	MarkCompleted(ctx context.Context, userID, lessonID, step string) error

	// MarkFailed updates the record to FAILED, storing the error message.
	MarkFailed(ctx context.Context, userID, lessonID, step, errMsg string) error

	// TryAcquire transitions the step to IN_PROGRESS only when no record
	// exists or the previous run FAILED. A conditional write guarantees
	// exactly one of several racing callers wins; the rest receive an
	// error matching ErrStepConflict. COMPLETED is never overwritten.
	TryAcquire(ctx context.Context, userID, lessonID, step string) error
}
