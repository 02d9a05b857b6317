// Package processing tracks the lifecycle of lesson-processing workflow
// steps. Each step of the downstream workflow (e.g. "upload-complete",
// "extract-text") has at most one status record per (user, lesson, step)
// triple, and that record is the sole source of truth for whether the step
// has run, is running, or failed.
//
// The package has three layers: the StepStatusStore port (persistence),
// the Service (validated status transitions with a uniform result shape),
// and the step Wrapper (at-most-once execution guard for step handlers).
package processing

// Status is the lifecycle state of a single processing step.
type Status string

const (
	// StatusUnknown means no record exists for the step. It is never
	// persisted; stores return it to signal absence.
	StatusUnknown Status = ""

	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// StepRecord is the persisted state of one processing step. Records are
// overwritten in place on every transition; no history is retained.
type StepRecord struct {
	UserID      string `json:"userId" dynamodbav:"-"`
	LessonID    string `json:"lessonId" dynamodbav:"-"`
	Step        string `json:"step" dynamodbav:"-"`
	Status      Status `json:"status" dynamodbav:"status"`
	LastUpdated string `json:"lastUpdated" dynamodbav:"lastUpdated"`
	Error       string `json:"error,omitempty" dynamodbav:"error,omitempty"`
}
