package processing

// ErrorCode classifies every failure the Service can report.
type ErrorCode string

const (
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StepView is the caller-facing snapshot of a step returned on success.
// The timestamp is generated at return time and may differ from the
// stored lastUpdated value.
type StepView struct {
	LessonID  string `json:"lessonId"`
	UserID    string `json:"userId"`
	Step      string `json:"step"`
	Status    Status `json:"status"`
	Timestamp string `json:"timestamp"`
}

// MissingFieldDetails names the required identifiers that were empty.
type MissingFieldDetails struct {
	Missing []string `json:"missing"`
}

// CauseDetails carries the underlying failure text for INTERNAL_ERROR.
type CauseDetails struct {
	Cause string `json:"cause"`
}

// ServiceError is a typed, serializable failure. Details holds a
// per-code payload (MissingFieldDetails, CauseDetails) rather than an
// arbitrary value.
type ServiceError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Result is the uniform outcome shape of every Service operation.
// Exactly one of Data and Error is set.
type Result struct {
	Success bool          `json:"success"`
	Data    *StepView     `json:"data,omitempty"`
	Error   *ServiceError `json:"error,omitempty"`
}

func failure(code ErrorCode, message string, details any) Result {
	return Result{
		Success: false,
		Error:   &ServiceError{Code: code, Message: message, Details: details},
	}
}
