package file

import (
	"strings"

	"github.com/google/uuid"
)

const lessonIDPrefix = "lesson#"

const (
	expectedLessonID = "lesson#uuid (e.g., lesson#123e4567-e89b-12d3-a456-426614174000)"
	expectedUserID   = "uuid (e.g., 123e4567-e89b-12d3-a456-426614174000)"
)

// ValidateUserID checks that userID is a UUID. Returns nil when valid.
func ValidateUserID(userID string) *Error {
	if _, err := uuid.Parse(userID); err != nil {
		return &Error{
			Code:    CodeInvalidUserID,
			Message: "Invalid user ID format",
			Details: ValidationDetails{Expected: expectedUserID, Received: userID},
		}
	}
	return nil
}

// ValidateLessonID checks that lessonID is "lesson#" followed by a UUID.
// Returns nil when valid.
func ValidateLessonID(lessonID string) *Error {
	rest, ok := strings.CutPrefix(lessonID, lessonIDPrefix)
	if ok {
		if _, err := uuid.Parse(rest); err == nil {
			return nil
		}
	}
	return &Error{
		Code:    CodeInvalidLessonID,
		Message: "Invalid lesson ID format",
		Details: ValidationDetails{Expected: expectedLessonID, Received: lessonID},
	}
}

// validateIDs runs both identifier checks, lesson ID first (matching the
// error precedence callers rely on).
func validateIDs(userID, lessonID string) *Error {
	if err := ValidateLessonID(lessonID); err != nil {
		return err
	}
	return ValidateUserID(userID)
}
