package processing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// CreateRequest identifies the step record to create.
type CreateRequest struct {
	UserID   string `json:"userId"`
	LessonID string `json:"lessonId"`
	Step     string `json:"step"`
}

// Service exposes validated status transitions over a StepStatusStore.
// No operation lets a raw storage error escape: every reachable failure
// is reclassified into a Result with a typed error code.
type Service struct {
	store StepStatusStore
}

// NewService creates a Service backed by the given store.
func NewService(store StepStatusStore) *Service {
	return &Service{store: store}
}

// missingFields returns the names of required identifiers that are empty.
func missingFields(userID, lessonID, step string) []string {
	var missing []string
	if userID == "" {
		missing = append(missing, "userId")
	}
	if lessonID == "" {
		missing = append(missing, "lessonId")
	}
	if step == "" {
		missing = append(missing, "step")
	}
	return missing
}

func invalidInput(missing []string) Result {
	return failure(CodeInvalidInput,
		"userId, lessonId, and step are required",
		MissingFieldDetails{Missing: missing})
}

func (s *Service) view(userID, lessonID, step string, status Status) Result {
	return Result{
		Success: true,
		Data: &StepView{
			LessonID:  lessonID,
			UserID:    userID,
			Step:      step,
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// CreateLessonProcessing creates a new IN_PROGRESS record for the step.
// It is strictly "create new": any existing record for the triple,
// whatever its status, yields ALREADY_EXISTS.
func (s *Service) CreateLessonProcessing(ctx context.Context, req CreateRequest) Result {
	if missing := missingFields(req.UserID, req.LessonID, req.Step); len(missing) > 0 {
		return invalidInput(missing)
	}

	existing, err := s.store.GetStatus(ctx, req.UserID, req.LessonID, req.Step)
	if err != nil {
		log.Error().Err(err).
			Str("lessonId", req.LessonID).
			Str("step", req.Step).
			Msg("Failed to read step status before create")
		return failure(CodeInternalError,
			"Failed to create lesson processing entry",
			CauseDetails{Cause: err.Error()})
	}
	if existing != StatusUnknown {
		return failure(CodeAlreadyExists,
			fmt.Sprintf("Processing step %q already exists for lesson %s", req.Step, req.LessonID),
			nil)
	}

	if err := s.store.MarkInProgress(ctx, req.UserID, req.LessonID, req.Step); err != nil {
		log.Error().Err(err).
			Str("lessonId", req.LessonID).
			Str("step", req.Step).
			Msg("Failed to create step record")
		return failure(CodeInternalError,
			"Failed to create lesson processing entry",
			CauseDetails{Cause: err.Error()})
	}

	log.Info().
		Str("lessonId", req.LessonID).
		Str("userId", req.UserID).
		Str("step", req.Step).
		Msg("Lesson processing step created")
	return s.view(req.UserID, req.LessonID, req.Step, StatusInProgress)
}

// GetProcessingStatus returns the current status of a step, or NOT_FOUND
// when no record exists, distinguishing "not yet run" from "run and failed".
func (s *Service) GetProcessingStatus(ctx context.Context, userID, lessonID, step string) Result {
	if missing := missingFields(userID, lessonID, step); len(missing) > 0 {
		return invalidInput(missing)
	}

	status, err := s.store.GetStatus(ctx, userID, lessonID, step)
	if err != nil {
		log.Error().Err(err).
			Str("lessonId", lessonID).
			Str("step", step).
			Msg("Failed to read step status")
		return failure(CodeInternalError,
			"Failed to get processing status",
			CauseDetails{Cause: err.Error()})
	}
	if status == StatusUnknown {
		return failure(CodeNotFound,
			fmt.Sprintf("Processing step %q not found for lesson %s", step, lessonID),
			nil)
	}

	return s.view(userID, lessonID, step, status)
}

// MarkStepCompleted records a COMPLETED transition for the step.
func (s *Service) MarkStepCompleted(ctx context.Context, userID, lessonID, step string) Result {
	if missing := missingFields(userID, lessonID, step); len(missing) > 0 {
		return invalidInput(missing)
	}

	if err := s.store.MarkCompleted(ctx, userID, lessonID, step); err != nil {
		log.Error().Err(err).
			Str("lessonId", lessonID).
			Str("step", step).
			Msg("Failed to mark step completed")
		return failure(CodeInternalError,
			"Failed to mark step as completed",
			CauseDetails{Cause: err.Error()})
	}

	return s.view(userID, lessonID, step, StatusCompleted)
}

// MarkStepFailed records a FAILED transition with the supplied error
// message. An empty message is rejected: a failure with no cause would
// leave nothing actionable behind for anyone polling the status.
func (s *Service) MarkStepFailed(ctx context.Context, userID, lessonID, step, errMsg string) Result {
	missing := missingFields(userID, lessonID, step)
	if errMsg == "" {
		missing = append(missing, "error")
	}
	if len(missing) > 0 {
		return failure(CodeInvalidInput,
			"userId, lessonId, step, and error are required",
			MissingFieldDetails{Missing: missing})
	}

	if err := s.store.MarkFailed(ctx, userID, lessonID, step, errMsg); err != nil {
		log.Error().Err(err).
			Str("lessonId", lessonID).
			Str("step", step).
			Msg("Failed to mark step failed")
		return failure(CodeInternalError,
			"Failed to mark step as failed",
			CauseDetails{Cause: err.Error()})
	}

	return s.view(userID, lessonID, step, StatusFailed)
}
