package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// StepEvent is the envelope every workflow step invocation must carry.
// Additional fields in the raw event are passed through to the handler
// untouched.
type StepEvent struct {
	LessonID  string `json:"lessonId"`
	UserID    string `json:"userId"`
	TaskToken string `json:"taskToken"`
}

// StepHandler is the work a single step performs. It receives the parsed
// envelope plus the raw event so type-specific fields survive the wrapper.
type StepHandler func(ctx context.Context, event StepEvent, raw json.RawMessage) (any, error)

// WrapperOptions tunes how a wrapped step reports completion.
type WrapperOptions struct {
	// AsyncTask marks steps whose real completion is signaled out of band
	// via the task token. The wrapper then stops at successful dispatch
	// and never marks COMPLETED itself.
	AsyncTask bool
}

// SkippedResult is returned in place of the handler result when the step
// already reached COMPLETED; re-delivery of a finished step is a no-op.
type SkippedResult struct {
	Status string `json:"status"`
}

// Wrapper converts arbitrary step handlers into handlers with
// at-most-once-effective-completion semantics, driven by the status store
// and independent of the orchestrator's own retry behavior.
type Wrapper struct {
	store StepStatusStore
}

// NewWrapper creates a Wrapper over the given store.
func NewWrapper(store StepStatusStore) *Wrapper {
	return &Wrapper{store: store}
}

// WrappedHandler is a step handler guarded by the status store.
type WrappedHandler func(ctx context.Context, raw json.RawMessage) (any, error)

// Wrap guards handler with the step lifecycle:
//
//	COMPLETED      -> skip, return SkippedResult
//	IN_PROGRESS    -> error (re-entrancy conflict, orchestrator decides)
//	absent/FAILED  -> acquire IN_PROGRESS, run the handler
//
// A synchronous handler that returns without error is marked COMPLETED;
// with AsyncTask set the record stays IN_PROGRESS until the out-of-band
// callback lands. Handler errors are recorded as FAILED and returned to
// the caller unchanged so the orchestrator's retry machinery still fires.
func (w *Wrapper) Wrap(stepName string, handler StepHandler, opts WrapperOptions) WrappedHandler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		if stepName == "" {
			return nil, errors.New("step name must not be empty")
		}

		event, err := parseStepEvent(raw)
		if err != nil {
			return nil, err
		}

		status, err := w.store.GetStatus(ctx, event.UserID, event.LessonID, stepName)
		if err != nil {
			return nil, fmt.Errorf("read status for step %q: %w", stepName, err)
		}

		switch status {
		case StatusInProgress:
			return nil, fmt.Errorf("step %q already in progress", stepName)
		case StatusCompleted:
			log.Info().
				Str("lessonId", event.LessonID).
				Str("step", stepName).
				Msg("Step already completed, skipping")
			return SkippedResult{Status: "SKIPPED"}, nil
		}

		if err := w.store.TryAcquire(ctx, event.UserID, event.LessonID, stepName); err != nil {
			if errors.Is(err, ErrStepConflict) {
				// Lost the race against a concurrent invocation.
				return nil, fmt.Errorf("step %q already in progress", stepName)
			}
			return nil, fmt.Errorf("acquire step %q: %w", stepName, err)
		}

		result, err := handler(ctx, event, raw)
		if err != nil {
			if markErr := w.store.MarkFailed(ctx, event.UserID, event.LessonID, stepName, err.Error()); markErr != nil {
				log.Error().Err(markErr).
					Str("lessonId", event.LessonID).
					Str("step", stepName).
					Msg("Failed to record step failure")
			}
			return nil, err
		}

		if !opts.AsyncTask {
			if err := w.store.MarkCompleted(ctx, event.UserID, event.LessonID, stepName); err != nil {
				return nil, fmt.Errorf("mark step %q completed: %w", stepName, err)
			}
		}

		log.Info().
			Str("lessonId", event.LessonID).
			Str("step", stepName).
			Bool("asyncTask", opts.AsyncTask).
			Msg("Step handler finished")
		return result, nil
	}
}

// parseStepEvent decodes and validates the event envelope. Malformed
// events fail before the store is touched.
func parseStepEvent(raw json.RawMessage) (StepEvent, error) {
	var event StepEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return StepEvent{}, fmt.Errorf("parse step event: %w", err)
	}
	for field, value := range map[string]string{
		"lessonId":  event.LessonID,
		"userId":    event.UserID,
		"taskToken": event.TaskToken,
	} {
		if value == "" {
			return StepEvent{}, fmt.Errorf("step event: %s is required", field)
		}
	}
	return event, nil
}
