// Package main provides the callback consumer for asynchronous workflow
// steps. Workers drop a completion message on the callback queue when a
// job finishes; this Lambda relays the outcome to Step Functions through
// the task token and records the terminal step status.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/lambdaboot"
	"github.com/fpang/lesson-pipeline/internal/logging"
	"github.com/fpang/lesson-pipeline/internal/metrics"
	"github.com/fpang/lesson-pipeline/internal/processing"
	"github.com/fpang/lesson-pipeline/internal/workflow"
)

var (
	callback    *workflow.Callback
	procService *processing.Service
	coldStart   = true
)

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	store := lambdaboot.InitStepStore(awsClients.Config, "PROCESSING_TABLE_NAME")
	procService = processing.NewService(store)
	callback = lambdaboot.InitCallback(awsClients.Config)

	lambdaboot.StartupLog("step-callback-lambda", initStart).
		DynamoTable("processing", logging.EnvOrDefault("PROCESSING_TABLE_NAME", "")).
		Log()
}

func main() {
	lambda.Start(handler)
}

// callbackMessage is what workers publish when a job finishes. Status is
// "ok" or "error"; Output is forwarded to the workflow on success, Error
// becomes the task failure cause.
type callbackMessage struct {
	LessonID  string          `json:"lessonId"`
	UserID    string          `json:"userId"`
	Step      string          `json:"step"`
	TaskToken string          `json:"taskToken"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

func handler(ctx context.Context, event events.SQSEvent) error {
	for _, record := range event.Records {
		if err := processMessage(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func processMessage(ctx context.Context, record events.SQSMessage) error {
	start := time.Now()

	var msg callbackMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		log.Warn().Err(err).Str("messageId", record.MessageId).Msg("Skipping unparseable callback message")
		return nil
	}
	if msg.TaskToken == "" || msg.LessonID == "" || msg.UserID == "" || msg.Step == "" {
		log.Warn().Str("messageId", record.MessageId).Msg("Skipping callback message with missing fields")
		return nil
	}

	rec := metrics.ForOperation("step-callback").
		Property("coldStart", coldStart).
		Property("lessonId", msg.LessonID).
		Property("step", msg.Step)
	coldStart = false

	var err error
	switch msg.Status {
	case "ok":
		err = completeStep(ctx, msg)
		rec.Count("CallbackSuccesses")
	case "error":
		err = failStep(ctx, msg)
		rec.Count("CallbackFailures")
	default:
		log.Warn().Str("status", msg.Status).Str("messageId", record.MessageId).Msg("Skipping callback with unknown status")
		rec.Count("CallbackUnknownStatus")
	}
	rec.Metric("CallbackLatencyMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).Flush()
	return err
}

func completeStep(ctx context.Context, msg callbackMessage) error {
	output := any(map[string]string{"status": "COMPLETED"})
	if len(msg.Output) > 0 {
		output = msg.Output
	}
	if err := callback.SendTaskSuccess(ctx, msg.TaskToken, output); err != nil {
		return fmt.Errorf("send task success for lesson %s step %s: %w", msg.LessonID, msg.Step, err)
	}

	result := procService.MarkStepCompleted(ctx, msg.UserID, msg.LessonID, msg.Step)
	if !result.Success {
		// The workflow already resumed; a stale status row is
		// recoverable, a redelivered token is not. Log and move on.
		log.Error().
			Str("lessonId", msg.LessonID).
			Str("step", msg.Step).
			Str("code", string(result.Error.Code)).
			Msg("Workflow resumed but step status update failed")
	}

	log.Info().Str("lessonId", msg.LessonID).Str("step", msg.Step).Msg("Step completed via callback")
	return nil
}

func failStep(ctx context.Context, msg callbackMessage) error {
	cause := msg.Error
	if cause == "" {
		cause = "extraction worker reported an error"
	}
	if err := callback.SendTaskFailure(ctx, msg.TaskToken, "StepFailed", cause); err != nil {
		return fmt.Errorf("send task failure for lesson %s step %s: %w", msg.LessonID, msg.Step, err)
	}

	result := procService.MarkStepFailed(ctx, msg.UserID, msg.LessonID, msg.Step, cause)
	if !result.Success {
		log.Error().
			Str("lessonId", msg.LessonID).
			Str("step", msg.Step).
			Str("code", string(result.Error.Code)).
			Msg("Workflow failed but step status update failed")
	}

	log.Info().Str("lessonId", msg.LessonID).Str("step", msg.Step).Msg("Step failed via callback")
	return nil
}
