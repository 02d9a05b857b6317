// Package main provides the extract-text workflow step. Step Functions
// invokes it with waitForTaskToken; the handler validates and records
// the step, enqueues the extraction job on the work queue, and returns
// without completing the step. The worker reports back through the
// callback queue, which resumes the workflow via the task token.
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/lambdaboot"
	"github.com/fpang/lesson-pipeline/internal/logging"
	"github.com/fpang/lesson-pipeline/internal/metrics"
	"github.com/fpang/lesson-pipeline/internal/processing"
)

const stepName = "extract-text"

var (
	sqsClient *sqs.Client
	queueURL  string
	wrapped   processing.WrappedHandler
	coldStart = true
)

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	store := lambdaboot.InitStepStore(awsClients.Config, "PROCESSING_TABLE_NAME")
	sqsClient, queueURL = lambdaboot.InitQueue(awsClients.Config, "EXTRACT_JOB_QUEUE_URL")

	wrapper := processing.NewWrapper(store)
	wrapped = wrapper.Wrap(stepName, enqueueExtraction, processing.WrapperOptions{AsyncTask: true})

	lambdaboot.StartupLog("extract-text-lambda", initStart).
		DynamoTable("processing", logging.EnvOrDefault("PROCESSING_TABLE_NAME", "")).
		Queue("extractJobs", queueURL).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, raw json.RawMessage) (any, error) {
	start := time.Now()
	result, err := wrapped(ctx, raw)

	rec := metrics.ForOperation(stepName).
		Property("coldStart", coldStart).
		Metric("StepLatencyMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds)
	if err != nil {
		rec.Count("StepFailures")
	} else {
		rec.Count("StepStarted")
	}
	rec.Flush()
	coldStart = false

	return result, err
}

// extractJob is the message the extraction worker consumes. The task
// token travels with the job so the worker can hand it to the callback
// queue when it finishes.
type extractJob struct {
	LessonID  string `json:"lessonId"`
	UserID    string `json:"userId"`
	Step      string `json:"step"`
	TaskToken string `json:"taskToken"`
}

func enqueueExtraction(ctx context.Context, event processing.StepEvent, raw json.RawMessage) (any, error) {
	job := extractJob{
		LessonID:  event.LessonID,
		UserID:    event.UserID,
		Step:      stepName,
		TaskToken: event.TaskToken,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	_, err = sqsClient.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("lessonId", event.LessonID).
		Str("userId", event.UserID).
		Msg("Extraction job enqueued")

	return map[string]string{"status": "DISPATCHED"}, nil
}
