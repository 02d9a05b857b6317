// Package main provides the Lambda that reacts to lesson uploads.
//
// S3 ObjectCreated events flow through EventBridge into an SQS queue this
// Lambda consumes. The arrival of a lesson's metadata.json manifest is the
// trigger: the handler loads the manifest, verifies every listed asset is
// present in the bucket, records the "upload-complete" processing step,
// and starts the downstream workflow.
//
// Incomplete uploads are reported as handler errors on purpose: SQS
// redelivery acts as the retry loop until the remaining assets land.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/file"
	"github.com/fpang/lesson-pipeline/internal/lambdaboot"
	"github.com/fpang/lesson-pipeline/internal/logging"
	"github.com/fpang/lesson-pipeline/internal/metrics"
	"github.com/fpang/lesson-pipeline/internal/processing"
	"github.com/fpang/lesson-pipeline/internal/s3util"
	"github.com/fpang/lesson-pipeline/internal/workflow"
)

// stepUploadComplete is the processing step this Lambda owns.
const stepUploadComplete = "upload-complete"

var coldStart = true

// Clients initialized at cold start.
var (
	fileService *file.Service
	procService *processing.Service
	trigger     *workflow.Trigger
)

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(awsClients.Config, "UPLOAD_BUCKET_NAME")
	fileService = file.NewService(s3util.NewStore(s3s.Client, s3s.Presigner))
	procService = processing.NewService(lambdaboot.InitStepStore(awsClients.Config, "PROCESSING_TABLE_NAME"))
	trigger = lambdaboot.InitWorkflow(awsClients.Config, awsClients.SSM)

	lambdaboot.StartupLog("upload-events-lambda", initStart).
		S3Bucket("uploads", s3s.Bucket).
		DynamoTable("processing", logging.EnvOrDefault("PROCESSING_TABLE_NAME", "")).
		StateMachine("lessonWorkflow", logging.EnvOrDefault("STEP_FUNCTION_ARN", "(ssm)")).
		Log()
}

func main() {
	lambda.Start(handler)
}

// eventBridgeEnvelope is the EventBridge S3 ObjectCreated event as
// delivered in the SQS message body.
type eventBridgeEnvelope struct {
	Detail struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"detail"`
}

func handler(ctx context.Context, sqsEvent events.SQSEvent) error {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "upload-events-lambda").Msg("Cold start, first invocation")
	}

	for _, record := range sqsEvent.Records {
		if err := processRecord(ctx, record); err != nil {
			// Fail the batch so SQS redelivers. Completeness rarely holds
			// on first delivery; the manifest often lands before the assets.
			return err
		}
	}
	return nil
}

func processRecord(ctx context.Context, record events.SQSMessage) error {
	var envelope eventBridgeEnvelope
	if err := json.Unmarshal([]byte(record.Body), &envelope); err != nil {
		// A malformed body will never parse on redelivery. Drop it.
		log.Warn().Err(err).Str("messageId", record.MessageId).Msg("Skipping unparseable upload event")
		return nil
	}

	bucket := envelope.Detail.Bucket.Name
	key, err := url.QueryUnescape(envelope.Detail.Object.Key)
	if err != nil {
		log.Warn().Err(err).Str("rawKey", envelope.Detail.Object.Key).Msg("Skipping event with undecodable key")
		return nil
	}

	if !file.IsMetadataKey(key) {
		log.Debug().Str("key", key).Msg("Ignoring non-manifest object")
		return nil
	}

	log.Info().Str("bucket", bucket).Str("key", key).Msg("Lesson manifest uploaded")

	manifest, err := fileService.GetManifest(ctx, bucket, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to load lesson manifest")
		return err
	}

	checkStart := time.Now()
	complete, err := fileService.AreAllFilesUploaded(ctx, bucket, manifest)

	rec := metrics.ForOperation(stepUploadComplete).
		Property("lessonId", manifest.LessonID).
		Metric("CompletenessCheckMs", float64(time.Since(checkStart).Milliseconds()), metrics.UnitMilliseconds).
		Metric("ExpectedFiles", float64(len(manifest.Files)), metrics.UnitCount)
	if err != nil {
		rec.Count("CheckFailures").Flush()
		log.Error().Err(err).Str("lessonId", manifest.LessonID).Msg("Completeness check failed")
		return err
	}
	if !complete {
		rec.Count("IncompleteUploads").Flush()
		return fmt.Errorf("lesson %s upload incomplete, retrying", manifest.LessonID)
	}
	rec.Count("CompleteUploads").Flush()

	return startProcessing(ctx, manifest)
}

// startProcessing records the upload-complete step and launches the
// workflow. The processing record is written before the start call, so a
// record always exists by the time the workflow begins running.
func startProcessing(ctx context.Context, manifest file.Manifest) error {
	result := procService.CreateLessonProcessing(ctx, processing.CreateRequest{
		UserID:   manifest.UserID,
		LessonID: manifest.LessonID,
		Step:     stepUploadComplete,
	})
	if !result.Success {
		if result.Error.Code == processing.CodeAlreadyExists {
			// Duplicate delivery of an already-handled manifest.
			log.Info().Str("lessonId", manifest.LessonID).Msg("Lesson already processed, skipping workflow start")
			return nil
		}
		return fmt.Errorf("create processing record for lesson %s: %s", manifest.LessonID, result.Error.Message)
	}

	err := trigger.Start(ctx, executionName(manifest.LessonID), workflow.StartInput{
		LessonID: manifest.LessonID,
		UserID:   manifest.UserID,
	})
	if err != nil {
		// Leave a readable failure behind before surfacing the error.
		procService.MarkStepFailed(ctx, manifest.UserID, manifest.LessonID, stepUploadComplete, err.Error())
		return err
	}

	procService.MarkStepCompleted(ctx, manifest.UserID, manifest.LessonID, stepUploadComplete)
	return nil
}

// executionName derives a Step Functions execution name from the lesson
// ID. The name doubles as a dedupe key: a second start for the same
// lesson is rejected by Step Functions rather than racing the first.
func executionName(lessonID string) string {
	name := make([]byte, 0, len(lessonID))
	for i := 0; i < len(lessonID); i++ {
		c := lessonID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			name = append(name, c)
		default:
			name = append(name, '-')
		}
	}
	return string(name)
}
