// Package main provides the API Gateway Lambda that starts the lesson
// workflow on demand, bypassing the upload-event path. Used to re-run
// processing for a lesson whose assets are already in place.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/jobs"
	"github.com/fpang/lesson-pipeline/internal/lambdaboot"
	"github.com/fpang/lesson-pipeline/internal/logging"
	"github.com/fpang/lesson-pipeline/internal/workflow"
)

var trigger *workflow.Trigger

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	trigger = lambdaboot.InitWorkflow(awsClients.Config, awsClients.SSM)

	lambdaboot.StartupLog("submit-extract-lambda", initStart).
		StateMachine("lessonWorkflow", logging.EnvOrDefault("STEP_FUNCTION_ARN", "(ssm)")).
		Log()
}

func main() {
	lambda.Start(handler)
}

type submitRequest struct {
	LessonID string `json:"lessonId"`
	UserID   string `json:"userId"`
}

func handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req submitRequest
	if event.Body != "" {
		if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
			return respond(http.StatusBadRequest, "invalid request body"), nil
		}
	}
	if req.LessonID == "" || req.UserID == "" {
		return respond(http.StatusBadRequest, "lessonId and userId are required"), nil
	}

	// Manual restarts get a random execution name: unlike the upload
	// path, re-submitting the same lesson must not be deduplicated.
	err := trigger.Start(ctx, jobs.GenerateID("exec-"), workflow.StartInput{
		LessonID: req.LessonID,
		UserID:   req.UserID,
	})
	if err != nil {
		log.Error().Err(err).Str("lessonId", req.LessonID).Msg("Failed to submit task")
		return respond(http.StatusInternalServerError, "Failed to submit task"), nil
	}

	return respond(http.StatusOK, "Task submitted successfully"), nil
}

func respond(status int, message string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"message": message})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
