// Package main provides the API Gateway Lambda that issues presigned S3
// upload URLs for lesson assets.
//
// Clients request either a URL for a single asset (kind=USER_FILE, with a
// MIME type from a small allowlist) or a URL for the lesson manifest
// (kind=METADATA). The caller's identity comes from the API Gateway
// authorizer claims; the Lambda never trusts a userId in the body.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/file"
	"github.com/fpang/lesson-pipeline/internal/lambdaboot"
	"github.com/fpang/lesson-pipeline/internal/logging"
	"github.com/fpang/lesson-pipeline/internal/s3util"
)

// Presign kinds accepted in the request body.
const (
	kindUserFile = "USER_FILE"
	kindMetadata = "METADATA"
)

// allowedMimeTypes is the upload allowlist. Deliberately small: the
// pipeline only processes lesson text and photographed pages.
var allowedMimeTypes = map[string]bool{
	"text/plain": true,
	"image/jpeg": true,
	"image/png":  true,
}

var (
	uploadBucket string
	fileService  *file.Service
)

func init() {
	initStart := time.Now()
	logging.Init()

	awsClients := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(awsClients.Config, "UPLOAD_BUCKET_NAME")
	uploadBucket = s3s.Bucket
	fileService = file.NewService(s3util.NewStore(s3s.Client, s3s.Presigner))

	lambdaboot.StartupLog("presign-lambda", initStart).
		S3Bucket("uploads", uploadBucket).
		Log()
}

func main() {
	lambda.Start(handler)
}

type presignRequest struct {
	Kind     string `json:"kind"`
	FileType string `json:"fileType"`
	LessonID string `json:"lessonId"`
}

type presignResponse struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

func handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := authorizerSub(event)
	if userID == "" {
		return respondMessage(http.StatusInternalServerError, "userId missing"), nil
	}

	var req presignRequest
	if event.Body != "" {
		if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
			return respondMessage(http.StatusBadRequest, "invalid request body"), nil
		}
	}

	if req.Kind != kindUserFile && req.Kind != kindMetadata {
		return respondMessage(http.StatusBadRequest, "kind invalid"), nil
	}
	if req.Kind == kindUserFile && !allowedMimeTypes[req.FileType] {
		return respondMessage(http.StatusBadRequest, "fileType invalid"), nil
	}
	if req.LessonID == "" {
		return respondMessage(http.StatusBadRequest, "lessonId missing"), nil
	}

	var (
		url file.UploadURL
		err error
	)
	switch req.Kind {
	case kindMetadata:
		url, err = fileService.MetadataUploadURL(ctx, uploadBucket, userID, req.LessonID)
	case kindUserFile:
		url, err = fileService.UserFileUploadURL(ctx, uploadBucket, userID, req.LessonID, req.FileType)
	}
	if err != nil {
		return respondDomainError(err), nil
	}

	log.Info().
		Str("kind", req.Kind).
		Str("lessonId", req.LessonID).
		Msg("Presigned upload URL issued")
	return respondJSON(http.StatusOK, presignResponse{URL: url.URL, Headers: url.Headers}), nil
}

// authorizerSub extracts the Cognito subject claim identifying the caller.
func authorizerSub(event events.APIGatewayProxyRequest) string {
	claims, ok := event.RequestContext.Authorizer["claims"].(map[string]any)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return sub
}
