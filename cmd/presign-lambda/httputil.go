package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/file"
)

func respondJSON(status int, body any) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response body")
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"message":"Internal Server Error"}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(payload),
	}
}

func respondMessage(status int, message string) events.APIGatewayProxyResponse {
	return respondJSON(status, map[string]string{"message": message})
}

// respondDomainError maps upload-domain error codes to HTTP responses.
// Identifier validation failures are the caller's fault; everything else
// is an internal failure.
func respondDomainError(err error) events.APIGatewayProxyResponse {
	var domainErr *file.Error
	if !errors.As(err, &domainErr) {
		log.Error().Err(err).Msg("Unexpected non-domain error")
		return respondMessage(http.StatusInternalServerError, "Internal Server Error")
	}

	switch domainErr.Code {
	case file.CodeInvalidLessonID, file.CodeInvalidUserID:
		return respondJSON(http.StatusBadRequest, map[string]any{
			"message": domainErr.Message,
			"details": domainErr.Details,
		})
	default:
		log.Error().Str("code", string(domainErr.Code)).Str("message", domainErr.Message).Msg("Presign failed")
		return respondJSON(http.StatusInternalServerError, map[string]any{
			"message": "Internal Server Error",
			"details": domainErr.Message,
		})
	}
}
