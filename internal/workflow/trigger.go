// Package workflow wraps the Step Functions calls the pipeline makes:
// starting the lesson-processing state machine and resolving task-token
// callbacks for asynchronous steps.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog/log"
)

// StartInput is the payload handed to a new workflow execution.
type StartInput struct {
	LessonID string `json:"lessonId"`
	UserID   string `json:"userId"`
}

// Trigger starts executions of one state machine and signals step
// completion back to it. The start call is fire-and-forget: the caller's
// only obligation is to have produced a processing record first.
type Trigger struct {
	client          *sfn.Client
	stateMachineArn string
}

// NewTrigger creates a Trigger for the given state machine.
func NewTrigger(client *sfn.Client, stateMachineArn string) *Trigger {
	return &Trigger{client: client, stateMachineArn: stateMachineArn}
}

// Start launches a new execution with the given input. An empty name
// lets Step Functions generate one.
func (t *Trigger) Start(ctx context.Context, name string, input StartInput) error {
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal workflow input: %w", err)
	}

	req := &sfn.StartExecutionInput{
		StateMachineArn: &t.stateMachineArn,
		Input:           aws.String(string(payload)),
	}
	if name != "" {
		req.Name = &name
	}

	if _, err := t.client.StartExecution(ctx, req); err != nil {
		return fmt.Errorf("start execution for lesson %s: %w", input.LessonID, err)
	}

	log.Info().
		Str("lessonId", input.LessonID).
		Str("userId", input.UserID).
		Str("stateMachineArn", t.stateMachineArn).
		Msg("Workflow execution started")
	return nil
}

