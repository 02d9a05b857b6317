package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog/log"
)

// Callback resolves waiting workflow tasks via their resumption tokens.
// Unlike Trigger it is not bound to a state machine: the token alone
// identifies the waiting execution.
type Callback struct {
	client *sfn.Client
}

// NewCallback creates a Callback over the given Step Functions client.
func NewCallback(client *sfn.Client) *Callback {
	return &Callback{client: client}
}

// SendTaskSuccess resolves an asynchronous step via its resumption token.
func (c *Callback) SendTaskSuccess(ctx context.Context, taskToken string, output any) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal task output: %w", err)
	}

	_, err = c.client.SendTaskSuccess(ctx, &sfn.SendTaskSuccessInput{
		TaskToken: &taskToken,
		Output:    aws.String(string(payload)),
	})
	if err != nil {
		return fmt.Errorf("send task success: %w", err)
	}

	log.Debug().Msg("Task success signaled to workflow")
	return nil
}

// SendTaskFailure reports an asynchronous step failure via its resumption
// token so the state machine's own error handling fires.
func (c *Callback) SendTaskFailure(ctx context.Context, taskToken, errorCode, cause string) error {
	_, err := c.client.SendTaskFailure(ctx, &sfn.SendTaskFailureInput{
		TaskToken: &taskToken,
		Error:     &errorCode,
		Cause:     &cause,
	})
	if err != nil {
		return fmt.Errorf("send task failure: %w", err)
	}

	log.Debug().Str("errorCode", errorCode).Msg("Task failure signaled to workflow")
	return nil
}
