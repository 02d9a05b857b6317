// Package store provides the DynamoDB-backed implementation of the
// processing.StepStatusStore port.
//
// The table uses a composite key: PK = LESSON#{userId}#{lessonId},
// SK = STEP#{step}. Each item holds the current status, the lastUpdated
// timestamp, and the error message for failed steps. Records are upserted
// in place on every transition and are never deleted by this subsystem.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/processing"
)

const (
	pkPrefix = "LESSON#"
	skPrefix = "STEP#"
)

// DynamoStepStore implements processing.StepStatusStore on DynamoDB.
type DynamoStepStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ processing.StepStatusStore = (*DynamoStepStore)(nil)

// NewDynamoStepStore creates a DynamoStepStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStepStore(client *dynamodb.Client, tableName string) *DynamoStepStore {
	return &DynamoStepStore{
		client:    client,
		tableName: tableName,
	}
}

// Client exposes the underlying DynamoDB client for callers that share it
// with other stores.
func (s *DynamoStepStore) Client() *dynamodb.Client {
	return s.client
}

func stepPK(userID, lessonID string) string {
	return pkPrefix + userID + "#" + lessonID
}

func stepSK(step string) string {
	return skPrefix + step
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func stepKey(userID, lessonID, step string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: stepPK(userID, lessonID)},
		"SK": &types.AttributeValueMemberS{Value: stepSK(step)},
	}
}

// GetStatus reads the current status for a step. Absence is reported as
// processing.StatusUnknown, never as an error.
func (s *DynamoStepStore) GetStatus(ctx context.Context, userID, lessonID, step string) (processing.Status, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            &s.tableName,
		Key:                  stepKey(userID, lessonID, step),
		ProjectionExpression: aws.String("#s"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status", // "status" is a DynamoDB reserved word
		},
	})
	if err != nil {
		return processing.StatusUnknown, fmt.Errorf("GetItem PK=%s SK=%s: %w", stepPK(userID, lessonID), stepSK(step), err)
	}
	if result.Item == nil {
		return processing.StatusUnknown, nil
	}

	var record processing.StepRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return processing.StatusUnknown, fmt.Errorf("unmarshal PK=%s SK=%s: %w", stepPK(userID, lessonID), stepSK(step), err)
	}
	return record.Status, nil
}

// MarkInProgress unconditionally upserts an IN_PROGRESS record. Retrying
// after a partial failure rewrites the same logical state.
func (s *DynamoStepStore) MarkInProgress(ctx context.Context, userID, lessonID, step string) error {
	record := processing.StepRecord{
		Status:      processing.StatusInProgress,
		LastUpdated: nowISO(),
	}
	if err := s.putRecord(ctx, userID, lessonID, step, record, ""); err != nil {
		return err
	}

	log.Debug().
		Str("lessonId", lessonID).
		Str("step", step).
		Msg("Step marked in progress")
	return nil
}

// MarkCompleted transitions the step to COMPLETED, clearing any stale
// error from an earlier failed run.
func (s *DynamoStepStore) MarkCompleted(ctx context.Context, userID, lessonID, step string) error {
	return s.updateStatus(ctx, userID, lessonID, step, processing.StatusCompleted, "")
}

// MarkFailed transitions the step to FAILED and stores the error message.
func (s *DynamoStepStore) MarkFailed(ctx context.Context, userID, lessonID, step, errMsg string) error {
	return s.updateStatus(ctx, userID, lessonID, step, processing.StatusFailed, errMsg)
}

// TryAcquire writes an IN_PROGRESS record only when the step has never
// run or its last run FAILED. The conditional put makes the transition
// atomic: concurrent callers racing for the same step see exactly one
// winner, and COMPLETED records are never clobbered back to IN_PROGRESS.
func (s *DynamoStepStore) TryAcquire(ctx context.Context, userID, lessonID, step string) error {
	record := processing.StepRecord{
		Status:      processing.StatusInProgress,
		LastUpdated: nowISO(),
	}
	condition := "attribute_not_exists(PK) OR #s = :failed"
	err := s.putRecord(ctx, userID, lessonID, step, record, condition)

	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		current, getErr := s.GetStatus(ctx, userID, lessonID, step)
		if getErr != nil {
			current = processing.StatusUnknown
		}
		log.Debug().
			Str("lessonId", lessonID).
			Str("step", step).
			Str("blockedBy", string(current)).
			Msg("Step acquisition rejected")
		return &processing.ConflictError{Step: step, Current: current}
	}
	return err
}

// putRecord marshals a StepRecord and writes it with PK/SK attributes.
// An empty condition means an unconditional upsert.
func (s *DynamoStepStore) putRecord(ctx context.Context, userID, lessonID, step string, record processing.StepRecord, condition string) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal step record: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: stepPK(userID, lessonID)}
	item["SK"] = &types.AttributeValueMemberS{Value: stepSK(step)}

	input := &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}
	if condition != "" {
		input.ConditionExpression = aws.String(condition)
		input.ExpressionAttributeNames = map[string]string{"#s": "status"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: string(processing.StatusFailed)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return err
		}
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", stepPK(userID, lessonID), stepSK(step), err)
	}
	return nil
}

// updateStatus rewrites status and lastUpdated in place. Failed
// transitions also store the error; other transitions remove it.
func (s *DynamoStepStore) updateStatus(ctx context.Context, userID, lessonID, step string, status processing.Status, errMsg string) error {
	names := map[string]string{
		"#s": "status",
		"#e": "error",
	}
	values := map[string]types.AttributeValue{
		":s":  &types.AttributeValueMemberS{Value: string(status)},
		":lu": &types.AttributeValueMemberS{Value: nowISO()},
	}

	updateExpr := "SET #s = :s, lastUpdated = :lu REMOVE #e"
	if errMsg != "" {
		updateExpr = "SET #s = :s, lastUpdated = :lu, #e = :e"
		values[":e"] = &types.AttributeValueMemberS{Value: errMsg}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       stepKey(userID, lessonID, step),
		UpdateExpression:          aws.String(updateExpr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("UpdateItem PK=%s SK=%s status=%s: %w", stepPK(userID, lessonID), stepSK(step), status, err)
	}

	log.Debug().
		Str("lessonId", lessonID).
		Str("step", step).
		Str("status", string(status)).
		Msg("Step status updated")
	return nil
}
