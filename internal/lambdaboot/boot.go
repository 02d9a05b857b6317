// Package lambdaboot provides shared Lambda cold-start bootstrap logic.
//
// Every Lambda in the pipeline needs some subset of: AWS config, S3,
// the DynamoDB step store, the Step Functions trigger, SQS, and startup
// logging. This package extracts the common init patterns so each
// Lambda's init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/logging"
	"github.com/fpang/lesson-pipeline/internal/store"
	"github.com/fpang/lesson-pipeline/internal/workflow"
)

// AWSClients holds the core AWS SDK clients used across Lambdas.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds S3 client, presigner, and bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client, presigner, and reads the bucket name from the
// given environment variable. Fatals if the env var is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	client := s3.NewFromConfig(cfg)
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// InitStepStore creates the DynamoDB step status store from the given
// config and table name environment variable. Fatals if the env var is empty.
func InitStepStore(cfg aws.Config, tableEnvVar string) *store.DynamoStepStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	return store.NewDynamoStepStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitWorkflow creates the Step Functions trigger. The state machine ARN
// comes from STEP_FUNCTION_ARN, falling back to an SSM parameter when the
// env var is unset. Fatals if neither source yields an ARN.
func InitWorkflow(cfg aws.Config, ssmClient *ssm.Client) *workflow.Trigger {
	arn := os.Getenv("STEP_FUNCTION_ARN")
	if arn == "" {
		arn = loadStateMachineARN(ssmClient)
	}
	if arn == "" {
		log.Fatal().Msg("STEP_FUNCTION_ARN is not set and no SSM fallback available")
	}
	return workflow.NewTrigger(sfn.NewFromConfig(cfg), arn)
}

// InitCallback creates the Step Functions task-token callback client.
func InitCallback(cfg aws.Config) *workflow.Callback {
	return workflow.NewCallback(sfn.NewFromConfig(cfg))
}

// loadStateMachineARN fetches the state machine ARN from SSM Parameter Store.
// Returns "" when the parameter is absent so the caller decides fatality.
func loadStateMachineARN(ssmClient *ssm.Client) string {
	paramName := logging.EnvOrDefault("SSM_STEP_FUNCTION_ARN_PARAM", "/lesson-pipeline/prod/step-function-arn")

	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name: &paramName,
	})
	if err != nil {
		log.Warn().Err(err).Str("param", paramName).Msg("State machine ARN not found in SSM")
		return ""
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("State machine ARN loaded from SSM")
	return *result.Parameter.Value
}

// InitQueue creates an SQS client and reads the queue URL from the given
// environment variable. Fatals if the env var is empty.
func InitQueue(cfg aws.Config, queueEnvVar string) (*sqs.Client, string) {
	queueURL := os.Getenv(queueEnvVar)
	if queueURL == "" {
		log.Fatal().Str("envVar", queueEnvVar).Msg("Queue URL environment variable is required")
	}
	return sqs.NewFromConfig(cfg), queueURL
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
