// Package lambdaboot holds the AWS cold-start bootstrap shared by the
// binaries: AWS config, optional S3/DynamoDB/EventBridge clients and the
// Gemini key from SSM. The helpers fatal on misconfiguration; they run once
// at startup.
package lambdaboot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/logging"
	"github.com/fpang/aop-fashion-mockup/internal/store"
)

// Environment variables read by the helpers.
const (
	EnvBucket      = "MOCKUP_BUCKET"
	EnvTable       = "MOCKUP_TABLE"
	EnvEventBus    = "MOCKUP_EVENT_BUS"
	EnvSSMKeyParam = "SSM_API_KEY_PARAM"
)

// DefaultSSMKeyParam is the parameter holding the Gemini key when
// SSM_API_KEY_PARAM is unset.
const DefaultSSMKeyParam = "/aop-mockup/prod/gemini-api-key"

// AWSClients holds the AWS config and the SSM client.
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

// AnyConfigured reports whether any AWS-backed sink is configured, so local
// runs without AWS settings can skip loading credentials.
func AnyConfigured() bool {
	return os.Getenv(EnvBucket) != "" || os.Getenv(EnvTable) != "" || os.Getenv(EnvEventBus) != ""
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

// InitS3Optional creates S3 clients when MOCKUP_BUCKET is set and returns
// nil otherwise.
func InitS3Optional(cfg aws.Config) *S3Clients {
	bucket := os.Getenv(EnvBucket)
	if bucket == "" {
		log.Warn().Str("envVar", EnvBucket).Msg("Bucket not set, image archive disabled")
		return nil
	}
	client := s3.NewFromConfig(cfg)
	return &S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// InitDynamoOptional creates a DynamoDB record store when MOCKUP_TABLE is
// set and returns nil otherwise.
func InitDynamoOptional(cfg aws.Config) *store.DynamoStore {
	tableName := os.Getenv(EnvTable)
	if tableName == "" {
		log.Warn().Str("envVar", EnvTable).Msg("DynamoDB table not set, record archive disabled")
		return nil
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName)
}

// InitEventBridgeOptional creates an EventBridge client when
// MOCKUP_EVENT_BUS is set. The bus name is returned alongside.
func InitEventBridgeOptional(cfg aws.Config) (*eventbridge.Client, string) {
	bus := os.Getenv(EnvEventBus)
	if bus == "" {
		log.Debug().Str("envVar", EnvEventBus).Msg("Event bus not set, events disabled")
		return nil, ""
	}
	return eventbridge.NewFromConfig(cfg), bus
}

// SSMAPI is the subset of *ssm.Client used to read the key.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// FetchGeminiKey reads the Gemini key from the SSM parameter named by
// SSM_API_KEY_PARAM, or DefaultSSMKeyParam.
func FetchGeminiKey(ctx context.Context, client SSMAPI) (string, error) {
	paramName := logging.EnvOrDefault(EnvSSMKeyParam, DefaultSSMKeyParam)
	result, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get parameter %s: %w", paramName, err)
	}
	if result.Parameter == nil || aws.ToString(result.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s is empty", paramName)
	}
	return aws.ToString(result.Parameter.Value), nil
}

// LoadGeminiKey sets GEMINI_API_KEY from SSM unless it is already set.
// Fatals on error.
func LoadGeminiKey(client SSMAPI) {
	if os.Getenv("GEMINI_API_KEY") != "" {
		return
	}
	ssmStart := time.Now()
	key, err := FetchGeminiKey(context.Background(), client)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read API key from SSM")
	}
	os.Setenv("GEMINI_API_KEY", key)
	log.Debug().Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
