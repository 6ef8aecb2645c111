package lambdaboot

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"

	"github.com/fpang/aop-fashion-mockup/internal/archive"
	"github.com/fpang/aop-fashion-mockup/internal/logging"
	"github.com/fpang/aop-fashion-mockup/internal/store"
)

// Sinks are the optional AWS archive targets configured by environment.
type Sinks struct {
	S3       *S3Clients
	Records  *store.DynamoStore
	Events   *eventbridge.Client
	EventBus string
}

// InitSinks creates whichever sinks MOCKUP_BUCKET, MOCKUP_TABLE and
// MOCKUP_EVENT_BUS enable.
func InitSinks(cfg aws.Config) Sinks {
	s := Sinks{
		S3:      InitS3Optional(cfg),
		Records: InitDynamoOptional(cfg),
	}
	s.Events, s.EventBus = InitEventBridgeOptional(cfg)
	return s
}

// ArchiveConfig converts the sinks into an archive.Config. Unconfigured
// sinks stay nil interfaces.
func (s Sinks) ArchiveConfig(model string) archive.Config {
	cfg := archive.Config{Model: model}
	if s.S3 != nil {
		cfg.S3 = s.S3.Client
		cfg.Bucket = s.S3.Bucket
	}
	if s.Records != nil {
		cfg.Records = s.Records
	}
	if s.Events != nil {
		cfg.Events = s.Events
		cfg.EventBus = s.EventBus
	}
	return cfg
}

// RecordStore returns the DynamoDB store, or nil when no table is set.
func (s Sinks) RecordStore() store.RecordStore {
	if s.Records == nil {
		return nil
	}
	return s.Records
}

// Describe adds the configured sinks to a startup log.
func (s Sinks) Describe(sl *logging.StartupLogger) *logging.StartupLogger {
	if s.S3 != nil {
		sl.S3Bucket("mockups", s.S3.Bucket)
	}
	if s.Records != nil {
		sl.DynamoTable("mockups", s.Records.TableName())
	}
	return sl.EventBus("events", s.EventBus)
}
