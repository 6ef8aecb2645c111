// Package archive mirrors finished mockups to AWS: images to S3, a record to
// the DynamoDB store and a MockupGenerated event to EventBridge. Each sink is
// optional; an Archiver with none configured does nothing.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/aop-fashion-mockup/internal/dataurl"
	"github.com/fpang/aop-fashion-mockup/internal/s3util"
	"github.com/fpang/aop-fashion-mockup/internal/store"
	"github.com/fpang/aop-fashion-mockup/internal/studio"
)

// EventBridge source and detail type of emitted events.
const (
	EventSource     = "aop-fashion-mockup"
	EventDetailType = "MockupGenerated"
)

// EventsAPI is the subset of *eventbridge.Client used here.
type EventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ EventsAPI = (*eventbridge.Client)(nil)

// Config selects the sinks. Zero fields disable the matching sink.
type Config struct {
	S3       s3util.PutObjectAPI
	Bucket   string
	Records  store.RecordStore
	Events   EventsAPI
	EventBus string
	Model    string
}

// Archiver implements studio.Archiver.
type Archiver struct {
	cfg Config
}

var _ studio.Archiver = (*Archiver)(nil)

// New creates an Archiver.
func New(cfg Config) *Archiver {
	return &Archiver{cfg: cfg}
}

// Enabled reports whether any sink is configured.
func (a *Archiver) Enabled() bool {
	return a.uploads() || a.cfg.Records != nil || a.emits()
}

func (a *Archiver) uploads() bool { return a.cfg.S3 != nil && a.cfg.Bucket != "" }
func (a *Archiver) emits() bool   { return a.cfg.Events != nil && a.cfg.EventBus != "" }

// MockupGenerated is the detail of the emitted event.
type MockupGenerated struct {
	MockupID    string `json:"mockupId"`
	Garment     string `json:"garment"`
	SubjectMode string `json:"subjectMode"`
	Bucket      string `json:"bucket,omitempty"`
	FlatKey     string `json:"flatKey,omitempty"`
	WornKey     string `json:"wornKey,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// Archive writes result to every configured sink. A failing upload skips the
// record and event for that result, since they would point at missing
// objects; record and event failures are independent of each other.
func (a *Archiver) Archive(ctx context.Context, result studio.MockupResult) error {
	rec := &store.Record{
		ID:          result.ID,
		Garment:     result.Garment.String(),
		SubjectMode: result.SubjectMode,
		Style:       result.Style,
		Model:       a.cfg.Model,
		CreatedAt:   result.CreatedAt.Unix(),
	}

	if a.uploads() {
		if err := a.upload(ctx, result, rec); err != nil {
			return err
		}
	}

	var errs []error
	if a.cfg.Records != nil {
		if err := a.cfg.Records.PutRecord(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("put record: %w", err))
		}
	}
	if a.emits() {
		if err := a.emit(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	log.Debug().
		Str("mockupId", result.ID).
		Bool("s3", a.uploads()).
		Bool("records", a.cfg.Records != nil).
		Bool("events", a.emits()).
		Msg("Mockup archived")
	return nil
}

func (a *Archiver) upload(ctx context.Context, result studio.MockupResult, rec *store.Record) error {
	uploads := []struct {
		name string
		img  *dataurl.Image
		key  *string
	}{
		{"flat", result.Flat, &rec.FlatKey},
		{"worn", result.Worn, &rec.WornKey},
		{"pattern", result.Pattern, &rec.PatternKey},
	}
	for _, u := range uploads {
		if u.img == nil {
			continue
		}
		key := s3util.MockupKey(result.ID, u.name, u.img)
		if err := s3util.UploadImage(ctx, a.cfg.S3, a.cfg.Bucket, key, u.img); err != nil {
			return fmt.Errorf("upload %s image: %w", u.name, err)
		}
		*u.key = key
	}
	return nil
}

func (a *Archiver) emit(ctx context.Context, rec *store.Record) error {
	event := MockupGenerated{
		MockupID:    rec.ID,
		Garment:     rec.Garment,
		SubjectMode: rec.SubjectMode,
		FlatKey:     rec.FlatKey,
		WornKey:     rec.WornKey,
		CreatedAt:   rec.CreatedAt,
	}
	if rec.FlatKey != "" {
		event.Bucket = a.cfg.Bucket
	}

	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal MockupGenerated: %w", err)
	}

	result, err := a.cfg.Events.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				EventBusName: aws.String(a.cfg.EventBus),
				Source:       aws.String(EventSource),
				DetailType:   aws.String(EventDetailType),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("mockupId", rec.ID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("mockupId", rec.ID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("mockupId", rec.ID).Msg("MockupGenerated emitted to EventBridge")
	return nil
}
