// Package store persists archived mockup records.
//
// Records live in a single DynamoDB table. Each mockup is written twice: a
// META item under its own partition (MOCKUP#{id}) for lookups by id, and a
// copy under the shared HISTORY partition with a time-ordered sort key for
// newest-first listing. A TTL attribute (expiresAt) expires both.
package store

import (
	"context"
	"time"
)

// RecordTTL is how long archived records are kept. It matches the lifecycle
// rule on the image bucket.
const RecordTTL = 30 * 24 * time.Hour

// Record is the archived metadata of one Mockup Result. Images are stored
// separately; the record only carries their object keys.
type Record struct {
	ID          string `dynamodbav:"id" json:"id"`
	Garment     string `dynamodbav:"garment" json:"garment"`
	SubjectMode string `dynamodbav:"subjectMode" json:"subjectMode"`
	Style       string `dynamodbav:"style,omitempty" json:"style,omitempty"`
	Model       string `dynamodbav:"model,omitempty" json:"model,omitempty"`
	FlatKey     string `dynamodbav:"flatKey,omitempty" json:"flatKey,omitempty"`
	WornKey     string `dynamodbav:"wornKey,omitempty" json:"wornKey,omitempty"`
	PatternKey  string `dynamodbav:"patternKey,omitempty" json:"patternKey,omitempty"`
	CreatedAt   int64  `dynamodbav:"createdAt" json:"createdAt"`
}

// RecordStore persists mockup records. Implementations are safe for
// concurrent use.
//
// GetRecord returns (nil, nil) when the record does not exist. PutRecord has
// upsert semantics.
type RecordStore interface {
	PutRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	// ListRecords returns up to limit records, newest first. A limit of zero
	// or less returns all records.
	ListRecords(ctx context.Context, limit int) ([]*Record, error)
}
