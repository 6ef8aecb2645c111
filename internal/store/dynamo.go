package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix  = "MOCKUP#"
	pkHistory = "HISTORY"
	skMeta    = "META"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements RecordStore on DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface checks.
var (
	_ RecordStore = (*DynamoStore)(nil)
	_ DynamoAPI   = (*dynamodb.Client)(nil)
)

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// TableName returns the DynamoDB table name.
func (s *DynamoStore) TableName() string {
	return s.tableName
}

func mockupPK(id string) string {
	return pkPrefix + id
}

// historySK orders records by creation time; the id suffix keeps keys unique
// when two records share a second.
func historySK(rec *Record) string {
	return fmt.Sprintf("%020d#%s", rec.CreatedAt, rec.ID)
}

// item marshals rec and adds key and TTL attributes, overwriting any
// conflicting names from the record.
func (s *DynamoStore) item(rec *Record, pk, sk string) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(RecordTTL).Unix(), 10)}
	return item, nil
}

func (s *DynamoStore) PutRecord(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("put record: id is required")
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.now().Unix()
	}

	meta, err := s.item(rec, mockupPK(rec.ID), skMeta)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	history, err := s.item(rec, pkHistory, historySK(rec))
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}

	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{
			s.tableName: {
				{PutRequest: &types.PutRequest{Item: meta}},
				{PutRequest: &types.PutRequest{Item: history}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("BatchWriteItem record %s: %w", rec.ID, err)
	}
	if out != nil && len(out.UnprocessedItems[s.tableName]) > 0 {
		return fmt.Errorf("BatchWriteItem record %s: %d items unprocessed", rec.ID, len(out.UnprocessedItems[s.tableName]))
	}

	log.Debug().Str("mockupId", rec.ID).Str("garment", rec.Garment).Msg("Mockup record persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: mockupPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem mockup %s: %w", id, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal mockup %s: %w", id, err)
	}
	rec.ID = id
	return &rec, nil
}

func (s *DynamoStore) ListRecords(ctx context.Context, limit int) ([]*Record, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkHistory},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	var records []*Record

	// DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query history: %w", err)
		}
		for _, item := range result.Items {
			var rec Record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal history item: %w", err)
			}
			records = append(records, &rec)
		}

		if limit > 0 && len(records) >= limit {
			return records[:limit], nil
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return records, nil
}
