package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

const lineIndexName = "line-index"

// ErrNotFound indicates no client record matches the requested key.
var ErrNotFound = errors.New("directory: client not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Directory is the read interface the pipeline depends on.
type Directory interface {
	GetByLine(ctx context.Context, line string) (*ClientRecord, error)
	GetByID(ctx context.Context, clientID string) (*ClientRecord, error)
}

// Store persists client records to DynamoDB. Lookups by phone line go
// through the line-index GSI.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Directory = (*Store)(nil)

// NewStore builds a store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("directory: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("directory: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Put writes a client record, stamping timestamps.
func (s *Store) Put(ctx context.Context, rec *ClientRecord) error {
	if rec == nil {
		return errors.New("directory: record cannot be nil")
	}
	if rec.ClientID == "" {
		return errors.New("directory: clientId required")
	}
	if rec.PhoneLine == "" {
		return errors.New("directory: phoneLine required")
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("directory: failed to marshal client: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("directory: failed to persist client %s: %w", rec.ClientID, err)
	}
	return nil
}

// GetByID fetches a client record by its stable id.
func (s *Store) GetByID(ctx context.Context, clientID string) (*ClientRecord, error) {
	if clientID == "" {
		return nil, errors.New("directory: clientId required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"clientId": &types.AttributeValueMemberS{Value: clientID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("directory: failed to fetch client %s: %w", clientID, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var rec ClientRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("directory: failed to decode client: %w", err)
	}
	return &rec, nil
}

// GetByLine resolves a telephony line to its client record.
func (s *Store) GetByLine(ctx context.Context, line string) (*ClientRecord, error) {
	if line == "" {
		return nil, errors.New("directory: line required")
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(lineIndexName),
		KeyConditionExpression: aws.String("phoneLine = :line"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":line": &types.AttributeValueMemberS{Value: line},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("directory: failed to query line %s: %w", line, err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}

	var rec ClientRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("directory: failed to decode client: %w", err)
	}
	return &rec, nil
}

// List returns every client record. The dashboard client list is small;
// a paged scan is acceptable here.
func (s *Store) List(ctx context.Context) ([]ClientRecord, error) {
	var records []ClientRecord
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("directory: failed to list clients: %w", err)
		}
		for _, item := range out.Items {
			var rec ClientRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("directory: failed to decode client: %w", err)
			}
			records = append(records, rec)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return records, nil
}

// SaveScraped merges scraped enrichment into an existing client record.
// Read-merge-write keeps existing fields intact, matching the merge
// semantics of the onboarding flow.
func (s *Store) SaveScraped(ctx context.Context, clientID string, data ScrapedData) error {
	rec, err := s.GetByID(ctx, clientID)
	if err != nil {
		return err
	}
	rec.MergeScraped(data)
	if err := s.Put(ctx, rec); err != nil {
		return err
	}
	s.logger.Info("scraped data merged", "client_id", clientID, "faq_count", len(data.FAQ))
	return nil
}
