package calls

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

const (
	callerLineIndexName = "caller-line-index"
	clientIndexName     = "client-index"
)

// ErrCallNotFound indicates the requested CallSid has no record.
var ErrCallNotFound = errors.New("calls: missed call not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store persists missed calls and their text conversations to two
// DynamoDB tables.
type Store struct {
	client            dynamoAPI
	callsTable        string
	conversationTable string
	logger            *logging.Logger
}

// NewStore builds a store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, callsTable, conversationTable string, logger *logging.Logger) *Store {
	if client == nil {
		panic("calls: dynamodb client cannot be nil")
	}
	if callsTable == "" || conversationTable == "" {
		panic("calls: table names cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &Store{
		client:            client,
		callsTable:        callsTable,
		conversationTable: conversationTable,
		logger:            logger,
	}
}

// RecordMissedCall upserts a pending missed-call record keyed by
// CallSid. Status callbacks can arrive more than once; the last write
// wins and the record stays Pending until the follow-up resolves it.
func (s *Store) RecordMissedCall(ctx context.Context, rec *MissedCallRecord) error {
	if rec == nil {
		return errors.New("calls: record cannot be nil")
	}
	if rec.CallSid == "" || rec.CallerNumber == "" || rec.BusinessLine == "" {
		return errors.New("calls: callSid, callerNumber and businessLine are required")
	}
	now := time.Now().UTC()
	rec.Status = StatusPending
	rec.CallerLine = CallerLineKey(rec.CallerNumber, rec.BusinessLine)
	rec.CreatedAt = now.Format(time.RFC3339Nano)
	rec.UpdatedAt = rec.CreatedAt

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("calls: failed to marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.callsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("calls: failed to persist record: %w", err)
	}
	return nil
}

// FindByCallSid fetches a missed call by its CallSid.
func (s *Store) FindByCallSid(ctx context.Context, callSid string) (*MissedCallRecord, error) {
	if callSid == "" {
		return nil, errors.New("calls: callSid required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.callsTable),
		Key: map[string]types.AttributeValue{
			"callSid": &types.AttributeValueMemberS{Value: callSid},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calls: failed to fetch record: %w", err)
	}
	if out.Item == nil {
		return nil, ErrCallNotFound
	}

	var rec MissedCallRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("calls: failed to decode record: %w", err)
	}
	return &rec, nil
}

// FindByCallSidWithRetry looks a record up by CallSid, retrying on
// ErrCallNotFound to absorb the write lag between the status callback
// and the follow-up trigger. If every attempt misses it falls back to
// the caller's most recent missed call on the same line.
func (s *Store) FindByCallSidWithRetry(ctx context.Context, callSid, caller, line string, attempts int, delay time.Duration) (*MissedCallRecord, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		rec, err := s.FindByCallSid(ctx, callSid)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrCallNotFound) {
			return nil, err
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	if caller == "" || line == "" {
		return nil, lastErr
	}
	s.logger.Warn("call not found by sid, falling back to caller lookup",
		"call_sid", callSid, "caller", caller)
	rec, err := s.FindLatestByCallerAndLine(ctx, caller, line)
	if err != nil {
		return nil, lastErr
	}
	return rec, nil
}

// FindLatestByCallerAndLine returns the most recent missed call from a
// caller to a business line via the caller-line-index GSI.
func (s *Store) FindLatestByCallerAndLine(ctx context.Context, caller, line string) (*MissedCallRecord, error) {
	if caller == "" || line == "" {
		return nil, errors.New("calls: caller and line required")
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.callsTable),
		IndexName:              aws.String(callerLineIndexName),
		KeyConditionExpression: aws.String("callerLine = :cl"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cl": &types.AttributeValueMemberS{Value: CallerLineKey(caller, line)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("calls: caller lookup failed: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrCallNotFound
	}

	var rec MissedCallRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("calls: failed to decode record: %w", err)
	}
	return &rec, nil
}

// ListByClient returns a client's missed calls, newest first.
func (s *Store) ListByClient(ctx context.Context, clientID string, limit int32) ([]MissedCallRecord, error) {
	if clientID == "" {
		return nil, errors.New("calls: clientID required")
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.callsTable),
		IndexName:              aws.String(clientIndexName),
		KeyConditionExpression: aws.String("clientId = :cid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cid": &types.AttributeValueMemberS{Value: clientID},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(limit)
	}
	out, err := s.client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("calls: client lookup failed: %w", err)
	}

	records := make([]MissedCallRecord, 0, len(out.Items))
	for _, item := range out.Items {
		var rec MissedCallRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("calls: failed to decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarkCompleted records the sent follow-up text against the call.
func (s *Store) MarkCompleted(ctx context.Context, callSid, followUpText, messageSid string) error {
	if callSid == "" {
		return errors.New("calls: callSid required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.updateCall(
		ctx,
		callSid,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(StatusCompleted)},
			":text":    &types.AttributeValueMemberS{Value: followUpText},
			":msgSid":  &types.AttributeValueMemberS{Value: messageSid},
			":error":   &types.AttributeValueMemberS{Value: ""},
			":sentAt":  &types.AttributeValueMemberS{Value: now},
			":updated": &types.AttributeValueMemberS{Value: now},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, followUpText = :text, messageSid = :msgSid, #error = :error, followUpSentAt = :sentAt, #updated = :updated",
	)
}

// MarkFailed records a terminal pipeline failure against the call.
func (s *Store) MarkFailed(ctx context.Context, callSid, errMsg string) error {
	if callSid == "" {
		return errors.New("calls: callSid required")
	}
	return s.updateCall(
		ctx,
		callSid,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(StatusFailed)},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #error = :error, #updated = :updated",
	)
}

// SetVoicemailURL attaches the stored recording to the call.
func (s *Store) SetVoicemailURL(ctx context.Context, callSid, url string) error {
	if callSid == "" {
		return errors.New("calls: callSid required")
	}
	return s.updateCall(
		ctx,
		callSid,
		map[string]types.AttributeValue{
			":url":     &types.AttributeValueMemberS{Value: url},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#updated": "updatedAt",
		},
		"SET voicemailUrl = :url, #updated = :updated",
	)
}

// AppendConversationTurn writes one turn of the text thread.
func (s *Store) AppendConversationTurn(ctx context.Context, turn *ConversationTurn) error {
	if turn == nil {
		return errors.New("calls: turn cannot be nil")
	}
	if turn.CallSid == "" || turn.Body == "" {
		return errors.New("calls: callSid and body are required")
	}
	if turn.Timestamp == "" {
		turn.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if turn.TurnKey == "" {
		at, err := time.Parse(time.RFC3339Nano, turn.Timestamp)
		if err != nil {
			return fmt.Errorf("calls: bad turn timestamp: %w", err)
		}
		turn.TurnKey = TurnKeyFor(at, turn.Sequence)
	}

	item, err := attributevalue.MarshalMap(turn)
	if err != nil {
		return fmt.Errorf("calls: failed to marshal turn: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.conversationTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("calls: failed to persist turn: %w", err)
	}
	return nil
}

// ListConversation returns every turn for a call in chronological order.
func (s *Store) ListConversation(ctx context.Context, callSid string) ([]ConversationTurn, error) {
	if callSid == "" {
		return nil, errors.New("calls: callSid required")
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.conversationTable),
		KeyConditionExpression: aws.String("callSid = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: callSid},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calls: conversation lookup failed: %w", err)
	}

	turns := make([]ConversationTurn, 0, len(out.Items))
	for _, item := range out.Items {
		var turn ConversationTurn
		if err := attributevalue.UnmarshalMap(item, &turn); err != nil {
			return nil, fmt.Errorf("calls: failed to decode turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// LastConversationTurn returns the most recent turn for a call, or nil
// when the thread is empty.
func (s *Store) LastConversationTurn(ctx context.Context, callSid string) (*ConversationTurn, error) {
	if callSid == "" {
		return nil, errors.New("calls: callSid required")
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.conversationTable),
		KeyConditionExpression: aws.String("callSid = :sid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid": &types.AttributeValueMemberS{Value: callSid},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("calls: conversation lookup failed: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var turn ConversationTurn
	if err := attributevalue.UnmarshalMap(out.Items[0], &turn); err != nil {
		return nil, fmt.Errorf("calls: failed to decode turn: %w", err)
	}
	return &turn, nil
}

func (s *Store) updateCall(ctx context.Context, callSid string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.callsTable),
		Key: map[string]types.AttributeValue{
			"callSid": &types.AttributeValueMemberS{Value: callSid},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(callSid)"),
	})
	if err != nil {
		return fmt.Errorf("calls: failed to update call %s: %w", callSid, err)
	}
	return nil
}
