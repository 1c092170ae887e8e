package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
)

// ErrNotFound is returned by MarkDone/MarkFailed for keys that were never claimed.
var ErrNotFound = errors.New("idempotency record not found")

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	ttlWindow  time.Duration // TTL window when creating entries
	// staleAfter is how long an IN_PROGRESS record is honoured before
	// Begin may reclaim it. Zero disables reclaiming.
	staleAfter time.Duration
	nowFunc    func() time.Time
}

// DefaultStaleAfter is longer than any API or worker invocation may run.
const DefaultStaleAfter = 15 * time.Minute

// NewStore returns a configured Store.
// ttlWindow: TTL window for new entries (e.g., 48*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		ttlWindow:  ttlWindow,
		staleAfter: DefaultStaleAfter,
		nowFunc:    time.Now,
	}
}

// WithStaleAfter sets how long an unfinished attempt blocks new ones.
func (s *Store) WithStaleAfter(d time.Duration) *Store {
	s.staleAfter = d
	return s
}

// CreateIfNotExists creates a record with status IN_PROGRESS if the key does not exist.
// Returns (true, nil) if created, (false, nil) if the key already exists.
func (s *Store) CreateIfNotExists(ctx context.Context, key, resourceID string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		ResourceID:     resourceID,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Begin claims key for a new attempt. It returns (nil, nil) when the caller
// owns the attempt: the key is new, the previous attempt FAILED, or the
// previous attempt stayed IN_PROGRESS for longer than the stale window (its
// owner died before recording an outcome). Otherwise it returns the existing
// record for the caller to replay or reject.
func (s *Store) Begin(ctx context.Context, key, resourceID string) (*Record, error) {
	created, err := s.CreateIfNotExists(ctx, key, resourceID)
	if err != nil {
		return nil, err
	}
	if created {
		return nil, nil
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// expired between the put and the read
		return s.Begin(ctx, key, resourceID)
	}
	if !s.reclaimable(rec) {
		return rec, nil
	}

	reclaimed, err := s.reclaim(ctx, rec, resourceID)
	if err != nil {
		return nil, err
	}
	if reclaimed {
		return nil, nil
	}
	return s.Get(ctx, key)
}

func (s *Store) reclaimable(rec *Record) bool {
	switch rec.Status {
	case StatusFailed:
		return true
	case StatusInProgress:
		return s.staleAfter > 0 && s.nowFunc().Sub(rec.UpdatedAt) >= s.staleAfter
	default:
		return false
	}
}

// reclaim moves prev back to a fresh IN_PROGRESS attempt. The write is
// conditioned on prev being unchanged, so only one concurrent caller wins.
func (s *Store) reclaim(ctx context.Context, prev *Record, resourceID string) (bool, error) {
	updatedAt, err := attributevalue.Marshal(prev.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("marshal updated_at: %w", err)
	}
	now := s.nowFunc()
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      recordKey(prev.IdempotencyKey),
		ConditionExpression:      awsString("#s = :prev AND updated_at = :prevua"),
		UpdateExpression:         awsString("SET #s = :ip, resource_id = :rid, updated_at = :ua, expires_at = :exp"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prev":   &types.AttributeValueMemberS{Value: prev.Status},
			":prevua": updatedAt,
			":ip":     &types.AttributeValueMemberS{Value: StatusInProgress},
			":rid":    &types.AttributeValueMemberS{Value: resourceID},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":exp":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("update item (reclaim): %w", err)
	}
	return true, nil
}

// Get retrieves a record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       recordKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores a small response body & status
// so later retries can replay it.
func (s *Store) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      recordKey(key),
		ConditionExpression:      awsString("attribute_exists(idempotency_key)"),
		UpdateExpression:         awsString("SET #s = :done, response_body = :rb, response_status = :rs, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the record as FAILED with a note. A FAILED key may be
// reclaimed by the next Begin.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      recordKey(key),
		ConditionExpression:      awsString("attribute_exists(idempotency_key)"),
		UpdateExpression:         awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func awsString(s string) *string { return &s }
