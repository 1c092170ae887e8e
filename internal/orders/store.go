package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
)

const (
	// UserIndex is the GSI keyed by user_id.
	UserIndex = "user_id-index"

	// batchWriteLimit is the DynamoDB BatchWriteItem request limit.
	batchWriteLimit  = 25
	maxWriteAttempts = 3
)

// ErrUnprocessed is returned when DynamoDB keeps rejecting part of a batch.
var ErrUnprocessed = errors.New("batch write left unprocessed items")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	sleep     func(time.Duration)
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		sleep:     time.Sleep,
	}
}

// InsertBatch writes all orders with one BatchWriteItem per 25 orders and
// returns how many were written. Unprocessed items are resubmitted with a
// short backoff.
func (s *Store) InsertBatch(ctx context.Context, batch []Order) (int, error) {
	written := 0
	for start := 0; start < len(batch); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(batch) {
			end = len(batch)
		}

		reqs := make([]types.WriteRequest, 0, end-start)
		for _, o := range batch[start:end] {
			item, err := attributevalue.MarshalMap(o)
			if err != nil {
				return written, fmt.Errorf("marshal order %s: %w", o.ID, err)
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}

		pending := map[string][]types.WriteRequest{s.tableName: reqs}
		for attempt := 1; len(pending[s.tableName]) > 0; attempt++ {
			if attempt > maxWriteAttempts {
				return written, fmt.Errorf("%w: %d orders", ErrUnprocessed, len(pending[s.tableName]))
			}
			if attempt > 1 {
				s.sleep(time.Duration(attempt-1) * 100 * time.Millisecond)
			}
			sent := len(pending[s.tableName])
			out, err := s.client.BatchWriteItem(ctx, &dyn.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return written, fmt.Errorf("batch write item: %w", err)
			}
			pending = out.UnprocessedItems
			written += sent - len(pending[s.tableName])
		}
	}
	return written, nil
}

// ListByUser returns every order placed by userID.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	out := []Order{}
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(UserIndex),
			KeyConditionExpression: awsString("user_id = :uid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uid": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		var items []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	key := map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func awsString(s string) *string { return &s }
