package addresses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
)

// UserIndex is the GSI keyed by user_id.
const UserIndex = "user_id-index"

const batchGetLimit = 100

type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

// Create stores a new address. The caller assigns ID and UserID.
func (s *Store) Create(ctx context.Context, a Address) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(address_id)"),
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an address by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*Address, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	return &a, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string) ([]Address, error) {
	out := []Address{}
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
			return nil, fmt.Errorf("query addresses: %w", err)
		}
		var items []Address
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal addresses: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

// GetMany loads the addresses referenced by ids, keyed by id. Missing ids
// are simply absent from the result.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Address, error) {
	out := map[string]Address{}
	seen := map[string]bool{}
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, key(id))
	}

	for start := 0; start < len(keys); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(keys) {
			end = len(keys)
		}
		request := map[string]types.KeysAndAttributes{
			s.tableName: {Keys: keys[start:end]},
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt == 3 {
				return nil, errors.New("batch get: unprocessed keys remain")
			}
			res, err := s.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get item: %w", err)
			}
			var items []Address
			if err := attributevalue.UnmarshalListOfMaps(res.Responses[s.tableName], &items); err != nil {
				return nil, fmt.Errorf("unmarshal addresses: %w", err)
			}
			for _, a := range items {
				out[a.ID] = a
			}
			request = res.UnprocessedKeys
		}
	}
	return out, nil
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"address_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
