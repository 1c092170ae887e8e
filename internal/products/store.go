package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
)

var (
	ErrNotFound = errors.New("product not found")
	// ErrNotOwned means the product exists but belongs to another seller.
	ErrNotOwned = errors.New("product not owned by caller")
)

// ownerCondition guards every mutation: the product must exist and belong to :uid.
const ownerCondition = "attribute_exists(product_id) AND user_id = :uid"

// batchGetLimit is the DynamoDB BatchGetItem key limit.
const batchGetLimit = 100

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new products Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

func (s *Store) Create(ctx context.Context, p Product) error {
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_id)"),
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches a product by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
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
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// GetOwned fetches a product and checks that userID owns it.
func (s *Store) GetOwned(ctx context.Context, id, userID string) (*Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if p.UserID != userID {
		return nil, ErrNotOwned
	}
	return p, nil
}

// List returns every product, following scan pagination.
func (s *Store) List(ctx context.Context) ([]Product, error) {
	out := []Product{}
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var items []Product
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

// Update replaces the editable fields of p. The write only succeeds when
// p.UserID still owns the product.
func (s *Store) Update(ctx context.Context, p Product) (*Product, error) {
	image, err := attributevalue.Marshal(p.Image)
	if err != nil {
		return nil, fmt.Errorf("marshal image list: %w", err)
	}
	// name and date are reserved words
	input := &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(p.ID),
		UpdateExpression:    awsString("SET #n = :n, description = :desc, category = :c, price = :p, offer_price = :o, image = :img, #d = :d"),
		ConditionExpression: awsString(ownerCondition),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
			"#d": "date",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":    &types.AttributeValueMemberS{Value: p.Name},
			":desc": &types.AttributeValueMemberS{Value: p.Description},
			":c":    &types.AttributeValueMemberS{Value: p.Category},
			":p":    numberValue(p.Price),
			":o":    numberValue(p.OfferPrice),
			":img":  image,
			":d":    &types.AttributeValueMemberN{Value: strconv.FormatInt(p.Date, 10)},
			":uid":  &types.AttributeValueMemberS{Value: p.UserID},
		},
		ReturnValues: types.ReturnValueAllNew,
	}
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return nil, ErrNotOwned
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var updated Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &updated, nil
}

// Delete removes a product owned by userID.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 key(id),
		ConditionExpression: awsString(ownerCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return ErrNotOwned
		}
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// GetMany fetches products by id. Missing ids are absent from the result.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]Product, error) {
	out := map[string]Product{}
	keys := uniqueKeys(ids)
	for start := 0; start < len(keys); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(keys) {
			end = len(keys)
		}
		request := map[string]types.KeysAndAttributes{
			s.tableName: {Keys: keys[start:end]},
		}
		// unprocessed keys are retried until DynamoDB drains them
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt == 3 {
				return nil, errors.New("batch get: unprocessed keys remain")
			}
			res, err := s.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get item: %w", err)
			}
			var items []Product
			if err := attributevalue.UnmarshalListOfMaps(res.Responses[s.tableName], &items); err != nil {
				return nil, fmt.Errorf("unmarshal products: %w", err)
			}
			for _, p := range items {
				out[p.ID] = p
			}
			request = res.UnprocessedKeys
		}
	}
	return out, nil
}

func uniqueKeys(ids []string) []map[string]types.AttributeValue {
	seen := map[string]bool{}
	keys := make([]map[string]types.AttributeValue, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, key(id))
	}
	return keys
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

func numberValue(f float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

func awsString(s string) *string { return &s }
