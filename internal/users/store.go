package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront-sync/internal/aws"
)

var (
	// ErrDuplicateUser is returned by Create when the id is already stored.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrUserNotFound is returned by Update when no document matches the id.
	ErrUserNotFound = errors.New("user not found")
)

// Store encapsulates operations on the users table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a new users Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
	}
}

// Create inserts a new user keyed by the provider-issued id.
func (s *Store) Create(ctx context.Context, u User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(user_id)"),
	})
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, u.ID)
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Update overwrites name, email and image of an existing user and returns
// the stored document.
func (s *Store) Update(ctx context.Context, u User) (*User, error) {
	// name is a reserved word
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      key(u.ID),
		UpdateExpression:         awsString("SET #n = :n, email = :e, image_url = :i"),
		ConditionExpression:      awsString("attribute_exists(user_id)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: u.Name},
			":e": &types.AttributeValueMemberS{Value: u.Email},
			":i": &types.AttributeValueMemberS{Value: u.ImageURL},
		},
		ReturnValues: types.ReturnValueAllNew,
	}
	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var cc *types.ConditionalCheckFailedException
		if errors.As(err, &cc) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, u.ID)
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var updated User
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &updated, nil
}

// Delete removes the user and reports whether a document existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          key(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	return len(out.Attributes) > 0, nil
}

// Get fetches a user by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, id string) (*User, error) {
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
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
