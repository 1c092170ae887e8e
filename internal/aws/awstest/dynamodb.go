// Package awstest provides in-memory stand-ins for the AWS clients used by
// this module. The DynamoDB fake understands the condition and update
// expressions the stores issue; it is not a general expression engine.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// FakeDynamo stores items per table: table -> pk value -> item.
type FakeDynamo struct {
	mu     sync.Mutex
	keys   map[string]string
	tables map[string]map[string]item

	// Errs injects a failure for the named operation ("PutItem", "Query", ...).
	Errs map[string]error
	// UnprocessedWrites makes the next N BatchWriteItem calls leave their
	// last request unprocessed.
	UnprocessedWrites int

	Calls map[string]int
}

// NewFakeDynamo creates a fake with the given table -> partition key names.
func NewFakeDynamo(tableKeys map[string]string) *FakeDynamo {
	f := &FakeDynamo{
		keys:   map[string]string{},
		tables: map[string]map[string]item{},
		Errs:   map[string]error{},
		Calls:  map[string]int{},
	}
	for t, k := range tableKeys {
		f.keys[t] = k
		f.tables[t] = map[string]item{}
	}
	return f
}

// Seed marshals v and stores it in table.
func (f *FakeDynamo) Seed(table string, v interface{}) error {
	m, err := attributevalue.MarshalMap(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pk, err := f.pkOf(table, m)
	if err != nil {
		return err
	}
	f.tables[table][pk] = copyItem(m)
	return nil
}

// Get unmarshals the stored item into out and reports whether it exists.
func (f *FakeDynamo) Get(table, pk string, out interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.tables[table][pk]
	if !ok {
		return false, nil
	}
	return true, attributevalue.UnmarshalMap(it, out)
}

// Len returns the number of items stored in table.
func (f *FakeDynamo) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *FakeDynamo) begin(op string) error {
	f.Calls[op]++
	return f.Errs[op]
}

func (f *FakeDynamo) table(name *string) (map[string]item, string, error) {
	if name == nil {
		return nil, "", errors.New("missing table name")
	}
	t, ok := f.tables[*name]
	if !ok {
		return nil, "", &types.ResourceNotFoundException{Message: name}
	}
	return t, f.keys[*name], nil
}

func (f *FakeDynamo) pkOf(table string, m item) (string, error) {
	attr, ok := f.keys[table]
	if !ok {
		return "", fmt.Errorf("unknown table %s", table)
	}
	v, ok := m[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("missing key %s for table %s", attr, table)
	}
	return v.Value, nil
}

func (f *FakeDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("PutItem"); err != nil {
		return nil, err
	}
	t, _, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pkOf(*in.TableName, in.Item)
	if err != nil {
		return nil, err
	}
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, t[pk])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	t[pk] = copyItem(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (f *FakeDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GetItem"); err != nil {
		return nil, err
	}
	t, _, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pkOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	it, ok := t[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(it)}, nil
}

func (f *FakeDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateItem"); err != nil {
		return nil, err
	}
	t, _, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pkOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	old := t[pk]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	next := copyItem(old)
	if next == nil {
		next = copyItem(in.Key)
	}
	if in.UpdateExpression != nil {
		if err := applySet(next, *in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	t[pk] = next

	out := &dyn.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew, types.ReturnValueUpdatedNew:
		out.Attributes = copyItem(next)
	case types.ReturnValueAllOld, types.ReturnValueUpdatedOld:
		out.Attributes = copyItem(old)
	}
	return out, nil
}

func (f *FakeDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DeleteItem"); err != nil {
		return nil, err
	}
	t, _, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	pk, err := f.pkOf(*in.TableName, in.Key)
	if err != nil {
		return nil, err
	}
	old, existed := t[pk]
	ok, err := evalCondition(in.ConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, old)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(t, pk)
	out := &dyn.DeleteItemOutput{}
	if existed && in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = copyItem(old)
	}
	return out, nil
}

// Query ignores the index and matches items whose attribute equals the key
// condition value.
func (f *FakeDynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Query"); err != nil {
		return nil, err
	}
	t, _, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, errors.New("missing key condition")
	}
	var out []item
	for _, pk := range sortedKeys(t) {
		ok, err := evalCondition(in.KeyConditionExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues, t[pk])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, copyItem(t[pk]))
		}
	}
	return &dyn.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

// Scan returns items ordered by partition key, paginated by Limit.
func (f *FakeDynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("Scan"); err != nil {
		return nil, err
	}
	t, keyAttr, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	keys := sortedKeys(t)
	start := 0
	if in.ExclusiveStartKey != nil {
		last := in.ExclusiveStartKey[keyAttr].(*types.AttributeValueMemberS).Value
		start = sort.SearchStrings(keys, last) + 1
	}
	end := len(keys)
	if in.Limit != nil && start+int(*in.Limit) < end {
		end = start + int(*in.Limit)
	}
	out := &dyn.ScanOutput{}
	for _, pk := range keys[start:end] {
		out.Items = append(out.Items, copyItem(t[pk]))
	}
	out.Count = int32(len(out.Items))
	if end < len(keys) {
		out.LastEvaluatedKey = item{keyAttr: &types.AttributeValueMemberS{Value: keys[end-1]}}
	}
	return out, nil
}

func (f *FakeDynamo) BatchGetItem(ctx context.Context, in *dyn.BatchGetItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("BatchGetItem"); err != nil {
		return nil, err
	}
	out := &dyn.BatchGetItemOutput{Responses: map[string][]map[string]types.AttributeValue{}}
	for name, ka := range in.RequestItems {
		t, _, err := f.table(&name)
		if err != nil {
			return nil, err
		}
		for _, k := range ka.Keys {
			pk, err := f.pkOf(name, k)
			if err != nil {
				return nil, err
			}
			if it, ok := t[pk]; ok {
				out.Responses[name] = append(out.Responses[name], copyItem(it))
			}
		}
	}
	return out, nil
}

func (f *FakeDynamo) BatchWriteItem(ctx context.Context, in *dyn.BatchWriteItemInput, optFns ...func(*dyn.Options)) (*dyn.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("BatchWriteItem"); err != nil {
		return nil, err
	}
	out := &dyn.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	leaveLast := f.UnprocessedWrites > 0
	if leaveLast {
		f.UnprocessedWrites--
	}
	for name, reqs := range in.RequestItems {
		t, _, err := f.table(&name)
		if err != nil {
			return nil, err
		}
		for i, req := range reqs {
			if leaveLast && i == len(reqs)-1 {
				out.UnprocessedItems[name] = append(out.UnprocessedItems[name], req)
				continue
			}
			switch {
			case req.PutRequest != nil:
				pk, err := f.pkOf(name, req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				t[pk] = copyItem(req.PutRequest.Item)
			case req.DeleteRequest != nil:
				pk, err := f.pkOf(name, req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(t, pk)
			}
		}
	}
	return out, nil
}

func (f *FakeDynamo) DescribeTable(ctx context.Context, in *dyn.DescribeTableInput, optFns ...func(*dyn.Options)) (*dyn.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("DescribeTable"); err != nil {
		return nil, err
	}
	if _, _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	return &dyn.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusActive}}, nil
}

// evalCondition supports clauses joined by AND of the forms
// attribute_exists(a), attribute_not_exists(a) and a = :v.
func evalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, it item) (bool, error) {
	if expr == nil || *expr == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, "attribute_not_exists("):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")"), names)
			if _, ok := it[attr]; ok {
				return false, nil
			}
		case strings.HasPrefix(clause, "attribute_exists("):
			attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")"), names)
			if _, ok := it[attr]; !ok {
				return false, nil
			}
		case strings.Contains(clause, " = "):
			parts := strings.SplitN(clause, " = ", 2)
			attr := resolveName(strings.TrimSpace(parts[0]), names)
			want, ok := values[strings.TrimSpace(parts[1])]
			if !ok {
				return false, fmt.Errorf("missing value %s", parts[1])
			}
			if got, ok := it[attr]; !ok || !reflect.DeepEqual(got, want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported condition %q", clause)
		}
	}
	return true, nil
}

// applySet handles "SET a = :a, #b = :b".
func applySet(it item, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "SET ") {
		return fmt.Errorf("unsupported update expression %q", expr)
	}
	for _, assign := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("bad assignment %q", assign)
		}
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		v, ok := values[strings.TrimSpace(parts[1])]
		if !ok {
			return fmt.Errorf("missing value %s", parts[1])
		}
		it[attr] = v
	}
	return nil
}

func resolveName(n string, names map[string]string) string {
	if strings.HasPrefix(n, "#") {
		if r, ok := names[n]; ok {
			return r
		}
	}
	return n
}

func copyItem(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func sortedKeys(t map[string]item) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
