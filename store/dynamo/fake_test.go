package dynamo

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/relval/model"
)

// fakeClient is an in-memory DynamoDB understanding only the condition
// expressions this package issues.
type fakeClient struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int
	scans    []*dynamodb.ScanInput
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		tables:   make(map[string]map[string]map[string]types.AttributeValue),
		pageSize: 2,
	}
}

func (f *fakeClient) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

func hashKey(key map[string]types.AttributeValue) string {
	for _, v := range key {
		if s, ok := v.(*types.AttributeValueMemberS); ok {
			return s.Value
		}
	}
	return ""
}

func number(item map[string]types.AttributeValue, attr string) (int64, bool) {
	n, ok := item[attr].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func (f *fakeClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.table(*in.TableName)[hashKey(in.Key)]}, nil
}

func (f *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	id := in.Item[model.MetaID].(*types.AttributeValueMemberS).Value
	current, exists := t[id]
	_, tombstoned := current[TTLAttr]

	switch aws.ToString(in.ConditionExpression) {
	case "#rev = :expected AND attribute_not_exists(#ttl)":
		rev, _ := number(current, model.MetaRevision)
		expected, _ := number(in.ExpressionAttributeValues, ":expected")
		if !exists || tombstoned || rev != expected {
			return nil, conditionFailed()
		}
	case "attribute_not_exists(#id) OR attribute_exists(#ttl)":
		if exists && !tombstoned {
			return nil, conditionFailed()
		}
	}
	t[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(*in.TableName)
	id := hashKey(in.Key)
	current, exists := t[id]

	switch aws.ToString(in.UpdateExpression) {
	case "SET #updated = :at":
		at, _ := number(in.ExpressionAttributeValues, ":at")
		if prev, ok := number(current, MetaUpdatedAttr); ok && prev >= at {
			return nil, conditionFailed()
		}
		item := map[string]types.AttributeValue{}
		for k, v := range in.Key {
			item[k] = v
		}
		item[MetaUpdatedAttr] = in.ExpressionAttributeValues[":at"]
		t[id] = item
	case "SET #ttl = :now, #rev = #rev + :one":
		if _, tombstoned := current[TTLAttr]; !exists || tombstoned {
			return nil, conditionFailed()
		}
		rev, _ := number(current, model.MetaRevision)
		item := map[string]types.AttributeValue{}
		for k, v := range current {
			item[k] = v
		}
		item[TTLAttr] = in.ExpressionAttributeValues[":now"]
		item[model.MetaRevision] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rev+1, 10)}
		t[id] = item
	default:
		return nil, fmt.Errorf("fake: unsupported update %q", aws.ToString(in.UpdateExpression))
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

// Scan returns every item in key order, paged. Filters are not evaluated.
func (f *fakeClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, in)
	t := f.table(*in.TableName)

	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := hashKey(in.ExclusiveStartKey)
		start = sort.SearchStrings(ids, after) + 1
	}
	end := start + f.pageSize
	if end > len(ids) {
		end = len(ids)
	}

	out := &dynamodb.ScanOutput{}
	for _, id := range ids[start:end] {
		out.Items = append(out.Items, t[id])
	}
	if end < len(ids) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			model.MetaID: &types.AttributeValueMemberS{Value: ids[end-1]},
		}
	}
	return out, nil
}

func (f *fakeClient) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table(*in.TableName)
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[*in.TableName]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}
