// Package dynamo implements store.Backend on DynamoDB.
//
// Each collection is one table named TablePrefix + collection, keyed by the
// string attribute `_id`. Deletes are soft: the item receives a `_ttl`
// attribute set to the deletion time and is hidden from reads until the
// DynamoDB TTL sweeper removes it. Collection last-update markers live in a
// separate meta table keyed by `collection`.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/relval/model"
	"github.com/jacentio/relval/store"
)

const (
	// TTLAttr marks soft-deleted items.
	TTLAttr = "_ttl"

	// MetaKeyAttr is the hash key of the meta table.
	MetaKeyAttr = "collection"

	// MetaUpdatedAttr holds the last-update time in unix nanoseconds.
	MetaUpdatedAttr = "updated"
)

// Client is the subset of the DynamoDB API used by the backend.
type Client interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config configures the DynamoDB backend.
type Config struct {
	// MetaTable holds collection last-update markers.
	// Default: TablePrefix + "meta"
	MetaTable string

	// CreateTables creates missing tables when a collection is opened.
	CreateTables bool

	// TableWait bounds how long CreateTables waits for a table to become active.
	// Default: 2m
	TableWait time.Duration
}

func (c *Config) validate(storeCfg store.Config) {
	if c.MetaTable == "" {
		c.MetaTable = storeCfg.TablePrefix + "meta"
	}
	if c.TableWait <= 0 {
		c.TableWait = 2 * time.Minute
	}
}

// Backend serves collections from DynamoDB tables.
type Backend struct {
	client   Client
	config   Config
	storeCfg store.Config
	now      func() time.Time
}

// New creates a backend over client.
func New(client Client, config Config, storeCfg store.Config) *Backend {
	storeCfg.Validate()
	config.validate(storeCfg)
	return &Backend{
		client:   client,
		config:   config,
		storeCfg: storeCfg,
		now:      time.Now,
	}
}

// MetaTable returns the marker table name.
func (b *Backend) MetaTable() string { return b.config.MetaTable }

// TableName returns the table backing collection.
func (b *Backend) TableName(collection string) string {
	return b.storeCfg.TablePrefix + collection
}

// Collection returns the collection described by info.
func (b *Backend) Collection(ctx context.Context, info store.Info) (store.Collection, error) {
	if info.Name == "" {
		return nil, fmt.Errorf("%w: empty name", store.ErrUnknownCollection)
	}
	c := &Collection{b: b, info: info, table: b.TableName(info.Name)}
	if b.config.CreateTables {
		if err := b.EnsureTable(ctx, c.table, model.MetaID); err != nil {
			return nil, err
		}
		if err := b.EnsureTable(ctx, b.config.MetaTable, MetaKeyAttr); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// EnsureTable creates a pay-per-request table with a string hash key when it
// does not exist, then waits for it to become active.
func (b *Backend) EnsureTable(ctx context.Context, table, key string) error {
	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table %s: %w", table, err)
	}

	_, err = b.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(key), KeyType: types.KeyTypeHash},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(b.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, b.config.TableWait); err != nil {
		return fmt.Errorf("wait for table %s: %w", table, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (b *Backend) Close() error { return nil }

// Touch records at as the last update of collection.
func (b *Backend) Touch(ctx context.Context, collection string, at time.Time) error {
	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(b.config.MetaTable),
		Key: map[string]types.AttributeValue{
			MetaKeyAttr: &types.AttributeValueMemberS{Value: collection},
		},
		UpdateExpression:    aws.String("SET #updated = :at"),
		ConditionExpression: aws.String("attribute_not_exists(#updated) OR #updated < :at"),
		ExpressionAttributeNames: map[string]string{
			"#updated": MetaUpdatedAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberN{Value: strconv.FormatInt(at.UnixNano(), 10)},
		},
	})
	// Ignore condition failure - a newer marker is already stored
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("touch %s: %w", collection, err)
	}
	return nil
}

// Collection is one DynamoDB-backed collection.
type Collection struct {
	b     *Backend
	info  store.Info
	table string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.info.Name }

func (c *Collection) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		model.MetaID: &types.AttributeValueMemberS{Value: id},
	}
}

func (c *Collection) load(ctx context.Context, id string) (map[string]types.AttributeValue, bool, error) {
	out, err := c.b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.table),
		Key:            c.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w", c.info.Name, id, err)
	}
	if out.Item == nil || IsDeleted(out.Item, c.b.now()) {
		return out.Item, false, nil
	}
	return out.Item, true, nil
}

// Get loads one live document.
func (c *Collection) Get(ctx context.Context, id string) (store.Document, bool, error) {
	item, found, err := c.load(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	doc, err := Unmarshal(item)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// Exists reports whether a live document is stored under id.
func (c *Collection) Exists(ctx context.Context, id string) (bool, error) {
	_, found, err := c.load(ctx, id)
	return found, err
}

// Save writes doc with a condition on the revision read before the write.
func (c *Collection) Save(ctx context.Context, doc store.Document) error {
	id, err := store.RequireID(doc)
	if err != nil {
		return err
	}
	normalized, err := store.Normalize(doc)
	if err != nil {
		return err
	}

	item, exists, err := c.load(ctx, id)
	if err != nil {
		return err
	}
	var stored int64
	if exists {
		current, err := Unmarshal(item)
		if err != nil {
			return err
		}
		stored = store.Revision(current)
	}
	if err := store.CheckRevision(store.Revision(doc), stored, exists); err != nil {
		return err
	}

	at := c.b.now()
	av, err := Marshal(store.Stamp(normalized, id, stored+1, at))
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", c.info.Name, id, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      av,
		ExpressionAttributeNames: map[string]string{
			"#id":  model.MetaID,
			"#ttl": TTLAttr,
		},
	}
	if exists {
		input.ConditionExpression = aws.String("#rev = :expected AND attribute_not_exists(#ttl)")
		input.ExpressionAttributeNames["#rev"] = model.MetaRevision
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(stored, 10)},
		}
	} else {
		input.ConditionExpression = aws.String("attribute_not_exists(#id) OR attribute_exists(#ttl)")
	}

	if _, err := c.b.client.PutItem(ctx, input); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: %s/%s changed during save", store.ErrConcurrentModification, c.info.Name, id)
		}
		return fmt.Errorf("put %s/%s: %w", c.info.Name, id, err)
	}
	return c.b.Touch(ctx, c.info.Name, at)
}

// Delete soft-deletes doc by setting its TTL to now.
// This also increments the revision to fail concurrent saves.
func (c *Collection) Delete(ctx context.Context, doc store.Document) error {
	id, err := store.RequireID(doc)
	if err != nil {
		return err
	}
	now := c.b.now()
	_, err = c.b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.table),
		Key:                 c.key(id),
		UpdateExpression:    aws.String("SET #ttl = :now, #rev = #rev + :one"),
		ConditionExpression: aws.String("attribute_exists(#id) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#id":  model.MetaID,
			"#ttl": TTLAttr,
			"#rev": model.MetaRevision,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})

	// Ignore condition failure - missing or already deleted
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", c.info.Name, id, err)
	}
	return c.b.Touch(ctx, c.info.Name, now)
}

// Query scans the table with the plain comparisons pushed into the filter
// expression, then matches, sorts and pages client-side.
func (c *Collection) Query(ctx context.Context, q store.Query) ([]store.Document, int, error) {
	criteria, err := store.Compile(q, c.info, c.b.storeCfg)
	if err != nil {
		return nil, 0, err
	}

	filter := BuildFilter(criteria.Clauses, c.b.now())
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(c.table),
		FilterExpression:          aws.String(filter.Expression),
		ExpressionAttributeNames:  filter.Names,
		ExpressionAttributeValues: filter.Values,
		ConsistentRead:            aws.Bool(true),
	}

	now := c.b.now()
	var docs []store.Document
	paginator := dynamodb.NewScanPaginator(c.b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("scan %s: %w", c.info.Name, err)
		}
		for _, raw := range page.Items {
			if IsDeleted(raw, now) {
				continue
			}
			doc, err := Unmarshal(raw)
			if err != nil {
				return nil, 0, err
			}
			docs = append(docs, doc)
		}
	}

	page, total := criteria.Apply(docs)
	return page, total, nil
}

// LastUpdate reads the collection marker from the meta table.
func (c *Collection) LastUpdate(ctx context.Context) (time.Time, error) {
	out, err := c.b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.b.config.MetaTable),
		Key: map[string]types.AttributeValue{
			MetaKeyAttr: &types.AttributeValueMemberS{Value: c.info.Name},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("last update %s: %w", c.info.Name, err)
	}
	v, ok := out.Item[MetaUpdatedAttr].(*types.AttributeValueMemberN)
	if !ok {
		return time.Time{}, nil
	}
	nanos, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("last update %s: %w", c.info.Name, err)
	}
	return time.Unix(0, nanos), nil
}

// Marshal converts a document into a DynamoDB item.
func Marshal(doc store.Document) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(map[string]any(doc))
}

// Unmarshal converts a DynamoDB item into a document, dropping the TTL marker.
func Unmarshal(item map[string]types.AttributeValue) (store.Document, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	delete(doc, TTLAttr)
	normalized, err := store.Normalize(doc)
	if err != nil {
		return nil, err
	}
	return normalized, nil
}
