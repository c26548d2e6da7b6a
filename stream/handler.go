// Package stream provides DynamoDB Streams handlers that keep collection
// last-update markers current for writes made outside the store, such as
// TTL expiry of soft-deleted items.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// Marker records the last update of a collection.
type Marker interface {
	Touch(ctx context.Context, collection string, at time.Time) error
}

// Handler processes DynamoDB stream events for last-update markers.
type Handler struct {
	marker Marker
	tables map[string]string
	ttlKey string
	logger *slog.Logger
	now    func() time.Time
}

// Config configures a Handler.
type Config struct {
	// Tables maps table names to collection names. Events from other tables
	// are ignored.
	Tables map[string]string

	// TTLAttr is the soft-delete attribute; REMOVE events for items carrying
	// it are expiry sweeps of already-recorded deletes.
	// Default: "_ttl"
	TTLAttr string
}

// Tables maps prefix+collection table names back to their collections.
func Tables(prefix string, collections ...string) map[string]string {
	out := make(map[string]string, len(collections))
	for _, c := range collections {
		out[prefix+c] = c
	}
	return out
}

// NewHandler creates a new stream handler.
func NewHandler(m Marker, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTLAttr == "" {
		cfg.TTLAttr = "_ttl"
	}
	return &Handler{
		marker: m,
		tables: cfg.Tables,
		ttlKey: cfg.TTLAttr,
		logger: logger,
		now:    time.Now,
	}
}

// HandleChanges processes DynamoDB stream events and advances the marker of
// every touched collection to the newest change time in the batch.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleChanges(ctx context.Context, event events.DynamoDBEvent) error {
	latest := make(map[string]time.Time)
	for _, record := range event.Records {
		collection, at, ok := h.processRecord(record)
		if !ok {
			continue
		}
		if at.After(latest[collection]) {
			latest[collection] = at
		}
	}

	for collection, at := range latest {
		if err := h.marker.Touch(ctx, collection, at); err != nil {
			h.logger.Error("failed to update marker",
				"collection", collection,
				"error", err,
			)
			return fmt.Errorf("touch %s: %w", collection, err) // Will retry, eventually DLQ
		}
		h.logger.Debug("marker updated", "collection", collection, "at", at)
	}
	return nil
}

// processRecord returns the collection and change time of a relevant record.
func (h *Handler) processRecord(record events.DynamoDBEventRecord) (string, time.Time, bool) {
	table := TableFromARN(record.EventSourceArn)
	collection, ok := h.tables[table]
	if !ok {
		return "", time.Time{}, false
	}

	switch events.DynamoDBOperationType(record.EventName) {
	case events.DynamoDBOperationTypeInsert, events.DynamoDBOperationTypeModify:
	case events.DynamoDBOperationTypeRemove:
		// Expiry of a tombstone; the delete itself was already recorded
		if getNumberAttr(record.Change.OldImage, h.ttlKey) != 0 {
			return "", time.Time{}, false
		}
	default:
		return "", time.Time{}, false
	}

	at := record.Change.ApproximateCreationDateTime.Time
	if at.IsZero() {
		at = h.now()
	}

	h.logger.Debug("stream change",
		"eventID", record.EventID,
		"event", record.EventName,
		"collection", collection,
		"id", getStringAttr(record.Change.Keys, "_id"),
	)
	return collection, at, true
}

// TableFromARN extracts the table name from a table or stream ARN
// (arn:aws:dynamodb:region:account:table/NAME/stream/LABEL).
func TableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}
