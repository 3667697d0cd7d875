// Package stream provides DynamoDB Streams handlers for cascade operations.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/jacentio/notebook/store"
)

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	gw       store.Gateway
	registry *store.Registry
	logger   *zap.Logger
}

// NewHandler creates a new stream handler. registry names the child
// partitions of each parent type.
func NewHandler(gw store.Gateway, registry *store.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = store.NewRegistry()
	}
	for _, rel := range registry.AllRelationships() {
		logger.Debug("cascade relationship",
			zap.String("parent", rel.ParentType),
			zap.String("child", rel.ChildType),
			zap.String("parentKeyAttr", rel.ParentKeyAttr),
		)
	}
	return &Handler{
		gw:       gw,
		registry: registry,
		logger:   logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events to propagate TTL to children.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, &record); err != nil {
			h.logger.Error("failed to process record",
				zap.String("eventID", record.EventID),
				zap.Error(err),
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	// Only process MODIFY events where TTL was added
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, store.AttrTTL)
	newTTL := getNumberAttr(record.Change.NewImage, store.AttrTTL)

	// Only process when TTL is newly set (was absent/0, now present)
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	key, err := keyFromImage(record.Change.NewImage)
	if err != nil {
		// Retrying cannot fix the image.
		h.logger.Warn("skipping record", zap.String("eventID", record.EventID), zap.Error(err))
		return nil
	}

	if !h.registry.HasChildren(key.Partition) {
		h.logger.Debug("no child partitions", zap.Stringer("key", key))
		return nil
	}

	h.logger.Info("processing cascade delete",
		zap.Stringer("key", key),
		zap.Int64("ttl", newTTL),
	)

	// Only direct children: their own TTL update emits the next record.
	// A redelivered record only reaches the children still active.
	children, failed, err := h.softDeleteChildren(ctx, key, newTTL)
	if err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("cascade %s: %d of %d children failed: %w",
			key, len(failed), len(failed)+len(children), errors.Join(failed...))
	}

	h.logger.Info("cascade delete completed",
		zap.Stringer("key", key),
		zap.Int("childrenProcessed", len(children)),
	)
	return nil
}

// Cascade soft-deletes every descendant of key with the given ttl, level by
// level, without relying on a stream. Failures on individual children are
// collected and returned together after the walk.
func (h *Handler) Cascade(ctx context.Context, key store.Key, ttl int64) error {
	var errs []error
	pending := []store.Key{key}
	processed := 0

	for len(pending) > 0 {
		parent := pending[0]
		pending = pending[1:]

		children, failed, err := h.softDeleteChildren(ctx, parent, ttl)
		errs = append(errs, failed...)
		if err != nil {
			errs = append(errs, err)
		}
		processed += len(children)
		for _, child := range children {
			if h.registry.HasChildren(child.Partition) {
				pending = append(pending, child)
			}
		}
	}

	h.logger.Info("cascade delete completed",
		zap.Stringer("key", key),
		zap.Int("descendantsProcessed", processed),
	)
	return errors.Join(errs...)
}

// softDeleteChildren sets ttl on the direct children of parent and returns
// the keys it deleted and the per-child failures, which are logged and
// skipped. err is set only when the children could not be listed.
func (h *Handler) softDeleteChildren(ctx context.Context, parent store.Key, ttl int64) (deleted []store.Key, failed []error, err error) {
	for _, rel := range h.registry.ChildrenOf(parent.Partition) {
		children, err := h.gw.Query(ctx, rel.ChildType, store.Equals(rel.ParentKeyAttr, parent.Sort))
		if err != nil {
			return deleted, failed, fmt.Errorf("query %s children of %s: %w", rel.ChildType, parent, err)
		}

		h.logger.Debug("found children to cascade",
			zap.Stringer("key", parent),
			zap.String("childType", rel.ChildType),
			zap.Int("childCount", len(children)),
		)

		// Set same TTL on all children (triggers their cascade via stream)
		for _, child := range children {
			if err := h.gw.SoftDelete(ctx, child.Key(), ttl); err != nil {
				h.logger.Warn("failed to set TTL on child",
					zap.Stringer("child", child.Key()),
					zap.Error(err),
				)
				failed = append(failed, err)
				continue
			}
			deleted = append(deleted, child.Key())
		}
	}
	return deleted, failed, nil
}

// keyFromImage reads the primary key of a stream image.
func keyFromImage(image map[string]events.DynamoDBAttributeValue) (store.Key, error) {
	key := store.Key{
		Partition: getStringAttr(image, store.AttrPK),
		Sort:      getStringAttr(image, store.AttrSK),
	}
	if key.Partition == "" || key.Sort == "" {
		return store.Key{}, fmt.Errorf("%w: stream image has no %s/%s", store.ErrMalformedItem, store.AttrPK, store.AttrSK)
	}
	return key, nil
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
