package projection

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacentio/notebook/internal/keys"
	"github.com/jacentio/notebook/store"
)

// Reader serves assembled documents from a gateway.
type Reader struct {
	gw     store.Gateway
	logger *zap.Logger
	opts   []Option
}

// NewReader creates a Reader. opts apply to every aggregation.
func NewReader(gw store.Gateway, logger *zap.Logger, opts ...Option) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{gw: gw, logger: logger, opts: opts}
}

// ListDocuments assembles every document in the table. Documents share one
// partition, so this is a full-table scan.
func (r *Reader) ListDocuments(ctx context.Context) ([]Document, error) {
	items, err := r.gw.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs, err := Aggregate(items, r.opts...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	r.logger.Debug("listed documents", zap.Int("items", len(items)), zap.Int("documents", len(docs)))
	return docs, nil
}

// GetDocument assembles one document from a consistent read of the document
// and exact-match queries for its groups and their notes.
func (r *Reader) GetDocument(ctx context.Context, id string) (Document, error) {
	if err := checkID(keys.KindDocument, id); err != nil {
		return Document{}, err
	}
	k := keys.DocumentKey(id)

	doc, err := r.gw.GetItem(ctx, store.Key{Partition: k.Partition, Sort: k.Sort}, true)
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", id, err)
	}

	groups, err := r.gw.Query(ctx, string(keys.KindGroup), store.Equals(store.AttrParent, k.Sort))
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: groups: %w", id, err)
	}

	items := make([]store.Item, 0, 1+len(groups))
	items = append(items, doc)
	items = append(items, groups...)

	if len(groups) > 0 {
		groupSKs := make([]string, 0, len(groups))
		for _, g := range groups {
			groupSKs = append(groupSKs, g.Key().Sort)
		}
		notes, err := r.gw.Query(ctx, string(keys.KindNote), store.In(store.AttrParent, groupSKs...))
		if err != nil {
			return Document{}, fmt.Errorf("get document %s: notes: %w", id, err)
		}
		items = append(items, notes...)
	}

	return AggregateOne(items, r.opts...)
}
