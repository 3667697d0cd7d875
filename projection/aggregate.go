package projection

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/jacentio/notebook/internal/keys"
	"github.com/jacentio/notebook/internal/multimap"
	"github.com/jacentio/notebook/store"
)

// Option configures aggregation.
type Option func(*options)

type options struct {
	orderByCreated bool
}

// OrderByCreated sorts documents, groups and notes by creation time, then
// identity. Without it the output follows the input order, which the store
// does not keep stable across calls.
func OrderByCreated() Option {
	return func(o *options) { o.orderByCreated = true }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Aggregate rebuilds document hierarchies from flat items.
//
// Items are bucketed by type and children are indexed by their parent
// pointer in one pass; each document then collects its groups and each
// group its notes from that index. Children whose parent matches nothing
// are dropped. Items of unknown type are ignored. Empty input yields an
// empty result.
func Aggregate(items []store.Item, opts ...Option) ([]Document, error) {
	o := buildOptions(opts)

	var docs, owned []store.Item
	for _, it := range items {
		kind, err := kindOf(it)
		if err != nil {
			return nil, err
		}
		switch kind {
		case keys.KindDocument:
			docs = append(docs, it)
		case keys.KindGroup, keys.KindNote:
			if _, err := it.StringAttr(store.AttrParent); err != nil {
				return nil, err
			}
			owned = append(owned, it)
		}
	}
	children := multimap.GroupBy(owned, func(it store.Item) (string, bool) {
		parent, err := it.StringAttr(store.AttrParent)
		return parent, err == nil
	})

	out := make([]Document, 0, len(docs))
	for _, it := range docs {
		doc, err := assemble(it, children)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}

	if o.orderByCreated {
		sortDocuments(out)
	}
	return out, nil
}

// AggregateOne rebuilds a single document. It fails with store.ErrNotFound
// when items hold no document.
func AggregateOne(items []store.Item, opts ...Option) (Document, error) {
	docs, err := Aggregate(items, opts...)
	if err != nil {
		return Document{}, err
	}
	if len(docs) == 0 {
		return Document{}, fmt.Errorf("%w: no document among %d items", store.ErrNotFound, len(items))
	}
	return docs[0], nil
}

func assemble(it store.Item, children *multimap.Index[string, store.Item]) (Document, error) {
	doc, err := decodeDocument(it)
	if err != nil {
		return Document{}, err
	}

	doc.Groups = []Group{}
	for _, gi := range children.Get(it.Key().Sort) {
		if !owns(keys.KindDocument, gi) {
			continue
		}
		g, err := decodeGroup(gi)
		if err != nil {
			return Document{}, err
		}

		g.Notes = []Note{}
		for _, ni := range children.Get(gi.Key().Sort) {
			if !owns(keys.KindGroup, ni) {
				continue
			}
			n, err := decodeNote(ni)
			if err != nil {
				return Document{}, err
			}
			g.Notes = append(g.Notes, n)
		}
		doc.Groups = append(doc.Groups, g)
	}
	return doc, nil
}

// ownership is the graph shared with the delete cascade.
var ownership = Relationships()

// owns reports whether a parent of kind parent may hold child.
func owns(parent keys.Kind, child store.Item) bool {
	kind, err := kindOf(child)
	return err == nil && ownership.Owns(string(parent), string(kind))
}

func byCreated(aCreated int64, aID string, bCreated int64, bID string) int {
	if c := cmp.Compare(aCreated, bCreated); c != 0 {
		return c
	}
	return cmp.Compare(aID, bID)
}

func sortDocuments(docs []Document) {
	slices.SortStableFunc(docs, func(a, b Document) int {
		return byCreated(a.Created, a.ID, b.Created, b.ID)
	})
	for i := range docs {
		groups := docs[i].Groups
		slices.SortStableFunc(groups, func(a, b Group) int {
			return byCreated(a.Created, a.ID, b.Created, b.ID)
		})
		for j := range groups {
			slices.SortStableFunc(groups[j].Notes, func(a, b Note) int {
				return byCreated(a.Created, a.ID, b.Created, b.ID)
			})
		}
	}
}
