package projection

import (
	"fmt"

	"github.com/jacentio/notebook/internal/keys"
	"github.com/jacentio/notebook/store"
)

// Entity attribute names. Together with the gateway-managed attributes in
// package store they form the table's wire contract.
const (
	attrTitle       = "title"
	attrDescription = "description"
	attrCreated     = "created"
	attrLastUpdated = "lastUpdated"
	attrUpdatedBy   = "updatedBy"
	attrCreatedBy   = "createdBy"
)

// decoder reads attributes from one item and keeps the first failure, so a
// decode function can read every field and check the error once.
type decoder struct {
	item store.Item
	err  error
}

func (d *decoder) str(name string) string {
	if d.err != nil {
		return ""
	}
	s, err := d.item.StringAttr(name)
	d.err = err
	return s
}

func (d *decoder) optStr(name, def string) string {
	if d.err != nil {
		return ""
	}
	s, err := d.item.OptionalStringAttr(name, def)
	d.err = err
	return s
}

func (d *decoder) num(name string) int64 {
	if d.err != nil {
		return 0
	}
	n, err := d.item.NumberAttr(name)
	d.err = err
	return n
}

func (d *decoder) optNum(name string, def int64) int64 {
	if d.err != nil {
		return 0
	}
	n, err := d.item.OptionalNumberAttr(name, def)
	d.err = err
	return n
}

// identity strips the kind prefix from the key attribute name.
func (d *decoder) identity(name string, kind keys.Kind) string {
	sk := d.str(name)
	if d.err != nil {
		return ""
	}
	id, err := keys.Identity(kind, sk)
	if err != nil {
		d.err = fmt.Errorf("%w %s: attribute %q: %w", store.ErrMalformedItem, d.item.Key(), name, err)
	}
	return id
}

func decodeDocument(it store.Item) (Document, error) {
	d := decoder{item: it}
	doc := Document{
		ID:          d.identity(store.AttrSK, keys.KindDocument),
		Title:       d.str(attrTitle),
		Created:     d.num(attrCreated),
		Description: d.optStr(attrDescription, ""),
		UpdatedBy:   d.optStr(attrUpdatedBy, ""),
		Version:     d.optNum(store.AttrVersion, 0),
	}
	doc.LastUpdated = d.optNum(attrLastUpdated, doc.Created)
	if d.err != nil {
		return Document{}, d.err
	}
	return doc, nil
}

func decodeGroup(it store.Item) (Group, error) {
	d := decoder{item: it}
	g := Group{
		ID:          d.identity(store.AttrSK, keys.KindGroup),
		Parent:      d.identity(store.AttrParent, keys.KindDocument),
		Title:       d.str(attrTitle),
		Created:     d.num(attrCreated),
		Description: d.optStr(attrDescription, ""),
		UpdatedBy:   d.optStr(attrUpdatedBy, ""),
		Version:     d.optNum(store.AttrVersion, 0),
	}
	g.LastUpdated = d.optNum(attrLastUpdated, g.Created)
	if d.err != nil {
		return Group{}, d.err
	}
	return g, nil
}

func decodeNote(it store.Item) (Note, error) {
	d := decoder{item: it}
	n := Note{
		ID:          d.identity(store.AttrSK, keys.KindNote),
		Parent:      d.identity(store.AttrParent, keys.KindGroup),
		Title:       d.str(attrTitle),
		Created:     d.num(attrCreated),
		Description: d.optStr(attrDescription, ""),
		CreatedBy:   d.optStr(attrCreatedBy, ""),
		UpdatedBy:   d.optStr(attrUpdatedBy, ""),
	}
	if d.err != nil {
		return Note{}, d.err
	}
	return n, nil
}

func documentItem(doc Document) store.Item {
	k := keys.DocumentKey(doc.ID)
	return store.Item{
		store.AttrPK:      store.S(k.Partition),
		store.AttrSK:      store.S(k.Sort),
		store.AttrVersion: store.N(doc.Version),
		attrTitle:         store.S(doc.Title),
		attrDescription:   store.S(doc.Description),
		attrCreated:       store.N(doc.Created),
		attrLastUpdated:   store.N(doc.LastUpdated),
		attrUpdatedBy:     store.S(doc.UpdatedBy),
	}
}

func groupItem(g Group) store.Item {
	k := keys.GroupKey(g.ID, g.Parent)
	return store.Item{
		store.AttrPK:      store.S(k.Partition),
		store.AttrSK:      store.S(k.Sort),
		store.AttrParent:  store.S(k.Parent),
		store.AttrVersion: store.N(g.Version),
		attrTitle:         store.S(g.Title),
		attrDescription:   store.S(g.Description),
		attrCreated:       store.N(g.Created),
		attrLastUpdated:   store.N(g.LastUpdated),
		attrUpdatedBy:     store.S(g.UpdatedBy),
	}
}

func noteItem(n Note) store.Item {
	k := keys.NoteKey(n.ID, keys.GroupSK(n.Parent))
	return store.Item{
		store.AttrPK:     store.S(k.Partition),
		store.AttrSK:     store.S(k.Sort),
		store.AttrParent: store.S(k.Parent),
		attrTitle:        store.S(n.Title),
		attrDescription:  store.S(n.Description),
		attrCreated:      store.N(n.Created),
		attrCreatedBy:    store.S(n.CreatedBy),
		attrUpdatedBy:    store.S(n.UpdatedBy),
	}
}

// kindOf returns the type tag of an item.
func kindOf(it store.Item) (keys.Kind, error) {
	pk, err := it.StringAttr(store.AttrPK)
	if err != nil {
		return "", err
	}
	return keys.Kind(pk), nil
}
