package store

import (
	"context"
	"fmt"
)

// Key is the primary key of an item: partition plus sort key.
type Key struct {
	Partition string
	Sort      string
}

func (k Key) String() string {
	return k.Partition + "/" + k.Sort
}

// Filter restricts a partition query to items whose attribute exactly
// equals one of Values. Matching is by equality, never by substring.
type Filter struct {
	Attr   string
	Values []string
}

// Equals returns a Filter matching attr == value.
func Equals(attr, value string) *Filter {
	return &Filter{Attr: attr, Values: []string{value}}
}

// In returns a Filter matching attr against any of values.
func In(attr string, values ...string) *Filter {
	return &Filter{Attr: attr, Values: values}
}

// Match reports whether item satisfies the filter. A nil filter matches all.
func (f *Filter) Match(item Item) bool {
	if f == nil {
		return true
	}
	s, ok := item[f.Attr].AsString()
	if !ok {
		return false
	}
	for _, v := range f.Values {
		if s == v {
			return true
		}
	}
	return false
}

// ConditionKind enumerates the preconditions a transactional write can carry.
type ConditionKind uint8

const (
	// CondNone applies the write unconditionally.
	CondNone ConditionKind = iota
	// CondNotExists requires that no item with the key exists.
	CondNotExists
	// CondActive requires the item to exist and not be soft-deleted.
	CondActive
	// CondVersion requires CondActive and version == Condition.Version.
	CondVersion
)

// Condition is a precondition evaluated against the current item.
type Condition struct {
	Kind    ConditionKind
	Version int64
}

// NotExists returns a CondNotExists condition.
func NotExists() Condition { return Condition{Kind: CondNotExists} }

// Active returns a CondActive condition.
func Active() Condition { return Condition{Kind: CondActive} }

// AtVersion returns a CondVersion condition.
func AtVersion(v int64) Condition { return Condition{Kind: CondVersion, Version: v} }

// Holds evaluates the condition against the current stored item, which is
// nil when absent. now is the unix time used for soft-delete checks.
func (c Condition) Holds(current Item, now int64) bool {
	switch c.Kind {
	case CondNone:
		return true
	case CondNotExists:
		return current == nil
	case CondActive:
		return current != nil && !IsDeleted(current, now)
	case CondVersion:
		if current == nil || IsDeleted(current, now) {
			return false
		}
		v, _ := current[AttrVersion].AsNumber()
		return v == c.Version
	}
	return false
}

// Write is one element of a transactional write. Exactly one of Put or
// Check is set: Put upserts the item, Check only asserts Cond on Check.
type Write struct {
	Put   Item
	Check *Key
	Cond  Condition
}

// PutIf returns a Write that upserts item when cond holds.
func PutIf(item Item, cond Condition) Write {
	return Write{Put: item, Cond: cond}
}

// CheckIf returns a Write that only asserts cond on key.
func CheckIf(key Key, cond Condition) Write {
	return Write{Check: &key, Cond: cond}
}

// Key returns the key the write targets.
func (w Write) Key() Key {
	if w.Check != nil {
		return *w.Check
	}
	return w.Put.Key()
}

func (w Write) validate() error {
	switch {
	case w.Put != nil && w.Check != nil:
		return fmt.Errorf("%w: write sets both Put and Check", ErrInvalidInput)
	case w.Put == nil && w.Check == nil:
		return fmt.Errorf("%w: write sets neither Put nor Check", ErrInvalidInput)
	case w.Put != nil:
		return ValidateItem(w.Put)
	}
	return nil
}

// ValidateWrites checks that every write is well formed and that no two
// writes target the same key.
func ValidateWrites(writes []Write) error {
	seen := make(map[Key]int, len(writes))
	for i, w := range writes {
		if err := w.validate(); err != nil {
			return fmt.Errorf("write %d: %w", i, err)
		}
		if j, dup := seen[w.Key()]; dup {
			return fmt.Errorf("%w: writes %d and %d both target %s", ErrInvalidInput, j, i, w.Key())
		}
		seen[w.Key()] = i
	}
	return nil
}

// ValidateItem checks that an item carries a string partition and sort key.
func ValidateItem(item Item) error {
	k := item.Key()
	if k.Partition == "" || k.Sort == "" {
		return fmt.Errorf("%w: item has no %s/%s key", ErrInvalidInput, AttrPK, AttrSK)
	}
	return nil
}

// Gateway is the storage contract the notebook core depends on.
//
// Soft-deleted items (ttl <= now) are invisible to Scan, Query and GetItem.
type Gateway interface {
	// Scan reads every active item in the table, unordered.
	Scan(ctx context.Context) ([]Item, error)

	// Query reads the active items of one partition, optionally filtered.
	Query(ctx context.Context, partition string, filter *Filter) ([]Item, error)

	// GetItem reads one item. Returns ErrNotFound if missing or deleted.
	GetItem(ctx context.Context, key Key, consistent bool) (Item, error)

	// PutItem upserts one item. The service writes through TransactWrite;
	// PutItem stays for seeding, migrations and other direct tooling.
	PutItem(ctx context.Context, item Item) error

	// TransactWrite applies all writes or none. A failed condition yields a
	// *TransactionError listing the failed write indices.
	TransactWrite(ctx context.Context, writes []Write) error

	// SoftDelete sets the item's ttl and bumps its version. Deleting an
	// already-deleted or missing item is a no-op.
	SoftDelete(ctx context.Context, key Key, ttl int64) error
}
