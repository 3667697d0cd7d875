// Package memstore is an in-memory store.Gateway for tests and local runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jacentio/notebook/store"
)

const tableName = "memory"

// Op names a gateway operation for failure injection.
type Op string

const (
	OpScan          Op = "scan"
	OpQuery         Op = "query"
	OpGet           Op = "get"
	OpPut           Op = "put"
	OpTransactWrite Op = "transact-write"
	OpSoftDelete    Op = "soft-delete"
)

// Store keeps items in a map guarded by a mutex. TransactWrite evaluates
// every condition before applying any write.
type Store struct {
	mu    sync.Mutex
	items map[store.Key]store.Item
	fail  map[Op][]error
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		items: make(map[store.Key]store.Item),
		fail:  make(map[Op][]error),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailNext makes the next call of op return err, wrapped as store.ErrGateway.
// Calls queue up: each injected error is consumed once.
func (s *Store) FailNext(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = append(s.fail[op], err)
}

// Seed inserts items as-is, bypassing conditions.
func (s *Store) Seed(items ...store.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.Key()] = it.Clone()
	}
}

// Items returns a copy of every stored item, deleted ones included,
// ordered by key.
func (s *Store) Items() []store.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Len returns the number of stored items, deleted ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// injected pops a queued failure for op. Callers hold s.mu.
func (s *Store) injected(op Op, key store.Key) error {
	queue := s.fail[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	s.fail[op] = queue[1:]
	return store.WrapGatewayError(string(op), tableName, key, err)
}

// cancelled reports a context error the way the DynamoDB gateway does.
func cancelled(op Op, key store.Key, err error) error {
	return store.WrapGatewayError(string(op), tableName, key, err)
}

// Scan returns the active items in map order, which is unspecified.
func (s *Store) Scan(ctx context.Context) ([]store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(OpScan, store.Key{}, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpScan, store.Key{}); err != nil {
		return nil, err
	}

	out := make([]store.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	return store.FilterActive(out, s.now().Unix()), nil
}

func (s *Store) Query(ctx context.Context, partition string, filter *store.Filter) ([]store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(OpQuery, store.Key{Partition: partition}, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpQuery, store.Key{Partition: partition}); err != nil {
		return nil, err
	}

	var out []store.Item
	for key, it := range s.items {
		if key.Partition == partition && filter.Match(it) {
			out = append(out, it.Clone())
		}
	}
	return store.FilterActive(out, s.now().Unix()), nil
}

func (s *Store) GetItem(ctx context.Context, key store.Key, _ bool) (store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(OpGet, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpGet, key); err != nil {
		return nil, err
	}

	it, ok := s.items[key]
	if !ok || store.IsDeleted(it, s.now().Unix()) {
		return nil, &store.OpError{Op: string(OpGet), Table: tableName, Key: key, Err: store.ErrNotFound}
	}
	return it.Clone(), nil
}

func (s *Store) PutItem(ctx context.Context, item store.Item) error {
	if err := ctx.Err(); err != nil {
		return cancelled(OpPut, item.Key(), err)
	}
	if err := store.ValidateItem(item); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpPut, item.Key()); err != nil {
		return err
	}
	s.items[item.Key()] = item.Clone()
	return nil
}

func (s *Store) TransactWrite(ctx context.Context, writes []store.Write) error {
	if err := ctx.Err(); err != nil {
		return cancelled(OpTransactWrite, store.Key{}, err)
	}
	if len(writes) == 0 {
		return nil
	}
	if err := store.ValidateWrites(writes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpTransactWrite, store.Key{}); err != nil {
		return err
	}

	now := s.now().Unix()
	var failed []int
	for i, w := range writes {
		if !w.Cond.Holds(s.items[w.Key()], now) {
			failed = append(failed, i)
		}
	}
	if len(failed) > 0 {
		return &store.TransactionError{Table: tableName, Failed: failed}
	}

	for _, w := range writes {
		if w.Put != nil {
			s.items[w.Key()] = w.Put.Clone()
		}
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, key store.Key, ttl int64) error {
	if err := ctx.Err(); err != nil {
		return cancelled(OpSoftDelete, key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpSoftDelete, key); err != nil {
		return err
	}

	it, ok := s.items[key]
	if !ok {
		return nil
	}
	if _, deleted := it[store.AttrTTL].AsNumber(); deleted {
		return nil
	}
	it = it.Clone()
	version, _ := it[store.AttrVersion].AsNumber()
	it[store.AttrVersion] = store.N(version + 1)
	it[store.AttrTTL] = store.N(ttl)
	s.items[key] = it
	return nil
}
