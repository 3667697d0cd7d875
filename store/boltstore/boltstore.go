// Package boltstore implements store.Gateway on an embedded bbolt file.
//
// Items live in a single bucket under the key PK + 0x00 + SK, encoded as
// JSON. A partition query is a prefix scan. TransactWrite runs inside one
// read-write bbolt transaction, so it is atomic and serialized with every
// other writer.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jacentio/notebook/store"
)

var itemsBucket = []byte("items")

const keySeparator = 0x00

// Config holds configuration for a bbolt-backed Store.
type Config struct {
	Path    string
	Timeout time.Duration
}

// Store is a store.Gateway backed by bbolt.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at config.Path.
func Open(config Config, opts ...Option) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("%w: bolt path is required", store.ErrInvalidInput)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = time.Second
	}

	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt store at %s: %w", config.Path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(itemsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure items bucket exists: %w", err)
	}

	s := &Store{db: db, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

func encodeKey(key store.Key) []byte {
	b := make([]byte, 0, len(key.Partition)+1+len(key.Sort))
	b = append(b, key.Partition...)
	b = append(b, keySeparator)
	return append(b, key.Sort...)
}

func partitionPrefix(partition string) []byte {
	return append([]byte(partition), keySeparator)
}

func decodeItem(key, value []byte) (store.Item, error) {
	var it store.Item
	if err := json.Unmarshal(value, &it); err != nil {
		return nil, fmt.Errorf("decode item %q: %w", key, err)
	}
	return it, nil
}

func (s *Store) fail(op string, key store.Key, err error) error {
	s.logger.Debug("bolt call failed", zap.String("op", op), zap.Stringer("key", key), zap.Error(err))
	return store.WrapGatewayError(op, s.db.Path(), key, err)
}

func (s *Store) Scan(ctx context.Context) ([]store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("scan", store.Key{}, err)
	}

	var items []store.Item
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(itemsBucket).ForEach(func(k, v []byte) error {
			it, err := decodeItem(k, v)
			if err != nil {
				return err
			}
			items = append(items, it)
			return nil
		})
	})
	if err != nil {
		return nil, s.fail("scan", store.Key{}, err)
	}
	return store.FilterActive(items, s.now().Unix()), nil
}

func (s *Store) Query(ctx context.Context, partition string, filter *store.Filter) ([]store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("query", store.Key{Partition: partition}, err)
	}

	prefix := partitionPrefix(partition)
	var items []store.Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(itemsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			it, err := decodeItem(k, v)
			if err != nil {
				return err
			}
			if filter.Match(it) {
				items = append(items, it)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("query", store.Key{Partition: partition}, err)
	}
	return store.FilterActive(items, s.now().Unix()), nil
}

func (s *Store) GetItem(ctx context.Context, key store.Key, _ bool) (store.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail("get", key, err)
	}

	var it store.Item
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		it, err = get(tx, key)
		return err
	})
	if err != nil {
		return nil, s.fail("get", key, err)
	}
	if it == nil || store.IsDeleted(it, s.now().Unix()) {
		return nil, &store.OpError{Op: "get", Table: s.db.Path(), Key: key, Err: store.ErrNotFound}
	}
	return it, nil
}

// get returns the stored item, or nil when absent.
func get(tx *bolt.Tx, key store.Key) (store.Item, error) {
	k := encodeKey(key)
	v := tx.Bucket(itemsBucket).Get(k)
	if v == nil {
		return nil, nil
	}
	return decodeItem(k, v)
}

func put(tx *bolt.Tx, item store.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.Key(), err)
	}
	return tx.Bucket(itemsBucket).Put(encodeKey(item.Key()), data)
}

func (s *Store) PutItem(ctx context.Context, item store.Item) error {
	if err := ctx.Err(); err != nil {
		return s.fail("put", item.Key(), err)
	}
	if err := store.ValidateItem(item); err != nil {
		return err
	}

	if err := s.db.Update(func(tx *bolt.Tx) error { return put(tx, item) }); err != nil {
		return s.fail("put", item.Key(), err)
	}
	return nil
}

func (s *Store) TransactWrite(ctx context.Context, writes []store.Write) error {
	if err := ctx.Err(); err != nil {
		return s.fail("transact-write", store.Key{}, err)
	}
	if len(writes) == 0 {
		return nil
	}
	if err := store.ValidateWrites(writes); err != nil {
		return err
	}

	now := s.now().Unix()
	var rejected *store.TransactionError
	err := s.db.Update(func(tx *bolt.Tx) error {
		var failed []int
		for i, w := range writes {
			current, err := get(tx, w.Key())
			if err != nil {
				return err
			}
			if !w.Cond.Holds(current, now) {
				failed = append(failed, i)
			}
		}
		if len(failed) > 0 {
			rejected = &store.TransactionError{Table: s.db.Path(), Failed: failed}
			return rejected
		}

		for _, w := range writes {
			if w.Put == nil {
				continue
			}
			if err := put(tx, w.Put); err != nil {
				return err
			}
		}
		return nil
	})
	if rejected != nil {
		s.logger.Debug("transaction cancelled", zap.Ints("failed", rejected.Failed))
		return rejected
	}
	if err != nil {
		return s.fail("transact-write", store.Key{}, err)
	}
	return nil
}

func (s *Store) SoftDelete(ctx context.Context, key store.Key, ttl int64) error {
	if err := ctx.Err(); err != nil {
		return s.fail("soft-delete", key, err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		it, err := get(tx, key)
		if err != nil || it == nil {
			return err
		}
		if _, deleted := it[store.AttrTTL].AsNumber(); deleted {
			return nil
		}
		version, _ := it[store.AttrVersion].AsNumber()
		it[store.AttrVersion] = store.N(version + 1)
		it[store.AttrTTL] = store.N(ttl)
		return put(tx, it)
	})
	if err != nil {
		return s.fail("soft-delete", key, err)
	}
	return nil
}
