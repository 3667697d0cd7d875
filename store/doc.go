// Package store provides the storage gateway for the notebook's single table.
//
// Every entity lives in one DynamoDB table as a flat item. The gateway knows
// nothing about documents, groups or notes: it moves [Item] values (flat
// attribute maps of string and number [Value]s) in and out of the table and
// enforces the preconditions attached to transactional writes.
//
// # Key Features
//
//   - Full-table scan and partition query with exact-match attribute filters
//   - All-or-nothing multi-item writes with per-item preconditions
//   - Optimistic locking with a version attribute
//   - Soft deletes via TTL; deleted items are invisible to every read
//   - Cascading deletes via DynamoDB Streams + TTL (see package stream)
//
// # Gateway
//
// The core depends only on the [Gateway] interface:
//
//	type Gateway interface {
//	    Scan(ctx) ([]Item, error)
//	    Query(ctx, partition, filter) ([]Item, error)
//	    GetItem(ctx, key, consistent) (Item, error)
//	    PutItem(ctx, item) error
//	    TransactWrite(ctx, writes) error
//	    SoftDelete(ctx, key, ttl) error
//	}
//
// [Store] implements it over DynamoDB. The memstore and boltstore
// subpackages implement it in memory and on an embedded bbolt file.
// [Breaker] and [Instrumented] decorate any Gateway.
//
// # Configuration
//
// The table name is passed in [Config]; nothing is read from the environment:
//
//	cfg := store.DefaultConfig()
//	cfg.TableName = "notes-prod"
//	s := store.New(dynamodb.NewFromConfig(awsCfg), cfg)
//
// # Errors
//
// The package defines the error taxonomy shared by every layer:
//
//   - [ErrNotFound] - item doesn't exist or is deleted
//   - [ErrIntegrity] - parent/child relationship mismatch
//   - [ErrMalformedItem] - stored item missing an attribute or of the wrong type
//   - [ErrTransaction] - transactional write rejected ([*TransactionError])
//   - [ErrGateway] - any other storage failure
//   - [ErrAlreadyExists], [ErrConcurrentModification] - refinements of ErrTransaction
//
// Failures carry the operation, table and key in an [*OpError].
package store
