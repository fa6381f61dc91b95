// Package repository defines the storage contract the services depend on.
//
// The intake tracker only needs a key-value store: one JSON blob per user,
// plus the relay's presence entries. Anything that can get, put, delete and
// list keys by prefix can back the application; sqlite and redis both do.
package repository

import "context"

// PresenceKeyPrefix namespaces relay presence entries in the store shared
// with ledgers. User names may not contain ':', so no ledger key collides.
const PresenceKeyPrefix = "presence:"

// KVStore is opaque string storage.
//
// CONTRACT:
//   - Get returns an apperror.ErrNotFound error when the key is absent.
//   - Delete of a missing key is not an error.
//   - List returns key names (not values) starting with prefix, sorted
//     ascending; an empty prefix lists everything.
//   - I/O failures are returned as apperror.ErrUnavailable.
//
// There is no compare-and-swap. A read-modify-write sequence built on top of
// this interface is not atomic; concurrent writers race and the last Put wins.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
