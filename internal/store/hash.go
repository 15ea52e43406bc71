package store

import (
	"context"
	"errors"
)

var (
	// ErrFieldNotFound is returned when a hash field holds no blob.
	ErrFieldNotFound = errors.New("store: field not found")

	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("store: closed")
)

// HashStore is a key/value store with per-key hash semantics.
//
// Counter fields are read with HGetInt (a missing counter reads as 0) and
// changed only through HIncrBy. Blob fields are read with HGet.
type HashStore interface {
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	HGetInt(ctx context.Context, key, field string) (int64, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	// HKeys lists the fields of key starting with prefix, sorted.
	HKeys(ctx context.Context, key, prefix string) ([]string, error)

	// Keys lists the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, key string) error

	// Atomic runs fn with exclusive access to key. Writes made through tx
	// are committed only if fn returns nil.
	//
	// fn must only use tx. Calling other HashStore methods from fn may
	// deadlock.
	Atomic(ctx context.Context, key string, fn func(tx HashTx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// HashTx is a view of a single key, either inside Atomic or bound
// directly to a HashStore.
type HashTx interface {
	Get(field string) ([]byte, error)
	Set(field string, value []byte) error
	GetInt(field string) (int64, error)
	IncrBy(field string, delta int64) (int64, error)
	Fields(prefix string) ([]string, error)
}

// keyView binds a HashStore to one key without transactional isolation.
type keyView struct {
	ctx  context.Context
	hash HashStore
	key  string
}

func (v keyView) Get(field string) ([]byte, error) { return v.hash.HGet(v.ctx, v.key, field) }

func (v keyView) Set(field string, value []byte) error {
	return v.hash.HSet(v.ctx, v.key, field, value)
}

func (v keyView) GetInt(field string) (int64, error) { return v.hash.HGetInt(v.ctx, v.key, field) }

func (v keyView) IncrBy(field string, delta int64) (int64, error) {
	return v.hash.HIncrBy(v.ctx, v.key, field, delta)
}

func (v keyView) Fields(prefix string) ([]string, error) {
	return v.hash.HKeys(v.ctx, v.key, prefix)
}
