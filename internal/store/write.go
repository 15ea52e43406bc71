package store

import (
	"context"
	"fmt"
)

// HSet stores value as the blob of field, replacing any previous blob.
func (s *Store) HSet(ctx context.Context, key, field string, value []byte) error {
	return setBlob(ctx, s.db, key, field, value)
}

// HIncrBy atomically adds delta to the counter in field and returns the
// new value. A missing counter starts at 0.
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return incrBy(ctx, s.db, key, field, delta)
}

// Del removes key and all its fields.
func (s *Store) Del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM hash_fields WHERE hkey = ?`, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Atomic runs fn inside a database transaction. The transaction commits if
// fn returns nil and rolls back otherwise.
func (s *Store) Atomic(ctx context.Context, key string, fn func(tx HashTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", key, err)
	}

	if err := fn(&sqliteTx{ctx: ctx, q: tx, key: key}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func setBlob(ctx context.Context, q querier, key, field string, value []byte) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO hash_fields (hkey, field, blob) VALUES (?, ?, ?)
		ON CONFLICT(hkey, field) DO UPDATE SET blob = excluded.blob
	`, key, field, value)
	if err != nil {
		return fmt.Errorf("hset %s %s: %w", key, field, err)
	}
	return nil
}

func incrBy(ctx context.Context, q querier, key, field string, delta int64) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO hash_fields (hkey, field, num) VALUES (?, ?, ?)
		ON CONFLICT(hkey, field) DO UPDATE SET num = num + excluded.num
		RETURNING num
	`, key, field, delta).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("hincrby %s %s: %w", key, field, err)
	}
	return n, nil
}

// sqliteTx is the HashTx of a running Atomic call.
type sqliteTx struct {
	ctx context.Context
	q   querier
	key string
}

func (t *sqliteTx) Get(field string) ([]byte, error) { return getBlob(t.ctx, t.q, t.key, field) }

func (t *sqliteTx) Set(field string, value []byte) error {
	return setBlob(t.ctx, t.q, t.key, field, value)
}

func (t *sqliteTx) GetInt(field string) (int64, error) { return getInt(t.ctx, t.q, t.key, field) }

func (t *sqliteTx) IncrBy(field string, delta int64) (int64, error) {
	return incrBy(t.ctx, t.q, t.key, field, delta)
}

func (t *sqliteTx) Fields(prefix string) ([]string, error) {
	return listFields(t.ctx, t.q, t.key, prefix)
}
