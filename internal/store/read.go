package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// HGet returns the blob stored in field of key.
// Returns ErrFieldNotFound if the field is absent or holds only a counter.
func (s *Store) HGet(ctx context.Context, key, field string) ([]byte, error) {
	return getBlob(ctx, s.db, key, field)
}

// HGetInt returns the counter stored in field of key, or 0 if absent.
func (s *Store) HGetInt(ctx context.Context, key, field string) (int64, error) {
	return getInt(ctx, s.db, key, field)
}

// HKeys lists the fields of key that start with prefix.
// Returns an empty slice (not nil) if there are none.
func (s *Store) HKeys(ctx context.Context, key, prefix string) ([]string, error) {
	return listFields(ctx, s.db, key, prefix)
}

// Keys lists the distinct keys that start with prefix.
// Returns an empty slice (not nil) if there are none.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT hkey FROM hash_fields
		WHERE substr(hkey, 1, length(?)) = ?
		ORDER BY hkey ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("keys %q: %w", prefix, err)
	}
	return scanStrings(rows)
}

// Exists reports whether key has any field.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM hash_fields WHERE hkey = ? LIMIT 1`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return true, nil
}

func getBlob(ctx context.Context, q querier, key, field string) ([]byte, error) {
	var blob []byte
	err := q.QueryRowContext(ctx, `
		SELECT blob FROM hash_fields WHERE hkey = ? AND field = ?
	`, key, field).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && blob == nil) {
		return nil, fmt.Errorf("hget %s %s: %w", key, field, ErrFieldNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("hget %s %s: %w", key, field, err)
	}
	return blob, nil
}

func getInt(ctx context.Context, q querier, key, field string) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, `
		SELECT num FROM hash_fields WHERE hkey = ? AND field = ?
	`, key, field).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hget %s %s: %w", key, field, err)
	}
	return n, nil
}

func listFields(ctx context.Context, q querier, key, prefix string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT field FROM hash_fields
		WHERE hkey = ? AND substr(field, 1, length(?)) = ?
		ORDER BY field ASC
	`, key, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("hkeys %s %q: %w", key, prefix, err)
	}
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
