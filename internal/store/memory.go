package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryHash is an in-memory HashStore for tests and scenario runs.
//
// Thread-safety: all methods are safe for concurrent use. Atomic holds the
// store lock for the duration of fn.
type MemoryHash struct {
	mu     sync.Mutex
	data   map[string]map[string]memEntry
	closed bool
}

type memEntry struct {
	blob []byte
	num  int64
}

var _ HashStore = (*MemoryHash)(nil)

// NewMemoryHash creates an empty in-memory store.
func NewMemoryHash() *MemoryHash {
	return &MemoryHash{data: make(map[string]map[string]memEntry)}
}

func (m *MemoryHash) HGet(ctx context.Context, key, field string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	return memGet(m.data[key], key, field)
}

func (m *MemoryHash) HSet(ctx context.Context, key, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}
	fields := m.data[key]
	if fields == nil {
		fields = make(map[string]memEntry)
		m.data[key] = fields
	}
	memSet(fields, field, value)
	return nil
}

func (m *MemoryHash) HGetInt(ctx context.Context, key, field string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return 0, err
	}
	return m.data[key][field].num, nil
}

func (m *MemoryHash) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return 0, err
	}
	fields := m.data[key]
	if fields == nil {
		fields = make(map[string]memEntry)
		m.data[key] = fields
	}
	return memIncr(fields, field, delta), nil
}

func (m *MemoryHash) HKeys(ctx context.Context, key, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	return memFields(m.data[key], prefix), nil
}

func (m *MemoryHash) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryHash) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return false, err
	}
	return len(m.data[key]) > 0, nil
}

func (m *MemoryHash) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

// Atomic runs fn against an overlay of key's fields. Only the fields fn
// writes are staged; they are merged into key if fn succeeds.
func (m *MemoryHash) Atomic(ctx context.Context, key string, fn func(tx HashTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}

	tx := &memTx{key: key, base: m.data[key], staged: make(map[string]memEntry)}
	if err := fn(tx); err != nil {
		return err
	}

	if len(tx.staged) == 0 {
		return nil
	}
	fields := m.data[key]
	if fields == nil {
		fields = make(map[string]memEntry, len(tx.staged))
		m.data[key] = fields
	}
	for f, e := range tx.staged {
		fields[f] = e
	}
	return nil
}

func (m *MemoryHash) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usable(ctx)
}

func (m *MemoryHash) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// usable must be called with mu held.
func (m *MemoryHash) usable(ctx context.Context) error {
	if m.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// memTx reads through staged to base. base is never written.
type memTx struct {
	key    string
	base   map[string]memEntry
	staged map[string]memEntry
}

func (t *memTx) entry(field string) memEntry {
	if e, ok := t.staged[field]; ok {
		return e
	}
	return t.base[field]
}

func (t *memTx) Get(field string) ([]byte, error) {
	e := t.entry(field)
	if e.blob == nil {
		return nil, fmt.Errorf("hget %s %s: %w", t.key, field, ErrFieldNotFound)
	}
	return append([]byte(nil), e.blob...), nil
}

func (t *memTx) Set(field string, value []byte) error {
	e := t.entry(field)
	e.blob = append(make([]byte, 0, len(value)), value...)
	t.staged[field] = e
	return nil
}

func (t *memTx) GetInt(field string) (int64, error) { return t.entry(field).num, nil }

func (t *memTx) IncrBy(field string, delta int64) (int64, error) {
	e := t.entry(field)
	e.num += delta
	t.staged[field] = e
	return e.num, nil
}

func (t *memTx) Fields(prefix string) ([]string, error) {
	out := memFields(t.base, prefix)
	for f := range t.staged {
		if _, ok := t.base[f]; !ok && strings.HasPrefix(f, prefix) {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out, nil
}

func memGet(fields map[string]memEntry, key, field string) ([]byte, error) {
	e, ok := fields[field]
	if !ok || e.blob == nil {
		return nil, fmt.Errorf("hget %s %s: %w", key, field, ErrFieldNotFound)
	}
	out := make([]byte, len(e.blob))
	copy(out, e.blob)
	return out, nil
}

func memSet(fields map[string]memEntry, field string, value []byte) {
	e := fields[field]
	e.blob = append(make([]byte, 0, len(value)), value...)
	fields[field] = e
}

func memIncr(fields map[string]memEntry, field string, delta int64) int64 {
	e := fields[field]
	e.num += delta
	fields[field] = e
	return e.num
}

func memFields(fields map[string]memEntry, prefix string) []string {
	out := make([]string, 0)
	for f := range fields {
		if strings.HasPrefix(f, prefix) {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
