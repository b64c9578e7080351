package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local runs. It
// supports the transaction capability so the transactional create path
// is exercised without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailPut, when set, is consulted before every write; returning an
	// error makes that write fail. Test hook only.
	FailPut func(key string) error
}

// NewMemory creates an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns the value stored under key, or ErrNotFound
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

// Put upserts a value
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailPut != nil {
		if err := s.FailPut(key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(value))
	copy(copied, value)
	s.data[key] = copied
	return nil
}

// Delete removes a key; deleting a missing key is not an error
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// List returns up to Limit keys with the prefix, strictly after the
// cursor, in lexicographic order.
func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, opts.Prefix) && k > opts.Cursor {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	if len(keys) > limit+1 {
		keys = keys[:limit+1]
	}
	return paginate(keys, limit), nil
}

// Ping reports liveness; the memory store is always live
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Begin starts a buffered transaction applied atomically on Commit
func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{store: s}, nil
}

type memoryOp struct {
	key    string
	value  []byte
	delete bool
}

type memoryTx struct {
	store *MemoryStore
	ops   []memoryOp
	done  bool
}

func (t *memoryTx) Put(key string, value []byte) error {
	copied := make([]byte, len(value))
	copy(copied, value)
	t.ops = append(t.ops, memoryOp{key: key, value: copied})
	return nil
}

func (t *memoryTx) Delete(key string) error {
	t.ops = append(t.ops, memoryOp{key: key, delete: true})
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.done {
		return nil
	}
	t.done = true

	if t.store.FailPut != nil {
		for _, op := range t.ops {
			if op.delete {
				continue
			}
			if err := t.store.FailPut(op.key); err != nil {
				return err
			}
		}
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, op := range t.ops {
		if op.delete {
			delete(t.store.data, op.key)
			continue
		}
		t.store.data[op.key] = op.value
	}
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.done = true
	t.ops = nil
	return nil
}

// Len reports the number of stored records. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
