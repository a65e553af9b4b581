package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ptzlabs/marketplace/internal/syncutil"
)

// MemoryStore is an in-memory ledger for demo/development mode and tests.
// Per-user appends are serialized through a keyed mutex so a concurrent
// read-compute-write never lands on a stale snapshot.
type MemoryStore struct {
	userLocks syncutil.KeyedMutex

	mu      sync.RWMutex
	entries []*Entry
	latest  map[string]*Entry // userID -> last appended entry
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{latest: make(map[string]*Entry)}
}

func (m *MemoryStore) Append(ctx context.Context, e *Entry) (*Entry, error) {
	unlock := m.userLocks.Lock(e.UserID)
	defer unlock()

	m.mu.RLock()
	prev := m.latest[e.UserID]
	m.mu.RUnlock()

	base := zeroBalance(e.UserID)
	if prev != nil {
		base.Available = prev.Available
		base.Pending = prev.Pending
		base.Frozen = prev.Frozen
	}
	if err := applySnapshots(base, e); err != nil {
		return nil, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	cp := *e
	m.mu.Lock()
	m.entries = append(m.entries, &cp)
	m.latest[e.UserID] = &cp
	m.mu.Unlock()
	return e, nil
}

func (m *MemoryStore) Balance(ctx context.Context, userID string) (*Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last, ok := m.latest[userID]
	if !ok {
		return zeroBalance(userID), nil
	}
	return &Balance{
		UserID:    userID,
		Available: last.Available,
		Pending:   last.Pending,
		Frozen:    last.Frozen,
		UpdatedAt: last.CreatedAt,
	}, nil
}

func (m *MemoryStore) List(ctx context.Context, f Filter) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	result := make([]*Entry, 0, limit)
	skipped := 0
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.ReferenceID != "" && e.ReferenceID != f.ReferenceID {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}
