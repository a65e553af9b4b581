package admin

import (
	"context"
	"sync"

	"github.com/ptzlabs/marketplace/internal/apperrors"
)

// MemoryAuditStore is an in-memory audit trail for demo/testing.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	actions []*Action
	byKey   map[string]*Action
}

// NewMemoryAuditStore creates an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{byKey: make(map[string]*Action)}
}

func (m *MemoryAuditStore) Record(ctx context.Context, a *Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.IdempotencyKey != "" {
		if _, exists := m.byKey[a.IdempotencyKey]; exists {
			return apperrors.New(apperrors.CodeConflict, "idempotency key already used")
		}
	}
	cp := *a
	m.actions = append(m.actions, &cp)
	if a.IdempotencyKey != "" {
		m.byKey[a.IdempotencyKey] = &cp
	}
	return nil
}

func (m *MemoryAuditStore) GetByIdempotencyKey(ctx context.Context, key string) (*Action, error) {
	if key == "" {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryAuditStore) List(ctx context.Context, f AuditFilter) ([]*Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	result := make([]*Action, 0, limit)
	skipped := 0
	for i := len(m.actions) - 1; i >= 0 && len(result) < limit; i-- {
		a := m.actions[i]
		if f.AdminID != "" && a.AdminID != f.AdminID {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.TargetID != "" && a.TargetID != f.TargetID {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

// MemoryMessages is a messages collaborator fake for demo/testing.
type MemoryMessages struct {
	mu     sync.Mutex
	Hidden map[string]string // messageID -> note
}

// NewMemoryMessages creates a messages fake.
func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{Hidden: make(map[string]string)}
}

func (m *MemoryMessages) Hide(ctx context.Context, messageID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hidden[messageID] = note
	return nil
}
