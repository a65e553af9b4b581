package giftcards

import (
	"context"
	"sync"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
)

// MemoryStore is an in-memory gift card store for demo/testing. One mutex
// guards every mutation, which is what makes Redeem's claim atomic.
type MemoryStore struct {
	mu     sync.RWMutex
	cards  map[string]*Card // by ID
	byCode map[string]string
	order  []string
}

// NewMemoryStore creates an empty in-memory gift card store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:  make(map[string]*Card),
		byCode: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, c *Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[c.Code]; exists {
		return apperrors.New(apperrors.CodeDuplicateEntry, "card code already exists")
	}
	cp := *c
	m.cards[c.ID] = &cp
	m.byCode[c.Code] = c.ID
	m.order = append(m.order, c.ID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cards[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "gift card not found")
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Redeem(ctx context.Context, code, userID string) (*Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byCode[code]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "gift card not found")
	}
	c := m.cards[id]
	if c.Status != StatusActive {
		return nil, apperrors.New(apperrors.CodeNotFound, "gift card not found")
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.New(apperrors.CodeValidation, "gift card has expired")
	}

	now := time.Now().UTC()
	c.Status = StatusRedeemed
	c.RedeemedBy = userID
	c.RedeemedAt = &now

	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Deactivate(ctx context.Context, id string) (*Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cards[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "gift card not found")
	}
	if c.Status != StatusActive {
		return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "cannot deactivate a %s card", c.Status)
	}
	c.Status = StatusDeactivated

	cp := *c
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Card, 0, limit)
	skipped := 0
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		if skipped < offset {
			skipped++
			continue
		}
		cp := *m.cards[m.order[i]]
		result = append(result, &cp)
	}
	return result, nil
}
