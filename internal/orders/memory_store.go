package orders

import (
	"context"
	"sync"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
)

// MemoryStore is an in-memory order store for demo/development mode and
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	byTime  []string // insertion order, oldest first
	counter int64
}

// NewMemoryStore creates an empty in-memory order store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]*Order),
		counter: FirstOrderNumber - 1,
	}
}

func (m *MemoryStore) Create(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[o.ID]; exists {
		return apperrors.New(apperrors.CodeDuplicateEntry, "order already exists")
	}
	cp := *o
	m.orders[o.ID] = &cp
	m.byTime = append(m.byTime, o.ID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, o *Order, expect Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.orders[o.ID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if cur.Status != expect {
		return apperrors.Newf(apperrors.CodeInvalidTransition,
			"order moved from %s to %s concurrently", expect, cur.Status)
	}
	cp := *o
	cp.EarningsReleased = cur.EarningsReleased
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	result := make([]*Order, 0, limit)
	skipped := 0
	for i := len(m.byTime) - 1; i >= 0 && len(result) < limit; i-- {
		o := m.orders[m.byTime[i]]
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && o.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) NextOrderNumber(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return m.counter, nil
}

func (m *MemoryStore) DueForAutoComplete(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, id := range m.byTime {
		if limit > 0 && len(result) >= limit {
			break
		}
		o := m.orders[id]
		if o.Status == StatusDelivered && o.DeliveredAt != nil && o.DeliveredAt.Before(cutoff) {
			cp := *o
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) DueForEarningsRelease(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Order
	for _, id := range m.byTime {
		if limit > 0 && len(result) >= limit {
			break
		}
		o := m.orders[id]
		if o.Status == StatusCompleted && !o.EarningsReleased &&
			o.SellerPendingReleaseAt != nil && !o.SellerPendingReleaseAt.After(now) {
			cp := *o
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *MemoryStore) MarkEarningsReleased(ctx context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return false, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if o.EarningsReleased {
		return false, nil
	}
	o.EarningsReleased = true
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}
