package fees

import (
	"context"
	"sync"
)

// MemoryRules is an in-memory fee rule table for demo/testing.
type MemoryRules struct {
	rules []Rule
	mu    sync.RWMutex
}

// NewMemoryRules creates an empty rule table.
func NewMemoryRules() *MemoryRules {
	return &MemoryRules{}
}

// Add appends a rule.
func (m *MemoryRules) Add(r Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, r)
}

func (m *MemoryRules) Lookup(_ context.Context, gameID, platformID, sellerLevel string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.rules {
		if r.GameID == gameID && r.PlatformID == platformID && r.SellerLevel == sellerLevel {
			return r.FeePercent, nil
		}
	}
	return "", nil
}
