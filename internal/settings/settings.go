// Package settings provides named platform configuration values backed by
// a key-value table, with compiled-in defaults when a key is absent.
package settings

import (
	"context"
	"strconv"
	"sync"
)

// Well-known keys.
const (
	KeyDisputeWindowHours   = "disputeWindowHours"
	KeySellerProtectionDays = "sellerProtectionDays"
	KeyDefaultFeePercent    = "defaultFeePercent"
	KeyLargeAmountThreshold = "largeAmountThreshold"
)

// Provider reads named configuration values.
type Provider interface {
	Get(ctx context.Context, key, def string) string
}

// GetInt reads a key and parses it as an integer, falling back to def on
// absence or garbage.
func GetInt(ctx context.Context, p Provider, key string, def int) int {
	raw := p.Get(ctx, key, strconv.Itoa(def))
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return def
}

// Defaults layers operator-supplied values under a provider. A stored
// value wins; otherwise the operator default replaces the call-site one.
type Defaults struct {
	Inner  Provider
	Values map[string]string
}

func (d Defaults) Get(ctx context.Context, key, def string) string {
	if v, ok := d.Values[key]; ok {
		def = v
	}
	return d.Inner.Get(ctx, key, def)
}

// Memory is an in-memory provider for demo/testing.
type Memory struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewMemory creates an in-memory provider.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Set stores a value.
func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Memory) Get(_ context.Context, key, def string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}
