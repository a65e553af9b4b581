// Package catalog is the listing collaborator interface. The settlement
// core consumes listing status, price, seller, and game/platform keys; it
// owns none of the catalog beyond marking a listing sold or hidden.
package catalog

import (
	"context"
	"sync"

	"github.com/ptzlabs/marketplace/internal/apperrors"
)

// Listing statuses the settlement core cares about.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusSold     = "sold"
	StatusInactive = "inactive"
)

// Listing is the slice of catalog data orders consume.
type Listing struct {
	ID         string `json:"id"`
	SellerID   string `json:"sellerId"`
	GameID     string `json:"gameId"`
	PlatformID string `json:"platformId,omitempty"`
	PriceUSD   string `json:"priceUsd"`
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"` // set when hidden by moderation
}

// Listings is the catalog collaborator.
type Listings interface {
	Get(ctx context.Context, id string) (*Listing, error)
	SetStatus(ctx context.Context, id, status, note string) (*Listing, error)
}

// Memory is an in-memory Listings implementation for demo/testing.
type Memory struct {
	listings map[string]*Listing
	mu       sync.RWMutex
}

// NewMemory creates an in-memory catalog.
func NewMemory() *Memory {
	return &Memory{listings: make(map[string]*Listing)}
}

// Put inserts or replaces a listing (test/demo seeding).
func (m *Memory) Put(l *Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.listings[l.ID] = &cp
}

func (m *Memory) Get(_ context.Context, id string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.listings[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "listing not found")
	}
	cp := *l
	return &cp, nil
}

func (m *Memory) SetStatus(_ context.Context, id, status, note string) (*Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "listing not found")
	}
	l.Status = status
	if note != "" {
		l.Note = note
	}
	cp := *l
	return &cp, nil
}
