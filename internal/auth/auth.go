// Package auth issues and validates API tokens.
//
// A token is shown to the caller exactly once; only its SHA-256 hash is
// stored. The middleware turns a valid token into an authz actor on the
// request context, which is all downstream handlers ever see.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/ptzlabs/marketplace/internal/apperrors"
)

// Token is the stored metadata for an issued API token.
type Token struct {
	ID         string     `json:"id"`
	Hash       string     `json:"-"`
	UserID     string     `json:"userId"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt time.Time  `json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	Revoked    bool       `json:"revoked"`
}

// Store persists tokens.
type Store interface {
	Create(ctx context.Context, t *Token) error
	GetByHash(ctx context.Context, hash string) (*Token, error)
	ListByUser(ctx context.Context, userID string) ([]*Token, error)
	Update(ctx context.Context, t *Token) error
}

// Manager issues and validates tokens.
type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Issue creates a token for a user. The raw value is returned once and
// never stored.
func (m *Manager) Issue(ctx context.Context, userID, name string) (rawToken string, t *Token, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	rawToken = "mk_" + hex.EncodeToString(b)
	t = &Token{
		ID:        "tok_" + hex.EncodeToString(b[:8]),
		Hash:      hashToken(rawToken),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Create(ctx, t); err != nil {
		return "", nil, err
	}
	return rawToken, t, nil
}

// Validate resolves a raw token to its metadata. Revoked and expired
// tokens fail the same way as unknown ones.
func (m *Manager) Validate(ctx context.Context, rawToken string) (*Token, error) {
	rawToken = strings.TrimSpace(strings.TrimPrefix(rawToken, "Bearer "))
	if rawToken == "" {
		return nil, apperrors.New(apperrors.CodeAuthorization, "authentication required")
	}
	if !strings.HasPrefix(rawToken, "mk_") {
		return nil, apperrors.New(apperrors.CodeAuthorization, "invalid token")
	}

	t, err := m.store.GetByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, apperrors.New(apperrors.CodeAuthorization, "invalid token")
	}
	if t.Revoked {
		return nil, apperrors.New(apperrors.CodeAuthorization, "invalid token")
	}
	if t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt) {
		return nil, apperrors.New(apperrors.CodeAuthorization, "invalid token")
	}

	t.LastUsedAt = time.Now().UTC()
	_ = m.store.Update(ctx, t) // best effort

	return t, nil
}

// List returns a user's tokens.
func (m *Manager) List(ctx context.Context, userID string) ([]*Token, error) {
	return m.store.ListByUser(ctx, userID)
}

// Revoke invalidates one of the user's tokens.
func (m *Manager) Revoke(ctx context.Context, userID, tokenID string) error {
	tokens, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t.ID == tokenID {
			t.Revoked = true
			return m.store.Update(ctx, t)
		}
	}
	return apperrors.New(apperrors.CodeNotFound, "token not found")
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore keeps tokens in memory for demo mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Token
	byHash map[string]*Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Token),
		byHash: make(map[string]*Token),
	}
}

func (s *MemoryStore) Create(ctx context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.byID[t.ID] = &cp
	s.byHash[t.Hash] = &cp
	return nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byHash[hash]
	if !ok {
		return nil, apperrors.New(apperrors.CodeNotFound, "token not found")
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Token
	for _, t := range s.byID {
		if t.UserID == userID {
			cp := *t
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.byID[t.ID]
	if !ok {
		return apperrors.New(apperrors.CodeNotFound, "token not found")
	}
	*cur = *t
	return nil
}
