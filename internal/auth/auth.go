// Package auth resolves API keys to user identities. Keys are stored as
// SHA-256 hashes; token issuance lives outside this service.
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/emreacar/prompt-optimizer/internal/crypto"
	"github.com/emreacar/prompt-optimizer/internal/domain"
)

type UserStore interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error)
}

type InMemoryUserStore struct {
	mu     sync.RWMutex
	byHash map[string]*domain.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{byHash: make(map[string]*domain.User)}
}

func (s *InMemoryUserStore) Add(user *domain.User, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := crypto.HashAPIKey(apiKey)
	user.APIKeyHash = hash
	s.byHash[hash] = user
}

func (s *InMemoryUserStore) GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byHash[crypto.HashAPIKey(apiKey)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	u := *user
	return &u, nil
}

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	query := `
		SELECT id, name, api_key_hash, created_at
		FROM users
		WHERE api_key_hash = $1
	`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, crypto.HashAPIKey(apiKey)).Scan(
		&user.ID,
		&user.Name,
		&user.APIKeyHash,
		&user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}
