// Package session owns conversation persistence and the write-behind
// context cache that strategies read budgeted history from.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// Store is the durable backend for conversation sessions. Delete is a
// soft delete; inactive sessions stay on disk but stop resolving.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.ConversationSession, error)
	Save(ctx context.Context, session *domain.ConversationSession) error
	Delete(ctx context.Context, sessionID string) error
	ListByUser(ctx context.Context, userID string) ([]*domain.ConversationSession, error)
}

// InMemoryStore keeps sessions in a map. Suitable for single-instance
// deployments and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.ConversationSession
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*domain.ConversationSession),
	}
}

func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (*domain.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsActive {
		return nil, domain.ErrSessionNotFound
	}

	return copySession(sess), nil
}

func (s *InMemoryStore) Save(ctx context.Context, session *domain.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.SessionID] = copySession(session)
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsActive {
		return domain.ErrSessionNotFound
	}

	sess.IsActive = false
	sess.LastActivityAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) ListByUser(ctx context.Context, userID string) ([]*domain.ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ConversationSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			out = append(out, copySession(sess))
		}
	}

	// Most recently active first.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LastActivityAt.After(out[i].LastActivityAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out, nil
}

func copySession(sess *domain.ConversationSession) *domain.ConversationSession {
	c := *sess
	c.Messages = make([]domain.ConversationMessage, len(sess.Messages))
	copy(c.Messages, sess.Messages)
	return &c
}
