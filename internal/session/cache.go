package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/cache"
	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/metrics"
	"github.com/emreacar/prompt-optimizer/internal/token"
)

const (
	defaultWindowSize  = 10
	defaultMaxMessages = 50
	cacheTTL           = 30 * time.Minute
	summarySnippetLen  = 60
)

// FlushPolicy decides when accumulated in-memory messages are persisted.
// pendingCount is the number of messages appended since the last flush,
// lastRole the role of the message just appended.
type FlushPolicy interface {
	ShouldFlush(pendingCount int, lastRole string) bool
}

// PairFlushPolicy flushes when an assistant message completes a turn pair
// and the pending count reaches a multiple of Cadence.
type PairFlushPolicy struct {
	Cadence int
}

func (p PairFlushPolicy) ShouldFlush(pendingCount int, lastRole string) bool {
	cadence := p.Cadence
	if cadence <= 0 {
		cadence = 2
	}
	return lastRole == "assistant" && pendingCount > 0 && pendingCount%cadence == 0
}

// ContextCache layers a write-behind message cache over the durable Store
// and produces token-budgeted context windows for upstream calls.
//
// Concurrent mutation of the same session is serialized by a per-session
// mutex; between flushes the cache is the source of truth and the last
// writer wins on the durable row.
type ContextCache struct {
	store     Store
	messages  cache.MessageCache
	estimator token.Estimator
	policy    FlushPolicy
	titles    TitleGenerator

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]int
}

func NewContextCache(store Store, messages cache.MessageCache, est token.Estimator, policy FlushPolicy, titles TitleGenerator) *ContextCache {
	if policy == nil {
		policy = PairFlushPolicy{Cadence: 2}
	}
	return &ContextCache{
		store:     store,
		messages:  messages,
		estimator: est,
		policy:    policy,
		titles:    titles,
		locks:     make(map[string]*sync.Mutex),
		pending:   make(map[string]int),
	}
}

func (c *ContextCache) sessionLock(sessionID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[sessionID] = l
	}
	return l
}

// Messages returns the full ordered message log, loading from the store on
// a cache miss.
func (c *ContextCache) Messages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	l := c.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	return c.loadLocked(ctx, sessionID)
}

func (c *ContextCache) loadLocked(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	if msgs, ok := c.messages.Get(ctx, sessionID); ok {
		return msgs, nil
	}

	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	msgs := sess.Messages
	sortByTimestamp(msgs)
	if err := c.messages.Set(ctx, sessionID, msgs, cacheTTL); err != nil {
		slog.Warn("prime message cache failed", "session_id", sessionID, "error", err)
	}
	return msgs, nil
}

// AppendMessage records one turn in memory and flushes to the store when
// the policy says a persistable unit is complete.
func (c *ContextCache) AppendMessage(ctx context.Context, sessionID string, msg domain.ConversationMessage) error {
	l := c.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	msgs, err := c.loadLocked(ctx, sessionID)
	if err != nil {
		return err
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	msgs = append(msgs, msg)
	if len(msgs) > defaultMaxMessages {
		msgs = msgs[len(msgs)-defaultMaxMessages:]
	}

	if err := c.messages.Set(ctx, sessionID, msgs, cacheTTL); err != nil {
		return fmt.Errorf("cache messages: %w", err)
	}

	c.mu.Lock()
	c.pending[sessionID]++
	pendingCount := c.pending[sessionID]
	c.mu.Unlock()

	if c.policy.ShouldFlush(pendingCount, msg.Role) {
		return c.flushLocked(ctx, sessionID, msgs)
	}
	return nil
}

// Flush forces immediate persistence of the in-memory log.
func (c *ContextCache) Flush(ctx context.Context, sessionID string) error {
	l := c.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	msgs, ok := c.messages.Get(ctx, sessionID)
	if !ok {
		return nil
	}
	return c.flushLocked(ctx, sessionID, msgs)
}

func (c *ContextCache) flushLocked(ctx context.Context, sessionID string, msgs []domain.ConversationMessage) error {
	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.Messages = msgs
	sess.MessageCount = len(msgs)
	sess.LastActivityAt = time.Now().UTC()

	if sess.Title == "" && c.titles != nil {
		if first := firstUserMessage(msgs); first != "" {
			sess.Title = c.titles.GenerateTitle(first)
		}
	}

	if err := c.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("flush session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	c.pending[sessionID] = 0
	c.mu.Unlock()

	metrics.RecordSessionFlush()
	slog.Debug("session flushed", "session_id", sessionID, "message_count", len(msgs))
	return nil
}

// Clear drops the in-memory log and the bookkeeping for a session. The
// durable row is untouched; callers delete through the Store.
func (c *ContextCache) Clear(ctx context.Context, sessionID string) error {
	l := c.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	delete(c.pending, sessionID)
	c.mu.Unlock()

	return c.messages.Delete(ctx, sessionID)
}

// GetBudgetedContext returns the most recent windowSize messages that fit
// within maxTokens, in chronological order. Window messages that do not fit
// the budget are collapsed into one synthetic system summary prepended to
// the result. Deterministic for a given log and budget.
func (c *ContextCache) GetBudgetedContext(ctx context.Context, sessionID string, maxTokens, windowSize int) ([]domain.ChatMessage, error) {
	msgs, err := c.Messages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}

	sortByTimestamp(msgs)
	if len(msgs) > windowSize {
		msgs = msgs[len(msgs)-windowSize:]
	}

	// Walk backward from the newest message until the budget is spent.
	spent := 0
	cut := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := token.ConversationMessage(c.estimator, msgs[i])
		if spent+cost > maxTokens {
			break
		}
		spent += cost
		cut = i
	}

	kept := msgs[cut:]
	dropped := msgs[:cut]

	out := make([]domain.ChatMessage, 0, len(kept)+1)
	if len(dropped) > 0 {
		out = append(out, domain.ChatMessage{
			Role:    "system",
			Content: summarize(dropped),
		})
	}
	for _, m := range kept {
		out = append(out, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// summarize concatenates truncated snippets of older turns so they are not
// dropped silently when the budget runs out.
func summarize(msgs []domain.ConversationMessage) string {
	var b strings.Builder
	b.WriteString("Earlier conversation summary: ")
	for i, m := range msgs {
		if i > 0 {
			b.WriteString(" | ")
		}
		snippet := m.Content
		if len(snippet) > summarySnippetLen {
			snippet = snippet[:summarySnippetLen]
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(snippet)
	}
	return b.String()
}

func firstUserMessage(msgs []domain.ConversationMessage) string {
	for _, m := range msgs {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

func sortByTimestamp(msgs []domain.ConversationMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
