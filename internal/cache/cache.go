// Package cache stores the hot message log for active sessions. The
// write-behind session layer reads and appends here between flushes to
// durable storage. Supports in-memory (single instance) and Redis
// (distributed) backends.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// MessageCache is the backing store for session message logs.
type MessageCache interface {
	Get(ctx context.Context, sessionID string) ([]domain.ConversationMessage, bool)
	Set(ctx context.Context, sessionID string, msgs []domain.ConversationMessage, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

type InMemoryCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
}

type cacheItem struct {
	messages  []domain.ConversationMessage
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	c := &InMemoryCache{
		items: make(map[string]*cacheItem),
	}
	go c.cleanup()
	return c
}

func (c *InMemoryCache) Get(ctx context.Context, sessionID string) ([]domain.ConversationMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[sessionID]
	if !ok {
		return nil, false
	}

	if time.Now().After(item.expiresAt) {
		return nil, false
	}

	// Callers mutate the slice they get back; hand out a copy.
	msgs := make([]domain.ConversationMessage, len(item.messages))
	copy(msgs, item.messages)
	return msgs, true
}

func (c *InMemoryCache) Set(ctx context.Context, sessionID string, msgs []domain.ConversationMessage, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]domain.ConversationMessage, len(msgs))
	copy(stored, msgs)

	c.items[sessionID] = &cacheItem{
		messages:  stored,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

func (c *InMemoryCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, sessionID)
	return nil
}

func (c *InMemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, item := range c.items {
			if now.After(item.expiresAt) {
				delete(c.items, key)
			}
		}
		c.mu.Unlock()
	}
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, sessionID string) ([]domain.ConversationMessage, bool) {
	data, err := c.client.Get(ctx, redisKey(sessionID)).Bytes()
	if err != nil {
		return nil, false
	}

	var msgs []domain.ConversationMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, false
	}

	return msgs, true
}

func (c *RedisCache) Set(ctx context.Context, sessionID string, msgs []domain.ConversationMessage, ttl time.Duration) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, redisKey(sessionID), data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, redisKey(sessionID)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(sessionID string) string {
	return "session:messages:" + sessionID
}
