package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/chatbot-proxy/pkg/logging"
)

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// Cache mirrors Store records in memory and owns the expiry policy.
// Every mutation is written through to the Store.
type Cache struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	logger  *logging.Logger

	mu      sync.RWMutex
	entries map[string]Record
	// loads tracks cold lookups in flight per conversation. A mutation marks
	// the load stale so a record read before it is not cached afterwards.
	loads map[string]*pendingLoad
}

type pendingLoad struct {
	waiters int
	stale   bool
}

// NewCache builds a cache in front of store with the given idle timeout.
func NewCache(store Store, timeout time.Duration, logger *logging.Logger, opts ...Option) *Cache {
	if store == nil {
		panic("session: store cannot be nil")
	}
	if timeout <= 0 {
		panic("session: timeout must be positive")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Cache{
		store:   store,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
		entries: make(map[string]Record),
		loads:   make(map[string]*pendingLoad),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured idle timeout.
func (c *Cache) Timeout() time.Duration {
	return c.timeout
}

// Lookup returns the record for conversationID. Expired records are deleted
// from the cache and the store and reported as StatusExpired.
func (c *Cache) Lookup(ctx context.Context, conversationID string) (Record, Status, error) {
	rec, ok := c.cached(conversationID)
	var load *pendingLoad
	if !ok {
		load = c.beginLoad(conversationID)
		defer c.endLoad(conversationID, load)

		stored, err := c.store.Get(ctx, conversationID)
		if errors.Is(err, ErrNotFound) {
			c.logger.Debug("session not found", "conversation_id", conversationID)
			return Record{}, StatusNotFound, nil
		}
		if err != nil {
			return Record{}, StatusNotFound, fmt.Errorf("session: lookup %s: %w", conversationID, err)
		}
		rec = stored
	}

	if !rec.Valid(c.now()) {
		c.logger.Debug("session expired", "conversation_id", conversationID, "session_id", rec.SessionID)
		if err := c.Terminate(ctx, conversationID); err != nil {
			c.logger.Warn("failed to delete expired session", "conversation_id", conversationID, "error", err)
		}
		return Record{}, StatusExpired, nil
	}

	if !ok {
		c.fill(rec, load)
	}
	c.logger.Debug("session can be resumed", "conversation_id", conversationID, "session_id", rec.SessionID)
	return rec, StatusFound, nil
}

// Create stores a new record for conversationID, replacing any prior one.
func (c *Cache) Create(ctx context.Context, conversationID, sessionID, originAddress string) (Record, error) {
	rec := Record{
		ConversationID: conversationID,
		SessionID:      sessionID,
		OriginAddress:  originAddress,
		ExpiresAt:      c.now().Add(c.timeout),
	}
	if err := c.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("session: create %s: %w", conversationID, err)
	}
	c.remember(rec)
	c.logger.Debug("session created", "conversation_id", conversationID, "session_id", sessionID)
	return rec, nil
}

// ExtendExpiry pushes the expiry of an existing record to now+timeout.
// It returns ErrSessionInvariant when the record no longer exists.
func (c *Cache) ExtendExpiry(ctx context.Context, conversationID string) (Record, error) {
	rec, err := c.store.Touch(ctx, conversationID, c.now().Add(c.timeout))
	if errors.Is(err, ErrNotFound) {
		c.forget(conversationID)
		return Record{}, fmt.Errorf("%w: extend %s", ErrSessionInvariant, conversationID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("session: extend %s: %w", conversationID, err)
	}
	c.remember(rec)
	return rec, nil
}

// Terminate removes the record from the store and then the cache. The cache
// entry is dropped even when the store delete fails. It is idempotent.
func (c *Cache) Terminate(ctx context.Context, conversationID string) error {
	err := c.store.Delete(ctx, conversationID)
	c.forget(conversationID)
	if err != nil {
		return fmt.Errorf("session: terminate %s: %w", conversationID, err)
	}
	return nil
}

func (c *Cache) cached(conversationID string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[conversationID]
	return rec, ok
}

func (c *Cache) remember(rec Record) {
	c.mu.Lock()
	c.entries[rec.ConversationID] = rec
	c.markStale(rec.ConversationID)
	c.mu.Unlock()
}

func (c *Cache) forget(conversationID string) {
	c.mu.Lock()
	delete(c.entries, conversationID)
	c.markStale(conversationID)
	c.mu.Unlock()
}

// fill caches a record read from the store unless a mutation ran while it
// was being read.
func (c *Cache) fill(rec Record, load *pendingLoad) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if load.stale {
		return
	}
	if _, ok := c.entries[rec.ConversationID]; ok {
		return
	}
	c.entries[rec.ConversationID] = rec
}

func (c *Cache) beginLoad(conversationID string) *pendingLoad {
	c.mu.Lock()
	defer c.mu.Unlock()
	load, ok := c.loads[conversationID]
	if !ok {
		load = &pendingLoad{}
		c.loads[conversationID] = load
	}
	load.waiters++
	return load
}

func (c *Cache) endLoad(conversationID string, load *pendingLoad) {
	c.mu.Lock()
	defer c.mu.Unlock()
	load.waiters--
	if load.waiters == 0 && c.loads[conversationID] == load {
		delete(c.loads, conversationID)
	}
}

// markStale must be called with c.mu held.
func (c *Cache) markStale(conversationID string) {
	if load, ok := c.loads[conversationID]; ok {
		load.stale = true
	}
}
