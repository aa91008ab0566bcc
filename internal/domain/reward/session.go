package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotStore holds the single applied reward per checkout session. Setting a
// new reward replaces the old one; clearing never refunds points.
type SlotStore interface {
	Set(ctx context.Context, sessionID string, r Reward) error
	// Get returns nil when no reward is applied.
	Get(ctx context.Context, sessionID string) (*Reward, error)
	Clear(ctx context.Context, sessionID string) error
}

// RedisSlots keeps applied rewards in Redis with a TTL so abandoned checkout
// sessions clear themselves.
type RedisSlots struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlots(client *redis.Client, ttl time.Duration) *RedisSlots {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisSlots{client: client, ttl: ttl}
}

func (s *RedisSlots) Set(ctx context.Context, sessionID string, r Reward) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: marshal applied reward", ErrInternal)
	}
	if err := s.client.Set(ctx, slotKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set applied reward", ErrInternal)
	}
	return nil
}

func (s *RedisSlots) Get(ctx context.Context, sessionID string) (*Reward, error) {
	data, err := s.client.Get(ctx, slotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get applied reward", ErrInternal)
	}

	var r Reward
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: decode applied reward", ErrInternal)
	}
	return &r, nil
}

func (s *RedisSlots) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, slotKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: clear applied reward", ErrInternal)
	}
	return nil
}

func slotKey(sessionID string) string {
	return "checkout:applied:" + sessionID
}

// MemorySlots is the in-process fallback used when Redis is not configured.
type MemorySlots struct {
	mu    sync.RWMutex
	slots map[string]Reward
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{slots: make(map[string]Reward)}
}

func (s *MemorySlots) Set(ctx context.Context, sessionID string, r Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[sessionID] = r
	return nil
}

func (s *MemorySlots) Get(ctx context.Context, sessionID string) (*Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.slots[sessionID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *MemorySlots) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, sessionID)
	return nil
}
