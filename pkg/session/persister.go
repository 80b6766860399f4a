package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Persister is the durable tier of the session store. Get returns nil, nil
// on a miss.
type Persister interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID string, keys ...string) error
}

// RedisPersister keeps session values in Redis with a sliding TTL: every
// read or write pushes the key's expiry back to ttl from now
type RedisPersister struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPersister creates a persister. A zero ttl keeps values forever.
func NewRedisPersister(client *redis.Client, ttl time.Duration) *RedisPersister {
	return &RedisPersister{
		client: client,
		prefix: "tenantgate:session",
		ttl:    ttl,
	}
}

func (p *RedisPersister) key(sessionID, key string) string {
	return fmt.Sprintf("%s:%s:%s", p.prefix, sessionID, key)
}

// Get reads a value and refreshes its TTL
func (p *RedisPersister) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	var cmd *redis.StringCmd
	if p.ttl > 0 {
		cmd = p.client.GetEx(ctx, p.key(sessionID, key), p.ttl)
	} else {
		cmd = p.client.Get(ctx, p.key(sessionID, key))
	}
	data, err := cmd.Bytes()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Set writes a value
func (p *RedisPersister) Set(ctx context.Context, sessionID, key string, value []byte) error {
	if err := p.client.Set(ctx, p.key(sessionID, key), value, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes values
func (p *RedisPersister) Delete(ctx context.Context, sessionID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, p.key(sessionID, k))
	}
	if err := p.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// MemoryPersister is a process-local Persister for tests and single-node
// development setups
type MemoryPersister struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryPersister creates an empty MemoryPersister
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: make(map[string][]byte)}
}

// Get reads a value
func (p *MemoryPersister) Get(_ context.Context, sessionID, key string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.data[sessionID+":"+key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set writes a value
func (p *MemoryPersister) Set(_ context.Context, sessionID, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	p.data[sessionID+":"+key] = v
	return nil
}

// Delete removes values
func (p *MemoryPersister) Delete(_ context.Context, sessionID string, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.data, sessionID+":"+k)
	}
	return nil
}
