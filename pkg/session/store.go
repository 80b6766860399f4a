package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"golang.org/x/sync/singleflight"
)

// Config tunes the in-memory tier
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns the default in-memory tier settings
func DefaultConfig() Config {
	return Config{
		CacheSize: 10000,
		CacheTTL:  30 * time.Minute,
	}
}

// versionStripes bounds the write counters; keys sharing a stripe only
// cost each other a cache fill
const versionStripes = 256

// Store owns both tiers and hands out Session handles. The in-memory tier
// is authoritative when it holds a value; the persister is consulted only
// on a miss.
//
// Every write bumps a version for its key. A load only fills the memory
// tier if no write landed while it was reading the persister, so a slow
// read can never replace a newer value.
type Store struct {
	persister Persister
	cache     *lru.LRU[string, []byte]
	loads     singleflight.Group
	logger    *observability.Logger

	mu       sync.Mutex
	versions [versionStripes]uint64
}

// NewStore creates a session store over a durable persister
func NewStore(persister Persister, cfg Config, logger *observability.Logger) *Store {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{
		persister: persister,
		cache:     lru.NewLRU[string, []byte](cfg.CacheSize, nil, cfg.CacheTTL),
		logger:    logger,
	}
}

// Session returns the handle for an existing session ID
func (s *Store) Session(id string) *Session {
	return &Session{id: id, store: s}
}

// NewSession starts a session for an authenticated user
func (s *Store) NewSession(ctx context.Context, user AuthUser) (*Session, error) {
	sess := s.Session(uuid.NewString())
	if err := sess.SetAuthUser(ctx, user); err != nil {
		return nil, err
	}
	return sess, nil
}

func cacheKey(sessionID, key string) string {
	return sessionID + "|" + key
}

func stripe(ck string) uint64 {
	return xxhash.Sum64String(ck) % versionStripes
}

func (s *Store) version(ck string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[stripe(ck)]
}

// fill caches data read from the persister unless a write happened since
// seen was taken
func (s *Store) fill(ck string, seen uint64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[stripe(ck)] == seen {
		s.cache.Add(ck, data)
	}
}

// publish records a write: the memory tier takes data (nil drops the key),
// loads already in flight lose their right to fill, and later readers
// start a fresh load.
func (s *Store) publish(ck string, data []byte) {
	s.mu.Lock()
	s.versions[stripe(ck)]++
	if data == nil {
		s.cache.Remove(ck)
	} else {
		s.cache.Add(ck, data)
	}
	s.mu.Unlock()
	s.loads.Forget(ck)
}

// load reads the raw value, collapsing concurrent misses for the same key
func (s *Store) load(ctx context.Context, sessionID, key string) ([]byte, error) {
	ck := cacheKey(sessionID, key)
	if v, ok := s.cache.Get(ck); ok {
		return v, nil
	}

	v, err, _ := s.loads.Do(ck, func() (interface{}, error) {
		seen := s.version(ck)
		data, err := s.persister.Get(ctx, sessionID, key)
		if err != nil {
			return nil, err
		}
		if data != nil {
			s.fill(ck, seen, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", key, err)
	}
	data, _ := v.([]byte)
	return data, nil
}

func (s *Store) save(ctx context.Context, sessionID, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", key, err)
	}
	if err := s.persister.Set(ctx, sessionID, key, data); err != nil {
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	s.publish(cacheKey(sessionID, key), data)
	return nil
}

func (s *Store) remove(ctx context.Context, sessionID string, keys ...string) error {
	err := s.persister.Delete(ctx, sessionID, keys...)
	for _, k := range keys {
		s.publish(cacheKey(sessionID, k), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// decode unmarshals a stored value into out. A corrupt value is deleted
// from both tiers and reported as absent.
func (s *Store) decode(ctx context.Context, sessionID, key string, out interface{}) (bool, error) {
	data, err := s.load(ctx, sessionID, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.WithFields(map[string]interface{}{
			"session_id": sessionID,
			"key":        key,
		}).WithError(err).Warn("Discarding corrupt session value")
		if rmErr := s.remove(ctx, sessionID, key); rmErr != nil {
			return false, rmErr
		}
		return false, nil
	}
	return true, nil
}
