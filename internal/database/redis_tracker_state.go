package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"equity-trading-bot/internal/position"
)

const (
	trackerKeyPrefix = "trading:tracker"
	trackerSetKey    = "trading:trackers"

	// Positions usually close within days; the TTL keeps stale snapshots
	// from resurrecting after a long outage.
	trackerStateTTL = 7 * 24 * time.Hour
)

// RedisTrackerStore persists position tracker snapshots in Redis so open
// positions survive a process restart. When Redis is unavailable it falls
// back to an in-memory cache so trading continues uninterrupted.
type RedisTrackerStore struct {
	client    *redis.Client
	available atomic.Bool
	mu        sync.RWMutex
	cache     map[string]*position.Tracker
	logger    zerolog.Logger
}

var _ position.StateStore = (*RedisTrackerStore)(nil)

// NewRedisTrackerStore creates the store and probes Redis availability.
// client may be nil for memory-only operation.
func NewRedisTrackerStore(client *redis.Client, logger zerolog.Logger) *RedisTrackerStore {
	s := &RedisTrackerStore{
		client: client,
		cache:  make(map[string]*position.Tracker),
		logger: logger.With().Str("component", "RedisTrackerStore").Logger(),
	}

	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory cache")
		} else {
			s.logger.Info().Msg("Redis connected")
			s.available.Store(true)
		}
	} else {
		s.logger.Info().Msg("No Redis client configured, using in-memory cache only")
	}

	return s
}

func trackerKey(symbol string) string {
	return fmt.Sprintf("%s:%s", trackerKeyPrefix, symbol)
}

// SaveTracker writes a snapshot to Redis and the in-memory cache.
func (s *RedisTrackerStore) SaveTracker(ctx context.Context, t *position.Tracker) error {
	if t == nil {
		return fmt.Errorf("cannot save nil tracker")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tracker: %w", err)
	}

	copied := *t
	s.mu.Lock()
	s.cache[t.Symbol] = &copied
	s.mu.Unlock()

	if s.client == nil || !s.available.Load() {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, trackerKey(t.Symbol), data, trackerStateTTL)
	pipe.SAdd(ctx, trackerSetKey, t.Symbol)
	pipe.Expire(ctx, trackerSetKey, trackerStateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("symbol", t.Symbol).Msg("Redis save failed, in-memory cache retained")
		s.available.Store(false)
	}
	return nil
}

// DeleteTracker removes a snapshot after the position closes.
func (s *RedisTrackerStore) DeleteTracker(ctx context.Context, symbol string) error {
	s.mu.Lock()
	delete(s.cache, symbol)
	s.mu.Unlock()

	if s.client == nil || !s.available.Load() {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, trackerKey(symbol))
	pipe.SRem(ctx, trackerSetKey, symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Redis delete failed")
		s.available.Store(false)
	}
	return nil
}

// LoadTrackers returns every persisted snapshot, preferring Redis and
// falling back to the in-memory cache.
func (s *RedisTrackerStore) LoadTrackers(ctx context.Context) ([]*position.Tracker, error) {
	if s.client != nil && s.available.Load() {
		symbols, err := s.client.SMembers(ctx, trackerSetKey).Result()
		if err != nil && err != redis.Nil {
			s.logger.Warn().Err(err).Msg("Redis read failed, using in-memory cache")
			s.available.Store(false)
			return s.cachedTrackers(), nil
		}

		trackers := make([]*position.Tracker, 0, len(symbols))
		for _, symbol := range symbols {
			data, err := s.client.Get(ctx, trackerKey(symbol)).Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to load tracker snapshot")
				continue
			}
			var t position.Tracker
			if err := json.Unmarshal([]byte(data), &t); err != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Corrupt tracker snapshot, skipping")
				continue
			}
			trackers = append(trackers, &t)
		}

		s.mu.Lock()
		for _, t := range trackers {
			copied := *t
			s.cache[t.Symbol] = &copied
		}
		s.mu.Unlock()

		return trackers, nil
	}

	return s.cachedTrackers(), nil
}

func (s *RedisTrackerStore) cachedTrackers() []*position.Tracker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*position.Tracker, 0, len(s.cache))
	for _, t := range s.cache {
		copied := *t
		out = append(out, &copied)
	}
	return out
}
