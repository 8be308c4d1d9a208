package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Compile-time interface verification.
var _ Store = (*Memory)(nil)

// MemoryConfig holds settings for the in-process cache backend.
type MemoryConfig struct {
	// SweepInterval is how often expired entries are removed to bound
	// memory growth. Zero disables the background sweep; expiry is then
	// enforced lazily on read only.
	SweepInterval time.Duration
}

type memoryEntry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// Memory is an in-process Store backed by a mutex-protected map. Suitable
// for single-instance deployments; multi-instance deployments should use
// the Postgres backend instead.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	logger zerolog.Logger
	now    func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMemory creates an in-process cache. If cfg.SweepInterval is positive, a
// background goroutine periodically removes expired entries until Close is
// called.
func NewMemory(cfg MemoryConfig, logger zerolog.Logger) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		logger:  logger.With().Str("component", "memory_cache").Logger(),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	if cfg.SweepInterval > 0 {
		go m.sweepLoop(cfg.SweepInterval)
	} else {
		close(m.done)
	}

	return m
}

// Get returns the value stored under key, treating expired entries as misses.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || entry.expired(m.now()) {
		return nil, false, nil
	}

	// Copy so callers cannot mutate the stored snapshot.
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Set stores a copy of value under key, replacing any existing entry.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.entries[key] = memoryEntry{value: stored, createdAt: m.now(), ttl: ttl}
	m.mu.Unlock()

	return nil
}

// Invalidate removes the entry for key.
func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()

	return nil
}

// Len returns the number of entries currently held, including expired ones
// not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close stops the background sweep goroutine, if any. Safe to call more than
// once.
func (m *Memory) Close() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	<-m.done
}

func (m *Memory) sweepLoop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			removed := m.sweep()
			if removed > 0 {
				m.logger.Debug().Int("removed", removed).Msg("swept expired cache entries")
			}
		}
	}
}

func (m *Memory) sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}
