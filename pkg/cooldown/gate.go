// Package cooldown rate-limits principals per action class. Submitting
// parameters and requesting decryption run on independent clocks, so one
// action type never starves the other for the same principal.
package cooldown

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrCooldownActive means the principal acted on this class too recently.
	ErrCooldownActive = errors.New("cooldown: active")

	// ErrInvalidCooldown rejects a zero cooldown interval.
	ErrInvalidCooldown = errors.New("cooldown: interval must be positive")
)

// Class identifies an independently rate-limited action type.
type Class string

const (
	// ClassSubmit covers parameter submission.
	ClassSubmit Class = "submit"
	// ClassDecrypt covers decryption requests.
	ClassDecrypt Class = "decrypt"
)

// Store abstracts the stamp table so single-instance deployments run in
// memory while multi-instance ones share Redis.
type Store interface {
	// Allow checks the last stamp for key and, if the cooldown has elapsed,
	// records now as the new stamp. The stamp write is part of a successful
	// check, not deferred until the wrapped operation completes: a cooldown
	// bounds the rate of attempts, not successes. Returns the remaining wait
	// when denied.
	Allow(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Duration, error)
}

// Gate applies a shared cooldown interval across all principals and classes.
type Gate struct {
	mu      sync.RWMutex
	seconds uint64
	store   Store
	clock   func() time.Time
}

// NewGate creates a gate over the given store. seconds must be positive.
func NewGate(store Store, seconds uint64) (*Gate, error) {
	if seconds == 0 {
		return nil, ErrInvalidCooldown
	}
	return &Gate{
		seconds: seconds,
		store:   store,
		clock:   time.Now,
	}, nil
}

// WithClock overrides the clock for testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// CheckAndStamp fails with ErrCooldownActive if the principal acted on this
// class within the cooldown window, and otherwise consumes the window.
func (g *Gate) CheckAndStamp(ctx context.Context, principal string, class Class) error {
	g.mu.RLock()
	cooldown := time.Duration(g.seconds) * time.Second
	g.mu.RUnlock()

	key := fmt.Sprintf("%s:%s", class, principal)
	ok, wait, err := g.store.Allow(ctx, key, g.clock(), cooldown)
	if err != nil {
		return fmt.Errorf("cooldown check for %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s retry in %s", ErrCooldownActive, key, wait)
	}
	return nil
}

// SetSeconds updates the cooldown interval. Zero is rejected with
// ErrInvalidCooldown.
func (g *Gate) SetSeconds(n uint64) error {
	if n == 0 {
		return ErrInvalidCooldown
	}
	g.mu.Lock()
	g.seconds = n
	g.mu.Unlock()
	return nil
}

// Seconds returns the current cooldown interval.
func (g *Gate) Seconds() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.seconds
}

// MemoryStore keeps stamps in a map, for tests and single-instance
// deployments.
type MemoryStore struct {
	mu     sync.Mutex
	stamps map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stamps: make(map[string]time.Time)}
}

func (s *MemoryStore) Allow(_ context.Context, key string, now time.Time, cooldown time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.stamps[key]; ok {
		if until := last.Add(cooldown); now.Before(until) {
			return false, until.Sub(now), nil
		}
	}
	s.stamps[key] = now
	return true, 0, nil
}
