// Package decrypt owns the decryption request state machine: commitments at
// request time, verification and exactly-once reveal at callback time.
package decrypt

import (
	"context"
	"sync"
	"time"
)

// Request is one decryption request. Lifecycle: Requested → Processed
// (terminal); requests are never deleted.
type Request struct {
	ID          string    `json:"id"`
	BatchID     uint64    `json:"batch_id"`
	StateHash   string    `json:"state_hash"`
	Processed   bool      `json:"processed"`
	RequestedAt time.Time `json:"requested_at"`
	ProcessedAt time.Time `json:"processed_at,omitempty"`
	// Plaintext is the revealed profit, valid only once Processed.
	Plaintext uint64 `json:"plaintext,omitempty"`
}

// Store persists decryption requests. Get returns (nil, nil) for unknown
// ids; the coordinator maps that to its own error.
type Store interface {
	Put(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)

	// MarkProcessed flips the request to its terminal state and records the
	// revealed plaintext. Implementations must not un-process.
	MarkProcessed(ctx context.Context, id string, plaintext uint64, at time.Time) error
}

// MemoryStore keeps requests in a map, for tests and single-instance
// deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]Request
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]Request)}
}

func (s *MemoryStore) Put(_ context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = *r
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	out := r
	return &out, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, id string, plaintext uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.Processed {
		return ErrUnknownRequest
	}
	r.Processed = true
	r.Plaintext = plaintext
	r.ProcessedAt = at
	s.requests[id] = r
	return nil
}
