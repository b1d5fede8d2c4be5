// Package events records every protocol notification in an append-only,
// hash-chained log. Each entry is chained to its predecessor; no deletions
// or mutations. External observers subscribe for delivery of new entries.
//
// Payloads carry opaque commitments for encrypted material; plaintext
// appears only in decryption-completed entries, after verification.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Type categorizes a notification.
type Type string

const (
	TypeOwnershipTransferred Type = "ownership_transferred"
	TypeProviderAdded        Type = "provider_added"
	TypeProviderRemoved      Type = "provider_removed"
	TypePauseSet             Type = "pause_set"
	TypeCooldownUpdated      Type = "cooldown_updated"
	TypeBatchOpened          Type = "batch_opened"
	TypeBatchClosed          Type = "batch_closed"
	TypeParamsSubmitted      Type = "params_submitted"
	TypeDecryptionRequested  Type = "decryption_requested"
	TypeDecryptionCompleted  Type = "decryption_completed"
)

// Entry is an immutable, hash-chained notification.
type Entry struct {
	Sequence    uint64                 `json:"sequence"`
	Type        Type                   `json:"type"`
	ContentHash string                 `json:"content_hash"`
	PrevHash    string                 `json:"prev_hash"`
	Timestamp   time.Time              `json:"timestamp"`
	Payload     map[string]interface{} `json:"payload"`
}

// Log is the append-only notification log.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
	clock    func() time.Time
	subs     []func(Entry)
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		headHash: "genesis",
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Subscribe registers an observer invoked synchronously for each appended
// entry. Observers must not append.
func (l *Log) Subscribe(fn func(Entry)) {
	l.mu.Lock()
	l.subs = append(l.subs, fn)
	l.mu.Unlock()
}

// Append chains a new entry and notifies observers. Returns the sequence
// number.
func (l *Log) Append(t Type, payload map[string]interface{}) (uint64, error) {
	l.mu.Lock()

	seq := uint64(len(l.entries)) + 1
	hashInput := struct {
		Seq      uint64                 `json:"seq"`
		Type     Type                   `json:"type"`
		Payload  map[string]interface{} `json:"payload"`
		PrevHash string                 `json:"prev"`
	}{seq, t, payload, l.headHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		l.mu.Unlock()
		return 0, fmt.Errorf("events: marshal entry: %w", err)
	}
	sum := sha256.Sum256(raw)
	contentHash := "sha256:" + hex.EncodeToString(sum[:])

	entry := Entry{
		Sequence:    seq,
		Type:        t,
		ContentHash: contentHash,
		PrevHash:    l.headHash,
		Timestamp:   l.clock(),
		Payload:     payload,
	}
	l.entries = append(l.entries, entry)
	l.headHash = contentHash
	subs := make([]func(Entry), len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, fn := range subs {
		fn(entry)
	}
	return seq, nil
}

// Get returns the entry with the given sequence number.
func (l *Log) Get(seq uint64) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq == 0 || seq > uint64(len(l.entries)) {
		return Entry{}, fmt.Errorf("events: no entry with sequence %d", seq)
	}
	return l.entries[seq-1], nil
}

// ByType returns all entries of the given type, oldest first.
func (l *Log) ByType(t Type) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Head returns the current chain head hash.
func (l *Log) Head() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.headHash
}

// Length returns the number of entries.
func (l *Log) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify walks the chain and reports the first break, if any.
func (l *Log) Verify() (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := "genesis"
	for i, e := range l.entries {
		if e.PrevHash != prev {
			return false, fmt.Sprintf("entry %d: prev hash mismatch", i+1)
		}
		hashInput := struct {
			Seq      uint64                 `json:"seq"`
			Type     Type                   `json:"type"`
			Payload  map[string]interface{} `json:"payload"`
			PrevHash string                 `json:"prev"`
		}{e.Sequence, e.Type, e.Payload, e.PrevHash}
		raw, err := json.Marshal(hashInput)
		if err != nil {
			return false, fmt.Sprintf("entry %d: %v", i+1, err)
		}
		sum := sha256.Sum256(raw)
		if got := "sha256:" + hex.EncodeToString(sum[:]); got != e.ContentHash {
			return false, fmt.Sprintf("entry %d: content hash mismatch", i+1)
		}
		prev = e.ContentHash
	}
	return true, ""
}
