package decrypt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cipherlend/cipherlend/pkg/batch"
	"github.com/cipherlend/cipherlend/pkg/commit"
	"github.com/cipherlend/cipherlend/pkg/compute"
	"github.com/cipherlend/cipherlend/pkg/fhe"
	"github.com/cipherlend/cipherlend/pkg/oracle"
)

var (
	// ErrReplayAttempt means a callback arrived for an already processed
	// request. This is the exactly-once guard.
	ErrReplayAttempt = errors.New("decrypt: request already processed")

	// ErrStateMismatch means the stored ciphertext state no longer matches
	// the commitment recorded at request time; the delivered plaintext would
	// not correspond to the committed ciphertext.
	ErrStateMismatch = errors.New("decrypt: state hash mismatch")

	// ErrInvalidProof means the oracle's authenticity check failed.
	ErrInvalidProof = errors.New("decrypt: invalid proof")

	// ErrUnknownRequest means no request exists under the given id.
	ErrUnknownRequest = errors.New("decrypt: unknown request")
)

// Coordinator issues decryption requests and validates their callbacks. It
// exclusively owns DecryptionRequest records and per-batch ProfitResult
// handles. All mutating paths serialize under one mutex, so the replay gate
// is atomic against concurrent duplicate deliveries.
type Coordinator struct {
	mu       sync.Mutex
	identity string
	engine   *compute.Engine
	svc      oracle.Service
	verifier oracle.Verifier
	store    Store
	profits  map[uint64]fhe.Handle
	clock    func() time.Time
}

// NewCoordinator wires the coordinator. identity is this component's own
// identifier, mixed into every commitment so a hash from another deployment
// can never satisfy a callback here.
func NewCoordinator(identity string, engine *compute.Engine, svc oracle.Service, verifier oracle.Verifier, store Store) *Coordinator {
	return &Coordinator{
		identity: identity,
		engine:   engine,
		svc:      svc,
		verifier: verifier,
		store:    store,
		profits:  make(map[uint64]fhe.Handle),
		clock:    time.Now,
	}
}

// WithClock overrides the clock for testing.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// ExecuteAndRequestDecryption computes the batch's profit, commits to it,
// and submits it to the oracle. Re-executing a batch whose prior request is
// still unanswered overwrites the stored profit; the stale request is not
// cancelled and will fail with ErrStateMismatch at callback time. That race
// is deliberate: it is caught at verification time, not locked out here.
func (c *Coordinator) ExecuteAndRequestDecryption(ctx context.Context, batchID uint64, params batch.LoanParams) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	profit, err := c.engine.Execute(params)
	if err != nil {
		return nil, err
	}

	stateHash, err := commit.StateHash(c.identity, profit)
	if err != nil {
		return nil, err
	}

	requestID, err := c.svc.RequestDecryption(ctx, []fhe.Handle{profit})
	if err != nil {
		return nil, fmt.Errorf("decrypt: submit to oracle: %w", err)
	}

	c.profits[batchID] = profit
	req := &Request{
		ID:          requestID,
		BatchID:     batchID,
		StateHash:   stateHash,
		RequestedAt: c.clock(),
	}
	if err := c.store.Put(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// OnDecryptionCallback is the sole entry point the oracle invokes. Check
// order is fixed: replay, then freshness, then proof; the processed flag is
// set before success is returned and nothing is read or written for this
// request afterwards.
func (c *Coordinator) OnDecryptionCallback(ctx context.Context, requestID string, cleartext []byte, proof string) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := c.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}

	if req.Processed {
		return nil, fmt.Errorf("%w: %s", ErrReplayAttempt, requestID)
	}

	// Recompute the commitment from own stored state, never from the caller.
	profit, ok := c.profits[req.BatchID]
	if !ok {
		return nil, fmt.Errorf("%w: no stored result for batch %d", ErrStateMismatch, req.BatchID)
	}
	currentHash, err := commit.StateHash(c.identity, profit)
	if err != nil {
		return nil, err
	}
	if currentHash != req.StateHash {
		return nil, fmt.Errorf("%w: request %s", ErrStateMismatch, requestID)
	}

	ok, err = c.verifier.CheckSignatures(requestID, cleartext, proof)
	if err != nil {
		return nil, fmt.Errorf("decrypt: proof verification: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %s", ErrInvalidProof, requestID)
	}

	plaintext, err := fhe.DecodeCleartext(cleartext)
	if err != nil {
		return nil, fmt.Errorf("decrypt: decode cleartext: %w", err)
	}

	now := c.clock()
	if err := c.store.MarkProcessed(ctx, requestID, plaintext, now); err != nil {
		return nil, err
	}

	req.Processed = true
	req.Plaintext = plaintext
	req.ProcessedAt = now
	return req, nil
}

// Request returns the stored request by id.
func (c *Coordinator) Request(ctx context.Context, id string) (*Request, error) {
	r, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, id)
	}
	return r, nil
}

// ProfitResult returns the batch's stored opaque result, if computed.
func (c *Coordinator) ProfitResult(batchID uint64) (fhe.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.profits[batchID]
	return h, ok
}
