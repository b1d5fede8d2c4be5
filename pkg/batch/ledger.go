// Package batch tracks the batch lifecycle and the encrypted parameter
// triple submitted against each batch. Batch ids increase monotonically and
// are never reused; at most one batch is open at a time.
package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cipherlend/cipherlend/pkg/fhe"
)

var (
	// ErrBatchAlreadyOpen means Open was called while a batch is open.
	ErrBatchAlreadyOpen = errors.New("batch: already open")

	// ErrBatchAlreadyClosed means Close was called with no open batch.
	ErrBatchAlreadyClosed = errors.New("batch: already closed")

	// ErrBatchClosed means an operation required an open (or, for execution,
	// any current) batch and found none.
	ErrBatchClosed = errors.New("batch: closed")
)

// LoanParams is the encrypted parameter triple for one batch. Handles are
// opaque; this package never reads them in cleartext.
type LoanParams struct {
	LoanAmount       fhe.Handle
	CollateralAmount fhe.Handle
	InterestRate     fhe.Handle
}

// Initialized reports whether all three handles are usable.
func (p LoanParams) Initialized() bool {
	return fhe.Initialized(p.LoanAmount) &&
		fhe.Initialized(p.CollateralAmount) &&
		fhe.Initialized(p.InterestRate)
}

// Digests returns the content hashes of the triple, for notification
// payloads. Cleartext never leaves this package because there is none.
func (p LoanParams) Digests() [3]string {
	return [3]string{
		digest(p.LoanAmount),
		digest(p.CollateralAmount),
		digest(p.InterestRate),
	}
}

func digest(h fhe.Handle) string {
	if !fhe.Initialized(h) {
		return ""
	}
	return h.Digest()
}

// Ledger owns Batch and LoanParams state. The first opened batch has id 1.
type Ledger struct {
	mu      sync.RWMutex
	current uint64
	open    bool
	params  map[uint64]LoanParams
	arith   fhe.Arithmetic
}

// NewLedger creates an empty ledger. The arithmetic capability supplies the
// canonical zero used to coerce uninitialized submissions.
func NewLedger(arith fhe.Arithmetic) *Ledger {
	return &Ledger{
		params: make(map[uint64]LoanParams),
		arith:  arith,
	}
}

// Open starts the next batch. Fails with ErrBatchAlreadyOpen if one is open.
func (l *Ledger) Open() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		return 0, ErrBatchAlreadyOpen
	}
	l.current++
	l.open = true
	return l.current, nil
}

// Close marks the current batch closed. The id stays current so results can
// still be retrieved and executed against.
func (l *Ledger) Close() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return 0, ErrBatchAlreadyClosed
	}
	l.open = false
	return l.current, nil
}

// Current returns the current batch id and whether it is open. Id 0 means no
// batch was ever opened.
func (l *Ledger) Current() (uint64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current, l.open
}

// SubmitParams records the triple against the open batch. Any uninitialized
// handle is coerced to the canonical encrypted zero rather than rejected;
// the strict initialization check happens at execution time. A repeat
// submission overwrites the previous triple (last submission wins).
func (l *Ledger) SubmitParams(loan, collateral, rate fhe.Handle) (uint64, LoanParams, error) {
	coerced, err := l.coerce(LoanParams{
		LoanAmount:       loan,
		CollateralAmount: collateral,
		InterestRate:     rate,
	})
	if err != nil {
		return 0, LoanParams{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open {
		return 0, LoanParams{}, ErrBatchClosed
	}
	l.params[l.current] = coerced
	return l.current, coerced, nil
}

// Params returns the triple stored for batchID by value.
func (l *Ledger) Params(batchID uint64) (LoanParams, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.params[batchID]
	return p, ok
}

func (l *Ledger) coerce(p LoanParams) (LoanParams, error) {
	var err error
	if p.LoanAmount, err = l.zeroIfUnset(p.LoanAmount); err != nil {
		return LoanParams{}, err
	}
	if p.CollateralAmount, err = l.zeroIfUnset(p.CollateralAmount); err != nil {
		return LoanParams{}, err
	}
	if p.InterestRate, err = l.zeroIfUnset(p.InterestRate); err != nil {
		return LoanParams{}, err
	}
	return p, nil
}

func (l *Ledger) zeroIfUnset(h fhe.Handle) (fhe.Handle, error) {
	if fhe.Initialized(h) {
		return h, nil
	}
	z, err := l.arith.Zero()
	if err != nil {
		return nil, fmt.Errorf("coerce uninitialized handle: %w", err)
	}
	return z, nil
}
