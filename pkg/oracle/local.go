package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cipherlend/cipherlend/pkg/fhe"
)

// ErrUnknownRequest means delivery was attempted for a request id the oracle
// never assigned.
var ErrUnknownRequest = errors.New("oracle: unknown request id")

// Local is an in-process oracle holding the decryption key. Requests are
// queued at submission time and decrypted at delivery time, which keeps the
// asynchronous boundary: the coordinator returns before any cleartext
// exists. Delivery can be driven manually (tests reproduce duplicates and
// delays) or drained in request order.
type Local struct {
	mu      sync.Mutex
	dec     Decryptor
	signer  *Signer
	limiter *rate.Limiter
	cb      Callback
	pending map[string][]fhe.Handle
	order   []string
}

// NewLocal creates a local oracle around the given decryption capability.
func NewLocal(dec Decryptor, signer *Signer) *Local {
	return &Local{
		dec:     dec,
		signer:  signer,
		pending: make(map[string][]fhe.Handle),
	}
}

// WithRateLimit paces callback delivery, bounding decryption throughput.
func (o *Local) WithRateLimit(perSecond rate.Limit, burst int) *Local {
	o.limiter = rate.NewLimiter(perSecond, burst)
	return o
}

// SetCallback registers the coordinator entry point invoked on delivery.
func (o *Local) SetCallback(cb Callback) {
	o.mu.Lock()
	o.cb = cb
	o.mu.Unlock()
}

// RequestDecryption assigns a request id and queues the ciphertext set.
func (o *Local) RequestDecryption(_ context.Context, ciphertexts []fhe.Handle) (string, error) {
	for _, h := range ciphertexts {
		if !fhe.Initialized(h) {
			return "", fhe.ErrUninitialized
		}
	}
	id := uuid.NewString()

	o.mu.Lock()
	cts := make([]fhe.Handle, len(ciphertexts))
	copy(cts, ciphertexts)
	o.pending[id] = cts
	o.order = append(o.order, id)
	o.mu.Unlock()

	return id, nil
}

// Deliver decrypts the request's ciphertext set and invokes the callback
// with cleartext and proof. The request stays queued afterwards, so a second
// Deliver reproduces duplicate delivery.
func (o *Local) Deliver(ctx context.Context, requestID string) error {
	o.mu.Lock()
	cts, ok := o.pending[requestID]
	cb := o.cb
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	if cb == nil {
		return errors.New("oracle: no callback registered")
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("oracle: delivery pacing: %w", err)
		}
	}

	var cleartext []byte
	for _, ct := range cts {
		pt, err := o.dec.Decrypt(ct)
		if err != nil {
			return fmt.Errorf("oracle: decrypt request %s: %w", requestID, err)
		}
		cleartext = append(cleartext, pt...)
	}

	proof, err := o.signer.Mint(requestID, cleartext)
	if err != nil {
		return err
	}
	return cb(ctx, requestID, cleartext, proof)
}

// DeliverAll drains every queued request in submission order, returning the
// first callback error.
func (o *Local) DeliverAll(ctx context.Context) error {
	o.mu.Lock()
	ids := make([]string, len(o.order))
	copy(ids, o.order)
	o.mu.Unlock()

	for _, id := range ids {
		if err := o.Deliver(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the ids of queued requests in submission order.
func (o *Local) Pending() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}
