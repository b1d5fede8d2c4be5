// Package oracle defines the external decryption service boundary. The
// coordinator submits ciphertext sets and receives asynchronous callbacks
// carrying cleartext plus an authenticity proof; only this package's
// verifier can judge a proof. A local in-process oracle is provided for
// deployments and tests that do not reach a remote service.
package oracle

import (
	"context"

	"github.com/cipherlend/cipherlend/pkg/fhe"
)

// Service accepts decryption requests and assigns request ids.
type Service interface {
	// RequestDecryption registers the ciphertext set for decryption and
	// returns the oracle-assigned request id. The cleartext arrives later
	// through the registered callback; delivery may be delayed, reordered,
	// or duplicated.
	RequestDecryption(ctx context.Context, ciphertexts []fhe.Handle) (string, error)
}

// Verifier is the authenticity check consumed inside the callback. The
// coordinator delegates proof verification here and implements none itself.
type Verifier interface {
	CheckSignatures(requestID string, cleartext []byte, proof string) (bool, error)
}

// Callback is the coordinator entry point the oracle invokes on completion.
type Callback func(ctx context.Context, requestID string, cleartext []byte, proof string) error

// Decryptor is the key-holding capability the oracle decrypts with.
type Decryptor interface {
	Decrypt(h fhe.Handle) ([]byte, error)
}
