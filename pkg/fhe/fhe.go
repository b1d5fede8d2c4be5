// Package fhe defines the opaque encrypted-value handle and the arithmetic
// capability the coordinator computes with.
//
// Nothing in this package (or any package consuming it) can read a handle in
// cleartext: decryption keys live exclusively on the oracle side. Handles are
// combinable only through an Arithmetic implementation and are otherwise
// limited to identity operations (serialization, digest).
package fhe

import "errors"

// ErrUninitialized is returned when an arithmetic operation consumes a handle
// that does not reference a ciphertext.
var ErrUninitialized = errors.New("fhe: uninitialized handle")

// ErrForeignHandle is returned when a handle produced by a different backend
// is passed to an Arithmetic implementation.
var ErrForeignHandle = errors.New("fhe: handle from foreign backend")

// Handle is an opaque reference to an encrypted value.
type Handle interface {
	// Initialized reports whether the handle references a ciphertext.
	Initialized() bool

	// Digest returns the content hash of the serialized ciphertext in the
	// form "sha256:<hex>". Empty for uninitialized handles.
	Digest() string

	// Bytes returns the serialized ciphertext.
	Bytes() ([]byte, error)
}

// Arithmetic is the encrypted-computation capability: closed over Handle,
// never exposing cleartext.
type Arithmetic interface {
	Add(a, b Handle) (Handle, error)
	Sub(a, b Handle) (Handle, error)
	Mul(a, b Handle) (Handle, error)

	// Zero returns a fresh encryption of zero, the canonical substitute for
	// uninitialized submissions.
	Zero() (Handle, error)
}

// Initialized reports whether h is a usable handle. A nil interface value is
// the uninitialized state.
func Initialized(h Handle) bool {
	return h != nil && h.Initialized()
}
