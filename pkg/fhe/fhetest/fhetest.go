// Package fhetest provides a plaintext stand-in for the fhe.Arithmetic
// capability so protocol tests do not pay lattice keygen costs. Handles carry
// their value directly; a per-handle nonce keeps digests unique, mirroring
// the randomized ciphertexts of the real backend.
package fhetest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"

	"github.com/cipherlend/cipherlend/pkg/fhe"
)

// Modulus matches the plaintext modulus of the BFV default parameter set so
// wraparound behavior agrees between fake and real backends.
const Modulus = 65537

// Scheme implements fhe.Arithmetic over plain uint64 values.
type Scheme struct {
	nonce atomic.Uint64
}

// Handle is a fake opaque handle. Exported so oracle fakes can read values.
type Handle struct {
	Value  uint64
	nonce  uint64
	digest string
}

func (h *Handle) Initialized() bool { return h != nil }

func (h *Handle) Digest() string {
	if h == nil {
		return ""
	}
	return h.digest
}

func (h *Handle) Bytes() ([]byte, error) {
	if h == nil {
		return nil, fhe.ErrUninitialized
	}
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[:8], h.Value)
	binary.BigEndian.PutUint64(out[8:], h.nonce)
	return out, nil
}

func New() *Scheme { return &Scheme{} }

// Encrypt wraps v in a fresh handle. Each call yields a distinct digest even
// for equal values.
func (s *Scheme) Encrypt(v uint64) *Handle {
	n := s.nonce.Add(1)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], v%Modulus)
	binary.BigEndian.PutUint64(buf[8:], n)
	sum := sha256.Sum256(buf[:])
	return &Handle{
		Value:  v % Modulus,
		nonce:  n,
		digest: "sha256:" + hex.EncodeToString(sum[:]),
	}
}

func (s *Scheme) Add(a, b fhe.Handle) (fhe.Handle, error) {
	x, y, err := pair(a, b)
	if err != nil {
		return nil, err
	}
	return s.Encrypt((x.Value + y.Value) % Modulus), nil
}

func (s *Scheme) Sub(a, b fhe.Handle) (fhe.Handle, error) {
	x, y, err := pair(a, b)
	if err != nil {
		return nil, err
	}
	return s.Encrypt((x.Value + Modulus - y.Value) % Modulus), nil
}

func (s *Scheme) Mul(a, b fhe.Handle) (fhe.Handle, error) {
	x, y, err := pair(a, b)
	if err != nil {
		return nil, err
	}
	return s.Encrypt((x.Value * y.Value) % Modulus), nil
}

func (s *Scheme) Zero() (fhe.Handle, error) {
	return s.Encrypt(0), nil
}

// Decrypt plays the oracle role for fake handles, returning the 8-byte
// big-endian wire cleartext the coordinator expects.
func (s *Scheme) Decrypt(h fhe.Handle) ([]byte, error) {
	fh, err := unwrap(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, fh.Value)
	return out, nil
}

func pair(a, b fhe.Handle) (*Handle, *Handle, error) {
	x, err := unwrap(a)
	if err != nil {
		return nil, nil, err
	}
	y, err := unwrap(b)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func unwrap(h fhe.Handle) (*Handle, error) {
	if !fhe.Initialized(h) {
		return nil, fhe.ErrUninitialized
	}
	fh, ok := h.(*Handle)
	if !ok {
		return nil, fhe.ErrForeignHandle
	}
	return fh, nil
}
