package fhe

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/tuneinsight/lattigo/v4/bfv"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// BFV is the production Arithmetic backend, built on the lattigo BFV scheme.
// Integer values are encoded into slot 0 of a batched plaintext; arithmetic
// is exact modulo the plaintext modulus T.
//
// BFV holds encryption and evaluation keys only. The secret key is returned
// once at generation time and is expected to be handed to the decryption
// oracle, never retained by the coordinator process.
type BFV struct {
	params    bfv.Parameters
	encoder   bfv.Encoder
	encryptor rlwe.Encryptor
	evaluator bfv.Evaluator
}

// bfvHandle wraps a BFV ciphertext. The digest is computed once at creation
// so commitments never re-serialize.
type bfvHandle struct {
	ct     *rlwe.Ciphertext
	digest string
}

func (h *bfvHandle) Initialized() bool { return h != nil && h.ct != nil }

func (h *bfvHandle) Digest() string {
	if !h.Initialized() {
		return ""
	}
	return h.digest
}

func (h *bfvHandle) Bytes() ([]byte, error) {
	if !h.Initialized() {
		return nil, ErrUninitialized
	}
	return h.ct.MarshalBinary()
}

// NewBFV generates a fresh key set and returns the evaluator-side backend
// together with the secret key destined for the oracle.
func NewBFV() (*BFV, *rlwe.SecretKey, error) {
	params, err := bfv.NewParametersFromLiteral(bfv.PN13QP218)
	if err != nil {
		return nil, nil, fmt.Errorf("fhe: parameter setup: %w", err)
	}

	kgen := bfv.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPair()
	rlk := kgen.GenRelinearizationKey(sk, 1)

	b := &BFV{
		params:    params,
		encoder:   bfv.NewEncoder(params),
		encryptor: bfv.NewEncryptor(params, pk),
		evaluator: bfv.NewEvaluator(params, rlwe.EvaluationKey{Rlk: rlk}),
	}
	return b, sk, nil
}

// Parameters exposes the scheme parameters so the oracle side can construct
// its decryptor against the same ring.
func (b *BFV) Parameters() bfv.Parameters { return b.params }

// EncryptUint64 encrypts v into a fresh handle. The plaintext modulus bounds
// representable values; callers submit ciphertexts produced here.
func (b *BFV) EncryptUint64(v uint64) (Handle, error) {
	if t := b.params.T(); v >= t {
		return nil, fmt.Errorf("fhe: value %d exceeds plaintext modulus %d", v, t)
	}
	slots := make([]uint64, b.params.N())
	slots[0] = v
	pt := bfv.NewPlaintext(b.params, b.params.MaxLevel())
	b.encoder.Encode(slots, pt)
	return b.wrap(b.encryptor.EncryptNew(pt))
}

func (b *BFV) Add(x, y Handle) (Handle, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	return b.wrap(b.evaluator.AddNew(cx, cy))
}

func (b *BFV) Sub(x, y Handle) (Handle, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	return b.wrap(b.evaluator.SubNew(cx, cy))
}

func (b *BFV) Mul(x, y Handle) (Handle, error) {
	cx, cy, err := b.pair(x, y)
	if err != nil {
		return nil, err
	}
	// ciphertext-ciphertext product is degree 2; relinearize back to 1
	prod := b.evaluator.MulNew(cx, cy)
	return b.wrap(b.evaluator.RelinearizeNew(prod))
}

func (b *BFV) Zero() (Handle, error) {
	return b.EncryptUint64(0)
}

func (b *BFV) wrap(ct *rlwe.Ciphertext) (Handle, error) {
	raw, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("fhe: serialize ciphertext: %w", err)
	}
	sum := sha256.Sum256(raw)
	return &bfvHandle{ct: ct, digest: "sha256:" + hex.EncodeToString(sum[:])}, nil
}

func (b *BFV) pair(x, y Handle) (*rlwe.Ciphertext, *rlwe.Ciphertext, error) {
	cx, err := b.unwrap(x)
	if err != nil {
		return nil, nil, err
	}
	cy, err := b.unwrap(y)
	if err != nil {
		return nil, nil, err
	}
	return cx, cy, nil
}

func (b *BFV) unwrap(h Handle) (*rlwe.Ciphertext, error) {
	if !Initialized(h) {
		return nil, ErrUninitialized
	}
	bh, ok := h.(*bfvHandle)
	if !ok {
		return nil, ErrForeignHandle
	}
	return bh.ct, nil
}

// BFVDecryptor is the oracle-side decryption capability. It is constructed
// from the secret key and never crosses into coordinator packages.
type BFVDecryptor struct {
	params    bfv.Parameters
	encoder   bfv.Encoder
	decryptor rlwe.Decryptor
}

// NewBFVDecryptor builds a decryptor over the backend's parameters.
func NewBFVDecryptor(b *BFV, sk *rlwe.SecretKey) *BFVDecryptor {
	return &BFVDecryptor{
		params:    b.params,
		encoder:   bfv.NewEncoder(b.params),
		decryptor: bfv.NewDecryptor(b.params, sk),
	}
}

// Decrypt decodes the value in slot 0 and returns it as an 8-byte big-endian
// cleartext, the wire form carried through oracle callbacks.
func (d *BFVDecryptor) Decrypt(h Handle) ([]byte, error) {
	if !Initialized(h) {
		return nil, ErrUninitialized
	}
	bh, ok := h.(*bfvHandle)
	if !ok {
		return nil, ErrForeignHandle
	}
	pt := d.decryptor.DecryptNew(bh.ct)
	slots := make([]uint64, d.params.N())
	d.encoder.Decode(pt, slots)

	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, slots[0])
	return out, nil
}

// DecodeCleartext converts oracle wire cleartext back into the integer it
// carries.
func DecodeCleartext(cleartext []byte) (uint64, error) {
	if len(cleartext) != 8 {
		return 0, fmt.Errorf("fhe: cleartext length %d, want 8", len(cleartext))
	}
	return binary.BigEndian.Uint64(cleartext), nil
}
