package oracle

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const proofIssuer = "cipherlend/oracle"

// ProofClaims binds a delivery to its request id and cleartext. The jti
// claim carries the request id; the cleartext digest ties the token to the
// exact bytes delivered.
type ProofClaims struct {
	jwt.RegisteredClaims
	CleartextSHA256 string `json:"cleartext_sha256"`
}

// Signer mints EdDSA-signed proofs on the oracle side.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewSigner generates a fresh proof-signing key pair.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("oracle: proof key generation: %w", err)
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// PublicKey returns the verification key to hand to coordinators.
func (s *Signer) PublicKey() ed25519.PublicKey { return s.pub }

// Mint signs a proof for one delivery.
func (s *Signer) Mint(requestID string, cleartext []byte) (string, error) {
	sum := sha256.Sum256(cleartext)
	claims := ProofClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       requestID,
			Issuer:   proofIssuer,
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
		CleartextSHA256: hex.EncodeToString(sum[:]),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.priv)
	if err != nil {
		return "", fmt.Errorf("oracle: sign proof: %w", err)
	}
	return token, nil
}

// ProofVerifier checks proofs against the oracle's public key. It implements
// Verifier.
type ProofVerifier struct {
	pub ed25519.PublicKey
}

func NewProofVerifier(pub ed25519.PublicKey) *ProofVerifier {
	return &ProofVerifier{pub: pub}
}

// CheckSignatures reports whether proof is an authentic binding of requestID
// to cleartext. Verification failures are reported as false, not as errors.
func (v *ProofVerifier) CheckSignatures(requestID string, cleartext []byte, proof string) (bool, error) {
	token, err := jwt.ParseWithClaims(proof, &ProofClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.pub, nil
	}, jwt.WithIssuer(proofIssuer))
	if err != nil || !token.Valid {
		return false, nil
	}

	claims, ok := token.Claims.(*ProofClaims)
	if !ok {
		return false, nil
	}
	if claims.ID != requestID {
		return false, nil
	}
	sum := sha256.Sum256(cleartext)
	return claims.CleartextSHA256 == hex.EncodeToString(sum[:]), nil
}
