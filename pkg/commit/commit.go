// Package commit computes the state hash binding a decryption request to the
// exact ciphertext set it was issued for. The commitment is a SHA-256 digest
// over the RFC 8785 canonical JSON of the sorted ciphertext digests plus the
// committing component's identity, so a callback can be checked against the
// coordinator's own stored state rather than caller-supplied data.
package commit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/cipherlend/cipherlend/pkg/fhe"
)

type document struct {
	Identity    string   `json:"identity"`
	Ciphertexts []string `json:"ciphertexts"`
}

// StateHash commits to the set of handles under the given identity. Handle
// order does not matter; the identity does.
func StateHash(identity string, handles ...fhe.Handle) (string, error) {
	digests := make([]string, 0, len(handles))
	for _, h := range handles {
		if !fhe.Initialized(h) {
			return "", fmt.Errorf("state hash: %w", fhe.ErrUninitialized)
		}
		digests = append(digests, h.Digest())
	}
	sort.Strings(digests)

	raw, err := json.Marshal(document{Identity: identity, Ciphertexts: digests})
	if err != nil {
		return "", fmt.Errorf("state hash: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("state hash: canonicalize: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
