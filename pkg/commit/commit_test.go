package commit

import (
	"errors"
	"strings"
	"testing"

	"github.com/cipherlend/cipherlend/pkg/fhe"
	"github.com/cipherlend/cipherlend/pkg/fhe/fhetest"
)

func TestStateHashDeterministic(t *testing.T) {
	s := fhetest.New()
	a, b := s.Encrypt(1), s.Encrypt(2)

	h1, err := StateHash("node-a", a, b)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := StateHash("node-a", a, b)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("same inputs produced different hashes: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Fatalf("hash missing scheme prefix: %s", h1)
	}
}

func TestStateHashOrderIndependent(t *testing.T) {
	s := fhetest.New()
	a, b, c := s.Encrypt(1), s.Encrypt(2), s.Encrypt(3)

	h1, err := StateHash("node-a", a, b, c)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := StateHash("node-a", c, a, b)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("handle order should not change the commitment")
	}
}

func TestStateHashBindsIdentityAndHandles(t *testing.T) {
	s := fhetest.New()
	a := s.Encrypt(1)

	h1, err := StateHash("node-a", a)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := StateHash("node-b", a)
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("different identities should produce different commitments")
	}

	// a fresh encryption of the same value has a new digest
	h3, err := StateHash("node-a", s.Encrypt(1))
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h3 {
		t.Fatal("re-encrypted handle should produce a different commitment")
	}
}

func TestStateHashRejectsUninitialized(t *testing.T) {
	s := fhetest.New()
	if _, err := StateHash("node-a", s.Encrypt(1), nil); !errors.Is(err, fhe.ErrUninitialized) {
		t.Fatalf("expected ErrUninitialized, got %v", err)
	}

	var nilHandle *fhetest.Handle
	if _, err := StateHash("node-a", nilHandle); !errors.Is(err, fhe.ErrUninitialized) {
		t.Fatalf("typed nil handle: expected ErrUninitialized, got %v", err)
	}
}
