package cooldown

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1700000000, 0)} }

func newTestGate(t *testing.T, secs uint64) (*Gate, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	g, err := NewGate(NewMemoryStore(), secs)
	if err != nil {
		t.Fatal(err)
	}
	return g.WithClock(clk.Now), clk
}

func TestGateRejectsZeroInterval(t *testing.T) {
	if _, err := NewGate(NewMemoryStore(), 0); !errors.Is(err, ErrInvalidCooldown) {
		t.Fatalf("expected ErrInvalidCooldown, got %v", err)
	}
}

func TestCheckAndStamp(t *testing.T) {
	g, clk := newTestGate(t, 30)
	ctx := context.Background()

	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); err != nil {
		t.Fatalf("first action should pass: %v", err)
	}
	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}

	clk.Advance(29 * time.Second)
	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("still inside window: expected ErrCooldownActive, got %v", err)
	}

	clk.Advance(time.Second)
	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); err != nil {
		t.Fatalf("window elapsed, should pass: %v", err)
	}
}

func TestActionClassesIndependent(t *testing.T) {
	g, _ := newTestGate(t, 30)
	ctx := context.Background()

	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); err != nil {
		t.Fatal(err)
	}
	// a fresh submission does not block a decryption request
	if err := g.CheckAndStamp(ctx, "p1", ClassDecrypt); err != nil {
		t.Fatalf("decrypt class should have its own clock: %v", err)
	}
	// and distinct principals never interfere
	if err := g.CheckAndStamp(ctx, "p2", ClassSubmit); err != nil {
		t.Fatalf("p2 should be unaffected by p1's stamp: %v", err)
	}
}

func TestStampConsumedOnCheck(t *testing.T) {
	g, clk := newTestGate(t, 30)
	ctx := context.Background()

	// The stamp is written by the check itself, so even if the wrapped
	// operation fails afterwards, the window is consumed.
	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10 * time.Second)
	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}
}

func TestSetSeconds(t *testing.T) {
	g, clk := newTestGate(t, 60)
	ctx := context.Background()

	if err := g.SetSeconds(0); !errors.Is(err, ErrInvalidCooldown) {
		t.Fatalf("expected ErrInvalidCooldown, got %v", err)
	}
	if err := g.SetSeconds(5); err != nil {
		t.Fatal(err)
	}
	if got := g.Seconds(); got != 5 {
		t.Fatalf("Seconds() = %d, want 5", got)
	}

	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); err != nil {
		t.Fatal(err)
	}
	clk.Advance(5 * time.Second)
	if err := g.CheckAndStamp(ctx, "p1", ClassSubmit); err != nil {
		t.Fatalf("shortened window should have elapsed: %v", err)
	}
}
