// Package access holds the owner/provider role table and the process-wide
// pause flag that gate every mutating protocol entry point.
package access

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnauthorized means the caller does not hold the role the guarded
	// operation requires.
	ErrUnauthorized = errors.New("access: unauthorized")

	// ErrPaused means a mutating call arrived while the protocol is paused.
	ErrPaused = errors.New("access: protocol paused")

	// ErrInvalidPrincipal rejects empty principal identifiers.
	ErrInvalidPrincipal = errors.New("access: empty principal")
)

// Controller is the role table. There is exactly one owner at all times;
// the provider set may be empty. All methods are safe for concurrent use.
type Controller struct {
	mu        sync.RWMutex
	owner     string
	providers map[string]struct{}
	paused    bool
}

// NewController creates a role table with the given initial owner and an
// empty provider set.
func NewController(owner string) (*Controller, error) {
	if owner == "" {
		return nil, ErrInvalidPrincipal
	}
	return &Controller{
		owner:     owner,
		providers: make(map[string]struct{}),
	}, nil
}

// TransferOwnership reassigns the owner atomically. Only the current owner
// may call it; the owner is never unset implicitly.
func (c *Controller) TransferOwnership(caller, newOwner string) error {
	if newOwner == "" {
		return ErrInvalidPrincipal
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return fmt.Errorf("transfer ownership: %w", ErrUnauthorized)
	}
	c.owner = newOwner
	return nil
}

// AddProvider grants the provider role. Adding an existing provider is a
// no-op, not an error.
func (c *Controller) AddProvider(caller, p string) error {
	if p == "" {
		return ErrInvalidPrincipal
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return fmt.Errorf("add provider: %w", ErrUnauthorized)
	}
	c.providers[p] = struct{}{}
	return nil
}

// RemoveProvider revokes the provider role. Removing a non-provider is a
// no-op.
func (c *Controller) RemoveProvider(caller, p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return fmt.Errorf("remove provider: %w", ErrUnauthorized)
	}
	delete(c.providers, p)
	return nil
}

// SetPaused toggles the pause flag. It is the one mutating operation exempt
// from the pause gate, so a paused protocol can always be resumed.
func (c *Controller) SetPaused(caller string, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return fmt.Errorf("set paused: %w", ErrUnauthorized)
	}
	c.paused = paused
	return nil
}

// Owner returns the current owner.
func (c *Controller) Owner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

// IsProvider reports provider membership.
func (c *Controller) IsProvider(p string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.providers[p]
	return ok
}

// Paused reports the pause flag.
func (c *Controller) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.paused
}

// RequireOwner fails with ErrUnauthorized unless p is the owner.
func (c *Controller) RequireOwner(p string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p != c.owner {
		return ErrUnauthorized
	}
	return nil
}

// RequireProvider fails with ErrUnauthorized unless p holds the provider
// role.
func (c *Controller) RequireProvider(p string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.providers[p]; !ok {
		return ErrUnauthorized
	}
	return nil
}

// RequireActive fails with ErrPaused while the pause flag is set.
func (c *Controller) RequireActive() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.paused {
		return ErrPaused
	}
	return nil
}
