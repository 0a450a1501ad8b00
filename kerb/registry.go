package kerb

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"sync"
)

// ErrDigestMismatch is returned by UpdatePasswordDigest when the stored
// digest is no longer the expected one.
var ErrDigestMismatch = errors.New("stored digest does not match")

// ErrNoRegistry is returned by the KDC and credential change steps of an
// Engine configured without a Registry.
var ErrNoRegistry = errors.New("engine has no registry")

// Registry stores each client's password digest.
type Registry interface {
	// LookupPasswordDigest returns a copy of the stored digest or an error
	// matching ErrNotFound. The caller zeroes the copy after use.
	LookupPasswordDigest(ctx context.Context, clientID string) ([]byte, error)

	// UpdatePasswordDigest replaces the digest only if the stored value
	// still equals oldDigest, otherwise it returns ErrDigestMismatch.
	UpdatePasswordDigest(ctx context.Context, clientID string, oldDigest, newDigest []byte) error
}

// MemRegistry is a Registry held in memory. Updates for one client are
// serialized; different clients do not contend.
type MemRegistry struct {
	mu      sync.RWMutex
	clients map[string]*memEntry
}

type memEntry struct {
	mu     sync.Mutex
	digest []byte
}

var _ Registry = (*MemRegistry)(nil)

// NewMemRegistry returns an empty registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{clients: make(map[string]*memEntry)}
}

// SetPasswordDigest creates or overwrites the digest for clientID.
func (r *MemRegistry) SetPasswordDigest(clientID string, digest []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[clientID]; ok {
		e.mu.Lock()
		Wipe(e.digest)
		e.digest = bytes.Clone(digest)
		e.mu.Unlock()
		return
	}
	r.clients[clientID] = &memEntry{digest: bytes.Clone(digest)}
}

// Delete removes clientID.
func (r *MemRegistry) Delete(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.clients[clientID]; ok {
		e.mu.Lock()
		Wipe(e.digest)
		e.mu.Unlock()
		delete(r.clients, clientID)
	}
}

// Len returns the number of clients.
func (r *MemRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *MemRegistry) entry(clientID string) (*memEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.clients[clientID]
	return e, ok
}

func (r *MemRegistry) LookupPasswordDigest(ctx context.Context, clientID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := r.entry(clientID)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return bytes.Clone(e.digest), nil
}

func (r *MemRegistry) UpdatePasswordDigest(ctx context.Context, clientID string, oldDigest, newDigest []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := r.entry(clientID)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if subtle.ConstantTimeCompare(e.digest, oldDigest) != 1 {
		return ErrDigestMismatch
	}
	Wipe(e.digest)
	e.digest = bytes.Clone(newDigest)
	return nil
}
