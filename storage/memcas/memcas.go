// Package memcas is an in-process content store.
package memcas

import (
	"bytes"
	"context"
	"sync"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// CAS keeps content in memory. It is safe for concurrent use.
type CAS struct {
	mu sync.RWMutex
	m  map[identity.Identity][]byte
}

var _ storage.CAS = (*CAS)(nil)

func New() *CAS {
	return &CAS{m: make(map[identity.Identity][]byte)}
}

func (c *CAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	id, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.m[id]; ok {
		if !bytes.Equal(existing, data) {
			return identity.Undef, storage.ErrImmutable
		}
		return id, nil
	}
	c.m[id] = append([]byte(nil), data...)
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidIdentity
	}
	c.mu.RLock()
	b, ok := c.m[id]
	c.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := append([]byte(nil), b...)
	if !id.Matches(out) {
		return nil, storage.ErrMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id identity.Identity) bool {
	if !id.Defined() {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.m[id]
	return ok
}

// Len returns the number of stored objects.
func (c *CAS) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Corrupt overwrites the stored bytes for id without re-deriving its
// identity. It exists so callers can exercise tamper detection.
func (c *CAS) Corrupt(id identity.Identity, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = append([]byte(nil), data...)
}
