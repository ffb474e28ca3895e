package storage

import (
	"context"
	"fmt"

	"xdao.co/proofs/identity"
)

// NamedCAS associates a CAS with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// identities to match (otherwise ErrMismatch is returned).
//
// Use PutAll when you need the per-backend identity mapping.
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = (*ReplicatingCAS)(nil)

// PutAll writes the same bytes to all backends.
//
// It returns:
// - the canonical identity (computed from bytes)
// - a map of backend name -> returned identity
//
// If any backend returns a different identity, ErrMismatch is returned.
func (r ReplicatingCAS) PutAll(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, map[string]identity.Identity, error) {
	want, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return identity.Undef, nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}

	out := make(map[string]identity.Identity, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return identity.Undef, nil, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		got, err := b.CAS.Put(ctx, data, alg)
		if err != nil {
			return identity.Undef, nil, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if got != want {
			return identity.Undef, out, ErrMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	id, _, err := r.PutAll(ctx, data, alg)
	return id, err
}

func (r ReplicatingCAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	for _, b := range r.Backends {
		if b.CAS == nil {
			continue
		}
		out, err := b.CAS.Get(ctx, id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingCAS) Has(ctx context.Context, id identity.Identity) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(ctx, id) {
			return true
		}
	}
	return false
}
