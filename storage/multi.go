package storage

import (
	"context"
	"errors"

	"xdao.co/proofs/identity"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Hydration order is the slice order in Adapters; callers MUST supply a fixed order.
// This avoids map-iteration nondeterminism and makes the retrieval strategy explicit.
//
// Put is defined to write only to the first adapter.
type MultiCAS struct {
	Adapters []CAS
}

func (m MultiCAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	if len(m.Adapters) == 0 {
		return identity.Undef, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(ctx, data, alg)
}

// Get returns the first verified hit. A mismatch from one adapter is
// reported rather than masked by a later adapter, since it means a backend
// is serving corrupt content.
func (m MultiCAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	for _, cas := range m.Adapters {
		b, err := cas.Get(ctx, id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (m MultiCAS) Has(ctx context.Context, id identity.Identity) bool {
	for _, cas := range m.Adapters {
		if cas.Has(ctx, id) {
			return true
		}
	}
	return false
}
