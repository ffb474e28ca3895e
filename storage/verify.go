package storage

import (
	"bytes"
	"context"

	"github.com/rs/zerolog"

	"xdao.co/proofs/identity"
)

// Verified wraps a CAS and re-verifies every read at the boundary.
//
// Adapters verify on their own, but the core never relies on that: the
// backing store may be a third party's mirror.
type Verified struct {
	CAS CAS
}

var _ CAS = Verified{}

func (v Verified) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	want, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}
	got, err := v.CAS.Put(ctx, data, alg)
	if err != nil {
		return identity.Undef, err
	}
	if got != want {
		return identity.Undef, ErrMismatch
	}
	return want, nil
}

func (v Verified) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidIdentity
	}
	b, err := v.CAS.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !id.Matches(b) {
		zerolog.Ctx(ctx).Warn().Str("identity", id.String()).Msg("stored content failed verification")
		return nil, ErrMismatch
	}
	return b, nil
}

func (v Verified) Has(ctx context.Context, id identity.Identity) bool {
	return id.Defined() && v.CAS.Has(ctx, id)
}

// FromResolver lifts an untrusted Resolver into a verifying, read-only CAS.
// Keys passed to the resolver are identity strings (Identity.String).
func FromResolver(r Resolver) CAS {
	return resolverCAS{r: r}
}

type resolverCAS struct {
	r Resolver
}

func (c resolverCAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	id, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}
	// A resolver cannot store, but content already present is a successful no-op.
	existing, err := c.Get(ctx, id)
	if err == nil && bytes.Equal(existing, data) {
		return id, nil
	}
	return identity.Undef, ErrReadOnly
}

func (c resolverCAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidIdentity
	}
	b, err := c.r.Resolve(ctx, id.String())
	if err != nil {
		return nil, err
	}
	if !id.Matches(b) {
		return nil, ErrMismatch
	}
	return b, nil
}

func (c resolverCAS) Has(ctx context.Context, id identity.Identity) bool {
	_, err := c.Get(ctx, id)
	return err == nil
}
