package storage

import (
	"context"

	"xdao.co/proofs/identity"
)

// CAS is a minimal content-addressable storage interface.
//
// Contract:
//   - Put MUST be idempotent.
//   - Stored objects MUST be immutable.
//   - Identities MUST be derived from the bytes written under the requested algorithm.
//   - Get MUST re-derive the identity of the bytes it returns and fail with
//     ErrMismatch instead of returning bytes that do not match.
//   - Get MUST return ErrNotFound when the identity is absent.
type CAS interface {
	Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error)
	Get(ctx context.Context, id identity.Identity) ([]byte, error)
	Has(ctx context.Context, id identity.Identity) bool
}

// Resolver is the smallest backend contract: bytes by identity string.
//
// A Resolver is untrusted. Wrap it with FromResolver to obtain a verifying,
// read-only CAS.
type Resolver interface {
	Resolve(ctx context.Context, key string) ([]byte, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, key string) ([]byte, error)

func (f ResolverFunc) Resolve(ctx context.Context, key string) ([]byte, error) { return f(ctx, key) }
