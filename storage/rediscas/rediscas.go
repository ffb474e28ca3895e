// Package rediscas stores content in Redis under "<prefix><identity>" keys.
package rediscas

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v7"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

const DefaultPrefix = "xdao:cas:"

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// CAS is a Redis-backed content store. Writes use SETNX so concurrent
// identical puts are harmless and existing objects are never replaced.
type CAS struct {
	client *redis.Client
	prefix string
}

var _ storage.CAS = (*CAS)(nil)

func New(opts Options) (*CAS, error) {
	if opts.Addr == "" {
		return nil, errors.New("rediscas: address is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &CAS{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: prefix,
	}, nil
}

func (c *CAS) Close() error { return c.client.Close() }

// Ping checks connectivity.
func (c *CAS) Ping(ctx context.Context) error {
	return c.client.WithContext(ctx).Ping().Err()
}

func (c *CAS) key(id identity.Identity) string { return c.prefix + id.String() }

func (c *CAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	id, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}
	created, err := c.client.WithContext(ctx).SetNX(c.key(id), data, 0).Result()
	if err != nil {
		return identity.Undef, fmt.Errorf("rediscas: put %s: %w", id, err)
	}
	if created {
		return id, nil
	}
	existing, err := c.Get(ctx, id)
	if err != nil || !bytes.Equal(existing, data) {
		return identity.Undef, storage.ErrImmutable
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidIdentity
	}
	b, err := c.client.WithContext(ctx).Get(c.key(id)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rediscas: get %s: %w", id, err)
	}
	if !id.Matches(b) {
		return nil, storage.ErrMismatch
	}
	return b, nil
}

func (c *CAS) Has(ctx context.Context, id identity.Identity) bool {
	if !id.Defined() {
		return false
	}
	n, err := c.client.WithContext(ctx).Exists(c.key(id)).Result()
	return err == nil && n > 0
}
