// Package gateway reads objects from an IPFS trustless HTTP gateway.
//
// Identities are CIDv1, so a gateway that serves raw blocks
// (GET /ipfs/{cid}?format=raw) can resolve any of them it holds. The
// gateway is untrusted: every response is verified against the requested
// identity, and the store is read-only.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xdao.co/proofs/storage"
)

const rawBlockType = "application/vnd.ipld.raw"

// DefaultMaxSize bounds a single response body.
const DefaultMaxSize = 64 << 20

type Options struct {
	// URL is the gateway root, e.g. https://ipfs.example.org.
	URL string
	// Client defaults to an http.Client with Timeout.
	Client *http.Client
	// Timeout applies per request when Client is nil and Timeout is non-zero.
	Timeout time.Duration
	// MaxSize defaults to DefaultMaxSize.
	MaxSize int64
}

// Resolver fetches raw blocks by identity string.
type Resolver struct {
	base   string
	client *http.Client
	limit  int64
}

var _ storage.Resolver = (*Resolver)(nil)

func NewResolver(opts Options) (*Resolver, error) {
	u, err := url.Parse(opts.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("gateway: invalid URL %q", opts.URL)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	limit := opts.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	return &Resolver{base: strings.TrimRight(u.String(), "/"), client: client, limit: limit}, nil
}

// New returns a verifying, read-only CAS over the gateway at opts.URL.
func New(opts Options) (storage.CAS, error) {
	r, err := NewResolver(opts)
	if err != nil {
		return nil, err
	}
	return storage.FromResolver(r), nil
}

func (r *Resolver) Resolve(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/ipfs/"+url.PathEscape(key)+"?format=raw", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", rawBlockType)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return nil, storage.ErrNotFound
	case http.StatusBadRequest:
		return nil, storage.ErrInvalidIdentity
	default:
		return nil, fmt.Errorf("gateway: %s: %s", key, resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, r.limit+1))
	if err != nil {
		return nil, fmt.Errorf("gateway: read %s: %w", key, err)
	}
	if int64(len(b)) > r.limit {
		return nil, errors.New("gateway: response exceeds size limit")
	}
	return b, nil
}
