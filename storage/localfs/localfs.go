package localfs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// CAS is a local filesystem-backed content-addressable store.
//
// Objects are stored immutably and keyed strictly by identity, one directory
// per algorithm. This implementation is offline and deterministic: it never
// uses the network and never depends on wall-clock time.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

func (c *CAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	id, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return identity.Undef, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := c.Get(ctx, id)
			if rerr != nil {
				// If the file exists but is unreadable or corrupted, treat as an immutability violation.
				return identity.Undef, storage.ErrImmutable
			}
			if !bytes.Equal(existing, data) {
				return identity.Undef, storage.ErrImmutable
			}
			return id, nil
		}
		return identity.Undef, err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return identity.Undef, err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return identity.Undef, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return identity.Undef, err
	}

	return id, nil
}

func (c *CAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidIdentity
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
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
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id identity.Identity) string {
	h := id.Hex()
	return filepath.Join(c.root, string(id.Algorithm()), h[:2], h)
}
