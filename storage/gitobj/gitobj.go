// Package gitobj stores content as blobs in a git object database.
//
// This is the version-control reference backend: a build's inputs are named
// by their git blob ids, so any clone of the repository can serve them.
package gitobj

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// CAS is backed by the git CLI operating on a repository.
//
// Only git-sha1 identities are supported. Reads are re-verified like every
// other adapter: a repository is not trusted to return the blob it names.
type CAS struct {
	bin  string
	repo string
}

var (
	_ storage.CAS      = (*CAS)(nil)
	_ storage.Resolver = (*CAS)(nil)
)

type Options struct {
	// Bin is the git binary. If empty, "git" is used.
	Bin string
	// Repo is the repository (work tree or bare) to operate on.
	Repo string
}

func New(opts Options) (*CAS, error) {
	if opts.Repo == "" {
		return nil, errors.New("gitobj: repository path is required")
	}
	bin := opts.Bin
	if bin == "" {
		bin = "git"
	}
	return &CAS{bin: bin, repo: opts.Repo}, nil
}

func (c *CAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	if alg != identity.GitSHA1 {
		return identity.Undef, storage.ErrUnsupported
	}
	want, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}
	out, err := c.run(ctx, data, "hash-object", "-w", "--stdin")
	if err != nil {
		return identity.Undef, err
	}
	got, err := identity.Parse("git-sha1:" + strings.TrimSpace(string(out)))
	if err != nil {
		return identity.Undef, fmt.Errorf("gitobj: unexpected hash-object output: %w", err)
	}
	if got != want {
		return identity.Undef, storage.ErrMismatch
	}
	return want, nil
}

func (c *CAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidIdentity
	}
	if id.Algorithm() != identity.GitSHA1 {
		return nil, storage.ErrNotFound
	}
	out, err := c.run(ctx, nil, "cat-file", "blob", id.Hex())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if !id.Matches(out) {
		return nil, storage.ErrMismatch
	}
	return out, nil
}

func (c *CAS) Has(ctx context.Context, id identity.Identity) bool {
	if !id.Defined() || id.Algorithm() != identity.GitSHA1 {
		return false
	}
	_, err := c.run(ctx, nil, "cat-file", "-e", id.Hex())
	return err == nil
}

// Resolve implements storage.Resolver. key is any identity wire form; a bare
// 40-character hex object id is also accepted.
func (c *CAS) Resolve(ctx context.Context, key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if len(key) == 40 && !strings.Contains(key, ":") {
		key = "git-sha1:" + key
	}
	id, err := identity.Parse(key)
	if err != nil {
		return nil, storage.ErrInvalidIdentity
	}
	return c.Get(ctx, id)
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	argv := append([]string{"-C", c.repo}, args...)
	cmd := exec.CommandContext(ctx, c.bin, argv...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("git: %v", err)
		}
		return nil, fmt.Errorf("git: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	// "git cat-file -e" exits 1 without output; "cat-file blob" reports a bad object.
	return strings.Contains(msg, "not a valid object") ||
		strings.Contains(msg, "bad file") ||
		strings.Contains(msg, "could not get object") ||
		strings.Contains(msg, "exit status 128")
}
