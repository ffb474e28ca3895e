package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// CAS is a content-addressable store backed by the local Kubo "ipfs" CLI.
//
// This is an optional adapter package. The core library remains storage-provider
// agnostic; any external CAS can integrate by implementing storage.CAS.
//
// Properties:
// - Offline: operates on the local IPFS repo; does not require an IPFS daemon.
// - Deterministic: no wall-clock usage; validates bytes against the requested CID.
// - Best-effort: relies on an external "ipfs" binary (configurable).
//
// Identity contract: CIDv1 raw blocks; the multihash type is the identity's
// algorithm. git-sha1 identities are not supported (their codec is git-raw).
//
// Warning: This adapter is not authoritative. Transport/reachability is not
// validity; CID verification is.
//
// Note: This package name is "ipfs" for familiarity, but it does not embed a
// network client; it shells out to the local Kubo CLI.
type CAS struct {
	bin string
	env []string
}

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &CAS{bin: bin, env: opts.Env}
}

func (c *CAS) Put(ctx context.Context, data []byte, alg identity.Algorithm) (identity.Identity, error) {
	if alg == identity.GitSHA1 {
		return identity.Undef, storage.ErrUnsupported
	}
	id, err := identity.Identify(data, alg)
	if err != nil {
		return identity.Undef, err
	}

	// Store as a raw block with explicit parameters so the CID matches the identity wire form.
	out, err := c.run(ctx, data,
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype="+string(alg),
		"--mhlen="+strconv.Itoa(alg.Size()),
		"--cid-version=1",
		"/dev/stdin",
	)
	if err != nil {
		return identity.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return identity.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id.CID()) {
		return identity.Undef, storage.ErrMismatch
	}
	return id, nil
}

func (c *CAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidIdentity
	}
	if id.Algorithm() == identity.GitSHA1 {
		return nil, storage.ErrNotFound
	}

	out, err := c.run(ctx, nil, "block", "get", id.String())
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
	if !id.Defined() || id.Algorithm() == identity.GitSHA1 {
		return false
	}
	_, err := c.run(ctx, nil, "block", "stat", id.String())
	return err == nil
}

func (c *CAS) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
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
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "block not found") || strings.Contains(msg, "blockservice: key not found")
}
