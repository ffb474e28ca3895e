package gitobj

import (
	"context"
	"os/exec"
	"testing"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/testkit"
)

func newRepo(t *testing.T) *CAS {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	dir := t.TempDir()
	if out, err := exec.Command("git", "init", "--quiet", "--bare", dir).CombinedOutput(); err != nil {
		t.Skipf("git init failed: %v: %s", err, out)
	}
	cas, err := New(Options{Repo: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cas
}

func TestGitObj_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return newRepo(t)
	}, identity.GitSHA1)
}

func TestGitObj_MatchesHashObject(t *testing.T) {
	cas := newRepo(t)
	id, err := cas.Put(context.Background(), []byte(""), identity.GitSHA1)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	// The well-known id of the empty blob.
	if id.Hex() != "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391" {
		t.Fatalf("unexpected blob id %s", id.Hex())
	}
	b, err := cas.Resolve(context.Background(), id.Hex())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(b) != 0 {
		t.Fatalf("expected empty blob")
	}
}

func TestGitObj_RejectsOtherAlgorithms(t *testing.T) {
	cas, err := New(Options{Repo: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := cas.Put(context.Background(), []byte("x"), identity.SHA2_256); err != storage.ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
