package build

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/memcas"
	"xdao.co/proofs/transform"
)

func concat(t *testing.T) transform.Transformation {
	t.Helper()
	c, err := transform.Lookup("concat", transform.InputManifest, nil)
	require.NoError(t, err)
	return c
}

func TestScenario_LocalThenProof(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for name, body := range map[string]string{"one.js": "a", "two.js": "b", "three.js": "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	store := memcas.New()
	opts := Options{Store: store}

	local, err := BuildFromLocalSources(ctx, DirReader{Root: dir}, []string{"one.js", "two.js", "three.js"}, concat(t), opts)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(local.Artifact))
	require.Len(t, local.Proof, 3)
	assert.Equal(t, identity.MustIdentify([]byte("a"), identity.SHA2_256), local.Proof[0])
	assert.Equal(t, identity.MustIdentify([]byte("c"), identity.SHA2_256), local.Proof[2])

	parsed, err := proof.ParseInclusion(local.Proof.Bytes())
	require.NoError(t, err)
	fromProof, err := BuildFromProof(ctx, parsed, concat(t), opts)
	require.NoError(t, err)
	assert.Equal(t, local.Artifact, fromProof.Artifact)
	assert.Equal(t, local.Proof.Bytes(), fromProof.Proof.Bytes())
}

func TestDeterminism_RandomSourceSets(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	algs := identity.Algorithms()

	for round := 0; round < 50; round++ {
		n := rng.Intn(12)
		sources := MapReader{}
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("src-%d", i)
			body := make([]byte, rng.Intn(64))
			rng.Read(body)
			sources[names[i]] = body
		}
		rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
		opts := Options{
			Algorithm: algs[rng.Intn(len(algs))],
			Store:     memcas.New(),
			Workers:   1 + rng.Intn(4),
		}

		a, err := BuildFromLocalSources(ctx, sources, names, concat(t), opts)
		require.NoError(t, err)
		b, err := BuildFromProof(ctx, a.Proof, concat(t), opts)
		require.NoError(t, err, "round %d", round)
		require.Equal(t, a.Artifact, b.Artifact, "round %d", round)
		require.True(t, a.Proof.Equal(b.Proof), "round %d", round)
	}
}

func TestOrderSensitivity(t *testing.T) {
	ctx := context.Background()
	src := MapReader{"x": []byte("x"), "y": []byte("y")}

	a, err := BuildFromLocalSources(ctx, src, []string{"x", "y"}, concat(t), Options{})
	require.NoError(t, err)
	b, err := BuildFromLocalSources(ctx, src, []string{"y", "x"}, concat(t), Options{})
	require.NoError(t, err)

	assert.False(t, a.Proof.Equal(b.Proof))
	assert.NotEqual(t, identity.MustIdentify(a.Artifact, identity.SHA2_256), identity.MustIdentify(b.Artifact, identity.SHA2_256))
}

func TestMissingSource(t *testing.T) {
	_, err := BuildFromLocalSources(context.Background(), DirReader{Root: t.TempDir()}, []string{"absent.js"}, concat(t), Options{})
	require.Error(t, err)
	assert.True(t, proof.IsKind(err, proof.KindNotFound))
	assert.Equal(t, proof.ExitNotFound, proof.ExitCode(err))
}

func TestDirReader_RejectsEscapes(t *testing.T) {
	r := DirReader{Root: t.TempDir()}
	for _, name := range []string{"", "../etc/passwd", "/etc/passwd"} {
		_, err := r.ReadSource(context.Background(), name)
		assert.Error(t, err, name)
		assert.False(t, errors.Is(err, ErrSourceNotFound), name)
	}
}

func TestBuildFromProof_TamperedStore(t *testing.T) {
	ctx := context.Background()
	store := memcas.New()
	src := MapReader{"a": []byte("a"), "b": []byte("b")}
	local, err := BuildFromLocalSources(ctx, src, []string{"a", "b"}, concat(t), Options{Store: store})
	require.NoError(t, err)

	store.Corrupt(local.Proof[1], []byte("B"))

	_, err = BuildFromProof(ctx, local.Proof, concat(t), Options{Store: store})
	require.Error(t, err)
	var e *proof.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, proof.KindProofVerification, e.Kind)
	assert.Equal(t, 2, e.Index)
	assert.ErrorIs(t, err, storage.ErrMismatch)
	assert.Equal(t, proof.ExitValidation, proof.ExitCode(err))
}

func TestBuildFromProof_NotFound(t *testing.T) {
	p := proof.Inclusion{identity.MustIdentify([]byte("nowhere"), identity.SHA2_256)}
	_, err := BuildFromProof(context.Background(), p, concat(t), Options{Store: memcas.New()})
	require.Error(t, err)
	assert.True(t, proof.IsKind(err, proof.KindProofVerification))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, "PROOF-BUILD-020", proof.RuleID(err))
}

func TestBuildFromProof_RequiresStore(t *testing.T) {
	_, err := BuildFromProof(context.Background(), nil, concat(t), Options{})
	assert.True(t, proof.IsKind(err, proof.KindUsage))
}

// slowCAS delays reads in reverse order so later entries finish first.
type slowCAS struct {
	storage.CAS
	order   map[identity.Identity]int
	fetched atomic.Int32
}

func (s *slowCAS) Get(ctx context.Context, id identity.Identity) ([]byte, error) {
	s.fetched.Add(1)
	select {
	case <-time.After(time.Duration(len(s.order)-s.order[id]) * 5 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.CAS.Get(ctx, id)
}

func TestResolve_ParallelKeepsOrder(t *testing.T) {
	ctx := context.Background()
	base := memcas.New()
	var p proof.Inclusion
	order := map[identity.Identity]int{}
	for i := 0; i < 8; i++ {
		id, err := base.Put(ctx, []byte(fmt.Sprintf("item-%d", i)), identity.SHA2_256)
		require.NoError(t, err)
		order[id] = i
		p = append(p, id)
	}

	got, err := Resolve(ctx, &slowCAS{CAS: base, order: order}, p, 8)
	require.NoError(t, err)
	for i, b := range got {
		assert.Equal(t, fmt.Sprintf("item-%d", i), string(b))
	}
}

func TestResolve_FailFast(t *testing.T) {
	ctx := context.Background()
	base := memcas.New()
	var p proof.Inclusion
	order := map[identity.Identity]int{}
	missing := identity.MustIdentify([]byte("missing"), identity.SHA2_256)
	p = append(p, missing)
	order[missing] = 0
	for i := 0; i < 20; i++ {
		id, err := base.Put(ctx, []byte(fmt.Sprintf("item-%d", i)), identity.SHA2_256)
		require.NoError(t, err)
		order[id] = i + 1
		p = append(p, id)
	}

	cas := &slowCAS{CAS: base, order: order}
	_, err := Resolve(ctx, cas, p, 2)
	require.Error(t, err)
	var e *proof.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, 1, e.Index)
	assert.Less(t, int(cas.fetched.Load()), len(p))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "one.js"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "two.js"), []byte("b"), 0o644))
	path := filepath.Join(dir, "build.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
algorithm  = "blake3"
source_dir = "src"
sources    = ["one.js", "two.js"]
out        = "out/bundle.js"

[transform]
name = "concat"
[transform.params]
separator = ";"
`), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	opts, err := m.Options()
	require.NoError(t, err)
	assert.Equal(t, identity.BLAKE3, opts.Algorithm)

	tr, err := m.Transformation()
	require.NoError(t, err)
	res, err := BuildFromLocalSources(context.Background(), m.Reader(), m.Sources, tr, opts)
	require.NoError(t, err)
	assert.Equal(t, "a;b;", string(res.Artifact))
	assert.Equal(t, identity.BLAKE3, res.Proof[0].Algorithm())
}

func TestLoadManifest_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.toml")
	require.NoError(t, os.WriteFile(path, []byte("sourcez = []\n[transform]\nname = \"concat\"\n"), 0o644))
	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Equal(t, "PROOF-MANIFEST-002", proof.RuleID(err))
}

func TestBuild_ReplacedExecProgramIsMismatch(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	tool := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\ncat\n"), 0o755))
	tr, err := transform.Lookup("exec", transform.InputManifest, map[string]string{"program": tool})
	require.NoError(t, err)

	r := MapReader{"a": []byte("a")}
	_, err = BuildFromLocalSources(context.Background(), r, []string{"a"}, tr, Options{})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho forged\n"), 0o755))
	_, err = BuildFromLocalSources(context.Background(), r, []string{"a"}, tr, Options{})
	require.Error(t, err)
	assert.Equal(t, proof.ExitMismatch, proof.ExitCode(err), "%v", err)
}
