package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
)

type fixture struct {
	src, cas, outDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{src: t.TempDir(), cas: t.TempDir(), outDir: t.TempDir()}
	for name, body := range map[string]string{"one.js": "a", "two.js": "b", "three.js": "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(f.src, name), []byte(body), 0o644))
	}
	return f
}

func (f fixture) store() []string {
	return []string{"--backend", "localfs", "--localfs-dir", f.cas}
}

func runBuild(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestBuild_LocalThenFromProof(t *testing.T) {
	f := newFixture(t)
	first := filepath.Join(f.outDir, "first")
	second := filepath.Join(f.outDir, "second")

	args := append([]string{"--source-dir", f.src, "--out", first}, f.store()...)
	code, proofText, stderr := runBuild(t, "", append(args, "one.js", "two.js", "three.js")...)
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSuffix(proofText, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, identity.MustIdentify([]byte("a"), identity.SHA2_256).String(), lines[0])

	artifact, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(artifact))

	code, proofAgain, stderr := runBuild(t, proofText, append([]string{"--from-proof", "--out", second}, f.store()...)...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, proofText, proofAgain)

	again, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, artifact, again)
}

func TestBuild_MissingSource(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.outDir, "out")
	code, _, stderr := runBuild(t, "", "--source-dir", f.src, "--out", out, "one.js", "four.js")
	assert.Equal(t, proof.ExitNotFound, code, stderr)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "no artifact on failure")
}

func TestBuild_FromProofTamperedStore(t *testing.T) {
	f := newFixture(t)
	code, proofText, stderr := runBuild(t, "", append([]string{"--source-dir", f.src, "--out", filepath.Join(f.outDir, "a")}, append(f.store(), "one.js", "two.js")...)...)
	require.Equal(t, 0, code, stderr)

	// Flip the stored bytes of "b" behind the store's back.
	id := identity.MustIdentify([]byte("b"), identity.SHA2_256)
	var target string
	require.NoError(t, filepath.Walk(f.cas, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && filepath.Base(p) == id.Hex() {
			target = p
		}
		return err
	}))
	require.NotEmpty(t, target)
	require.NoError(t, os.Chmod(target, 0o644))
	require.NoError(t, os.WriteFile(target, []byte("B"), 0o644))

	out := filepath.Join(f.outDir, "b")
	code, _, _ = runBuild(t, proofText, append([]string{"--from-proof", "--out", out}, f.store()...)...)
	assert.Equal(t, proof.ExitValidation, code)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestBuild_FromProofUnknownIdentity(t *testing.T) {
	f := newFixture(t)
	stdin := identity.MustIdentify([]byte("never stored"), identity.SHA2_256).String() + "\n"
	code, _, _ := runBuild(t, stdin, append([]string{"--from-proof", "--out", filepath.Join(f.outDir, "x")}, f.store()...)...)
	assert.Equal(t, proof.ExitValidation, code)
}

func TestBuild_UsageErrors(t *testing.T) {
	f := newFixture(t)
	cases := [][]string{
		{"--no-such-flag"},
		{"--source-dir", f.src},
		{"--from-proof"},
		{"--transform", "nope", "--source-dir", f.src, "one.js"},
		{"--param", "novalue", "--source-dir", f.src, "one.js"},
	}
	for _, args := range cases {
		code, _, _ := runBuild(t, "", args...)
		assert.Equal(t, proof.ExitUsage, code, "%v", args)
	}
}

func TestBuild_MalformedProofOnStdin(t *testing.T) {
	f := newFixture(t)
	code, _, _ := runBuild(t, "garbage\n", append([]string{"--from-proof"}, f.store()...)...)
	assert.Equal(t, proof.ExitUsage, code)
}

func TestBuild_Manifest(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.outDir, "bundle.js")
	manifest := filepath.Join(f.src, "build.toml")
	require.NoError(t, os.WriteFile(manifest, []byte(`
algorithm = "blake3"
sources   = ["three.js", "one.js"]
out       = "`+filepath.ToSlash(out)+`"

[transform]
name = "concat"
[transform.params]
separator = ","
`), 0o644))

	code, proofText, stderr := runBuild(t, "", "--manifest", manifest)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, identity.MustIdentify([]byte("c"), identity.BLAKE3).String()+"\n"+identity.MustIdentify([]byte("a"), identity.BLAKE3).String()+"\n", proofText)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "c,a,", string(b))
}

func TestBuild_ListBackends(t *testing.T) {
	code, out, _ := runBuild(t, "", "--list-backends")
	require.Equal(t, 0, code)
	for _, name := range []string{"git", "grpc", "localfs", "memory", "redis", "s3"} {
		assert.Contains(t, out, name)
	}
}

func TestBuild_GitBackendDefaultsToGitSHA1(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not on PATH")
	}
	f := newFixture(t)
	repo := t.TempDir()
	out, err := exec.Command("git", "init", "--quiet", "--bare", repo).CombinedOutput()
	require.NoError(t, err, string(out))
	git := []string{"--backend", "git", "--git-repo", repo}

	args := append([]string{"--source-dir", f.src, "--out", filepath.Join(f.outDir, "out")}, git...)
	code, proofText, stderr := runBuild(t, "", append(args, "one.js")...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, identity.MustIdentify([]byte("a"), identity.GitSHA1).String(), strings.Split(proofText, "\n")[0])

	// An explicit algorithm the backend cannot store is a usage error.
	code, _, stderr = runBuild(t, "", append(append(args, "--algorithm", "sha2-256"), "one.js")...)
	assert.Equal(t, proof.ExitUsage, code)
	assert.Contains(t, stderr, "--algorithm")
}
