package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
)

func runProof(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{"one.js": "a", "two.js": "b", "three.js": "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func storeArgs(dir string) []string {
	return []string{"--backend", "localfs", "--localfs-dir", dir}
}

func args(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func TestIdentify_Stdin(t *testing.T) {
	code, out, stderr := runProof(t, "abc", "identify")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, identity.MustIdentify([]byte("abc"), identity.SHA2_256).String()+"\n", out)

	code, out, stderr = runProof(t, "abc", "identify", "--algorithm", "blake3", "--hex")
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasPrefix(out, "blake3:"), out)
}

func TestIdentify_UnknownAlgorithm(t *testing.T) {
	code, _, _ := runProof(t, "abc", "identify", "--algorithm", "md5")
	assert.Equal(t, proof.ExitUsage, code)
}

func TestTransform_WithoutStore(t *testing.T) {
	src := sourceDir(t)
	out := filepath.Join(t.TempDir(), "bundle.js")
	code, text, stderr := runProof(t, "", "transform", "--source-dir", src, "--out", out, "one.js", "two.js", "three.js")
	require.Equal(t, 0, code, stderr)

	tp, err := proof.ParseTransformation([]byte(text))
	require.NoError(t, err)
	artifact, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(artifact))
	assert.True(t, tp.Output.Matches(artifact))
}

func TestTransform_ThenVerify(t *testing.T) {
	src, cas := sourceDir(t), t.TempDir()
	code, text, stderr := runProof(t, "", args([]string{"transform", "--source-dir", src}, storeArgs(cas), []string{"one.js", "two.js"})...)
	require.Equal(t, 0, code, stderr)

	code, out, stderr := runProof(t, text, args([]string{"verify"}, storeArgs(cas))...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "OK\n", out)

	// A store that never saw the objects cannot verify anything.
	code, _, _ = runProof(t, text, args([]string{"verify"}, storeArgs(t.TempDir()))...)
	assert.Equal(t, proof.ExitNotFound, code)
}

func TestVerify_ForgedOutput(t *testing.T) {
	src, cas := sourceDir(t), t.TempDir()
	code, text, stderr := runProof(t, "", args([]string{"transform", "--source-dir", src}, storeArgs(cas), []string{"one.js"})...)
	require.Equal(t, 0, code, stderr)

	tp, err := proof.ParseTransformation([]byte(text))
	require.NoError(t, err)
	tp.Output = identity.MustIdentify([]byte("forged"), identity.SHA2_256)

	code, _, _ = runProof(t, string(tp.Bytes()), args([]string{"verify"}, storeArgs(cas))...)
	assert.Equal(t, proof.ExitMismatch, code)
}

func TestChain(t *testing.T) {
	src, cas := sourceDir(t), t.TempDir()
	code, text, stderr := runProof(t, "", args(
		[]string{"transform", "--source-dir", src, "--then", "zstd,level=5", "--then", "lz4"},
		storeArgs(cas),
		[]string{"one.js", "two.js", "three.js"},
	)...)
	require.Equal(t, 0, code, stderr)

	chain, err := proof.ParseChain([]byte(text))
	require.NoError(t, err)
	require.Len(t, chain, 3)

	code, out, stderr := runProof(t, text, args([]string{"chain", "verify"}, storeArgs(cas))...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "OK (3 stages)\n", out)

	code, _, stderr = runProof(t, text, "chain", "verify", "--links-only")
	require.Equal(t, 0, code, stderr)

	code, out, stderr = runProof(t, text, "chain", "verify", "--links-only", "--identity", "sha2-256")
	require.Equal(t, 0, code, stderr)
	nested, err := proof.ParseTransformation([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, chain[0].Input, nested.Input)
	assert.Equal(t, chain[2].Output, nested.Output)

	code, out, stderr = runProof(t, text, args([]string{"chain", "verify", "--identity", "blake3"}, storeArgs(cas))...)
	require.Equal(t, 0, code, stderr)
	code, out, stderr = runProof(t, out, args([]string{"verify"}, storeArgs(cas))...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "OK\n", out)

	broken := proof.Chain{chain[0], chain[2]}
	code, _, _ = runProof(t, string(broken.Bytes()), "chain", "verify", "--links-only")
	assert.Equal(t, proof.ExitChainBreak, code)
}

func TestTransform_UnknownStage(t *testing.T) {
	src := sourceDir(t)
	code, _, _ := runProof(t, "", "transform", "--source-dir", src, "--then", "nope", "one.js")
	assert.Equal(t, proof.ExitUsage, code)
}

func TestCheck(t *testing.T) {
	src := sourceDir(t)
	code, out, stderr := runProof(t, "", "check", "--source-dir", src, "one.js", "two.js")
	require.Equal(t, 0, code, stderr)
	want := identity.MustIdentify([]byte("a\nb\n"), identity.SHA2_256)
	assert.Equal(t, "reproducible "+want.String()+"\n", out)
}

func TestCheck_AgainstProof(t *testing.T) {
	src, cas := sourceDir(t), t.TempDir()
	inclusion := filepath.Join(t.TempDir(), "inclusion")
	code, _, stderr := runProof(t, "", args([]string{"transform", "--source-dir", src, "--inclusion", inclusion}, storeArgs(cas), []string{"one.js", "two.js"})...)
	require.Equal(t, 0, code, stderr)

	code, _, stderr = runProof(t, "", args([]string{"check", "--source-dir", src, "--proof", inclusion}, storeArgs(cas), []string{"one.js", "two.js"})...)
	require.Equal(t, 0, code, stderr)

	// The local tree drifted from the proof.
	require.NoError(t, os.WriteFile(filepath.Join(src, "two.js"), []byte("changed"), 0o644))
	code, _, _ = runProof(t, "", args([]string{"check", "--source-dir", src, "--proof", inclusion}, storeArgs(cas), []string{"one.js", "two.js"})...)
	assert.Equal(t, proof.ExitMismatch, code)
}

func TestEquiv(t *testing.T) {
	src, cas := sourceDir(t), t.TempDir()
	code, text, stderr := runProof(t, "", args([]string{"transform", "--source-dir", src}, storeArgs(cas), []string{"one.js"})...)
	require.Equal(t, 0, code, stderr)
	tp, err := proof.ParseTransformation([]byte(text))
	require.NoError(t, err)

	code, eqText, stderr := runProof(t, "", args([]string{"equiv", "prove", "--to", "sha3-256"}, storeArgs(cas), []string{tp.Output.String()})...)
	require.Equal(t, 0, code, stderr)
	eq, err := proof.ParseEquivalence([]byte(eqText))
	require.NoError(t, err)
	assert.Equal(t, tp.Output, eq.A)
	assert.Equal(t, identity.SHA3_256, eq.B.Algorithm())

	code, out, stderr := runProof(t, eqText, args([]string{"equiv", "verify"}, storeArgs(cas))...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "OK\n", out)
}

func TestBundle_ExportImport(t *testing.T) {
	src, from, to := sourceDir(t), t.TempDir(), t.TempDir()
	code, text, stderr := runProof(t, "", args([]string{"transform", "--source-dir", src}, storeArgs(from), []string{"one.js"})...)
	require.Equal(t, 0, code, stderr)
	tp, err := proof.ParseTransformation([]byte(text))
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "objects.tar")
	code, _, stderr = runProof(t, "", args([]string{"bundle", "export", "--zstd", "--out", file}, storeArgs(from),
		[]string{tp.Input.String(), tp.Transformation.String(), tp.Output.String()})...)
	require.Equal(t, 0, code, stderr)

	code, out, stderr := runProof(t, "", args([]string{"bundle", "import"}, storeArgs(to), []string{file})...)
	require.Equal(t, 0, code, stderr)
	assert.Len(t, strings.Fields(out), 3)

	// The input inclusion proof's leaves were not exported, so the new
	// store can name the objects but not re-execute.
	code, _, _ = runProof(t, text, args([]string{"verify"}, storeArgs(to))...)
	assert.Equal(t, proof.ExitValidation, code)
}

func TestUsage(t *testing.T) {
	code, _, _ := runProof(t, "")
	assert.Equal(t, proof.ExitUsage, code)

	code, _, _ = runProof(t, "", "frobnicate")
	assert.Equal(t, proof.ExitUsage, code)

	code, out, _ := runProof(t, "", "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "xdao-proof")

	code, _, _ = runProof(t, "", "verify", "a", "b")
	assert.Equal(t, proof.ExitUsage, code)

	code, _, _ = runProof(t, "not a proof", "verify")
	assert.Equal(t, proof.ExitUsage, code)
}
