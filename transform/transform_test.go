package transform

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
)

var abc = [][]byte{[]byte("a"), []byte("b"), []byte("c")}

func TestConcat_DefaultSeparator(t *testing.T) {
	c, err := Lookup("concat", InputManifest, nil)
	require.NoError(t, err)

	out, err := c.Apply(context.Background(), abc)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(out))
}

func TestConcat_OrderSensitive(t *testing.T) {
	c, err := Lookup("concat", InputManifest, nil)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := c.Apply(ctx, abc)
	require.NoError(t, err)
	b, err := c.Apply(ctx, [][]byte{[]byte("b"), []byte("a"), []byte("c")})
	require.NoError(t, err)
	assert.NotEqual(t, identity.MustIdentify(a, identity.SHA2_256), identity.MustIdentify(b, identity.SHA2_256))
}

func TestDefinition_IdentityCoversParams(t *testing.T) {
	plain, err := Lookup("concat", InputManifest, nil)
	require.NoError(t, err)
	comma, err := Lookup("concat", InputManifest, map[string]string{"separator": ","})
	require.NoError(t, err)
	blob, err := Lookup("concat", InputBlob, nil)
	require.NoError(t, err)

	ids := map[identity.Identity]bool{}
	for _, tr := range []Transformation{plain, comma, blob} {
		id, err := Identity(tr, identity.SHA2_256)
		require.NoError(t, err)
		ids[id] = true
	}
	assert.Len(t, ids, 3)
}

func TestDefinition_CanonicalRoundTrip(t *testing.T) {
	z, err := Lookup("zstd", InputBlob, map[string]string{"level": "5"})
	require.NoError(t, err)

	b, err := z.Definition().Bytes()
	require.NoError(t, err)
	again, err := z.Definition().Bytes()
	require.NoError(t, err)
	assert.Equal(t, b, again)

	def, err := ParseDefinition(b)
	require.NoError(t, err)
	assert.Equal(t, z.Definition(), def)
	assert.NotEmpty(t, def.Tools[zstdModule])

	rebuilt, err := FromBytes(b)
	require.NoError(t, err)
	assert.Equal(t, z.Definition(), rebuilt.Definition())
}

func TestParseDefinition_Rejects(t *testing.T) {
	_, err := ParseDefinition([]byte{0xff})
	assert.True(t, proof.IsKind(err, proof.KindParse))

	bad, err := Definition{Spec: "other", Name: "concat", Input: InputManifest}.Bytes()
	require.NoError(t, err)
	_, err = ParseDefinition(bad)
	assert.Equal(t, "PROOF-TF-001", proof.RuleID(err))
}

func TestFromDefinition_ToolVersionMismatch(t *testing.T) {
	z, err := Lookup("zstd", InputBlob, nil)
	require.NoError(t, err)
	def := z.Definition()
	def.Tools = map[string]string{zstdModule: "v0.0.0-not-this-one"}

	_, err = FromDefinition(def)
	require.Error(t, err)
	assert.True(t, proof.IsKind(err, proof.KindTransformationMismatch))
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("nope", InputManifest, nil)
	assert.True(t, proof.IsKind(err, proof.KindUsage))

	_, err = Lookup("zstd", InputManifest, map[string]string{"level": "99"})
	assert.True(t, proof.IsKind(err, proof.KindUsage))

	_, err = Lookup("concat", "stream", nil)
	assert.True(t, proof.IsKind(err, proof.KindValidation))
}

func TestCompressionRoundTrips(t *testing.T) {
	ctx := context.Background()
	payload := [][]byte{[]byte("hello hello hello hello "), []byte("world world world")}
	want := "hello hello hello hello world world world"

	for _, name := range []string{"zstd", "lz4"} {
		t.Run(name, func(t *testing.T) {
			enc, err := Lookup(name, InputManifest, nil)
			require.NoError(t, err)
			dec, err := Lookup(name, InputBlob, map[string]string{"mode": "decompress"})
			require.NoError(t, err)

			c1, err := enc.Apply(ctx, payload)
			require.NoError(t, err)
			c2, err := enc.Apply(ctx, payload)
			require.NoError(t, err)
			assert.Equal(t, c1, c2, "compression must be deterministic")

			out, err := dec.Apply(ctx, [][]byte{c1})
			require.NoError(t, err)
			assert.Equal(t, want, string(out))
		})
	}
}

func TestLZ4_IncompressibleAndEmpty(t *testing.T) {
	ctx := context.Background()
	enc, err := Lookup("lz4", InputBlob, nil)
	require.NoError(t, err)
	dec, err := Lookup("lz4", InputBlob, map[string]string{"mode": "decompress"})
	require.NoError(t, err)

	for _, in := range [][]byte{nil, []byte("x"), []byte("0123456789abcdefghijklmnopqrstuv")} {
		c, err := enc.Apply(ctx, [][]byte{in})
		require.NoError(t, err)
		out, err := dec.Apply(ctx, [][]byte{c})
		require.NoError(t, err)
		assert.Equal(t, string(in), string(out))
	}
}

func TestExec_PinsProgramAndIsolatesEnv(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	params := map[string]string{
		"program":      sh,
		"arg.0":        "-c",
		"arg.1":        `printf '%s|%s|' "$GREETING" "$HOME"; ls | wc -l | tr -d ' '; cat`,
		"env.GREETING": "hi",
		"env.PATH":     "/usr/bin:/bin",
	}
	tr, err := Lookup("exec", InputManifest, params)
	require.NoError(t, err)
	assert.NotEmpty(t, tr.Definition().Tools[execProgramTool])

	out, err := tr.Apply(context.Background(), abc)
	require.NoError(t, err)
	assert.Equal(t, "hi||0\nabc", string(out))

	_, err = FromDefinition(tr.Definition())
	require.NoError(t, err)
}

func TestExec_RejectsBadParams(t *testing.T) {
	_, err := Lookup("exec", InputManifest, map[string]string{})
	assert.Error(t, err)
	_, err = Lookup("exec", InputManifest, map[string]string{"program": "/definitely/not/here"})
	assert.Error(t, err)
	sh, lerr := exec.LookPath("sh")
	if lerr != nil {
		t.Skip("sh not available")
	}
	_, err = Lookup("exec", InputManifest, map[string]string{"program": sh, "arg.1": "x"})
	assert.Error(t, err)
	_, err = Lookup("exec", InputManifest, map[string]string{"program": sh, "color": "x"})
	assert.Error(t, err)
}

func writeTool(t *testing.T, dir, word string) string {
	t.Helper()
	path := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho "+word+"\n"), 0o755))
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestExec_PinsTheProgramItRuns(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	cwd, onPath := t.TempDir(), t.TempDir()
	local := writeTool(t, cwd, "LOCAL")
	fromPath := writeTool(t, onPath, "FROM_PATH")
	chdir(t, cwd)
	t.Setenv("PATH", onPath+string(os.PathListSeparator)+os.Getenv("PATH"))

	cases := []struct {
		program string
		file    string
		want    string
	}{
		{"tool", fromPath, "FROM_PATH\n"},
		{"./tool", local, "LOCAL\n"},
		{local, local, "LOCAL\n"},
	}
	for _, tc := range cases {
		t.Run(tc.program, func(t *testing.T) {
			tr, err := Lookup("exec", InputBlob, map[string]string{"program": tc.program})
			require.NoError(t, err)

			bin, err := os.ReadFile(tc.file)
			require.NoError(t, err)
			assert.Equal(t, identity.MustIdentify(bin, identity.Default).String(), tr.Definition().Tools[execProgramTool])

			out, err := tr.Apply(context.Background(), nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(out))
		})
	}
}

func TestExec_ProgramReplacedAfterPinning(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	dir := t.TempDir()
	path := writeTool(t, dir, "ORIGINAL")
	tr, err := Lookup("exec", InputBlob, map[string]string{"program": path})
	require.NoError(t, err)

	writeTool(t, dir, "REPLACED")
	out, err := tr.Apply(context.Background(), nil)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, proof.IsKind(err, proof.KindTransformationMismatch), "%v", err)
	assert.Equal(t, "PROOF-TF-020", proof.RuleID(err))
}

func TestNames(t *testing.T) {
	assert.Subset(t, Names(), []string{"concat", "exec", "lz4", "zstd"})
}

func TestDecompress_BoundedOutput(t *testing.T) {
	prev := maxDecodedSize
	maxDecodedSize = 1024
	t.Cleanup(func() { maxDecodedSize = prev })

	big := [][]byte{make([]byte, 64*1024)}
	for _, name := range []string{"zstd", "lz4"} {
		t.Run(name, func(t *testing.T) {
			comp, err := Lookup(name, InputBlob, nil)
			require.NoError(t, err)
			// Compression of the large input is itself rejected for lz4,
			// so build the frame with the limit lifted.
			maxDecodedSize = prev
			packed, err := comp.Apply(context.Background(), big)
			maxDecodedSize = 1024
			require.NoError(t, err)
			assert.Less(t, len(packed), 1024)

			dec, err := Lookup(name, InputBlob, map[string]string{"mode": "decompress"})
			require.NoError(t, err)
			out, err := dec.Apply(context.Background(), [][]byte{packed})
			assert.Error(t, err)
			assert.Nil(t, out)
		})
	}
}
