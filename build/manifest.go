package build

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/transform"
)

// Manifest is a TOML build description:
//
//	algorithm  = "sha2-256"
//	source_dir = "src"
//	sources    = ["one.js", "two.js", "three.js"]
//	out        = "build/out"
//
//	[transform]
//	name = "concat"
//	[transform.params]
//	separator = "\n"
type Manifest struct {
	Algorithm string        `toml:"algorithm"`
	SourceDir string        `toml:"source_dir"`
	Sources   []string      `toml:"sources"`
	Out       string        `toml:"out"`
	Transform ManifestStage `toml:"transform"`

	dir string
}

type ManifestStage struct {
	Name   string            `toml:"name"`
	Input  string            `toml:"input"`
	Params map[string]string `toml:"params"`
}

// LoadManifest decodes a manifest file. Unknown keys are rejected.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return Manifest{}, proof.WrapError(proof.KindParse, "PROOF-MANIFEST-001", fmt.Sprintf("manifest %s", path), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Manifest{}, proof.NewError(proof.KindParse, "PROOF-MANIFEST-002", fmt.Sprintf("manifest %s: unknown keys %s", path, strings.Join(keys, ", ")))
	}
	m.dir = filepath.Dir(path)
	return m, m.Validate()
}

func (m Manifest) Validate() error {
	if m.Transform.Name == "" {
		return proof.NewError(proof.KindUsage, "PROOF-MANIFEST-003", "manifest: transform.name is required")
	}
	if m.Algorithm != "" {
		if _, err := identity.ParseAlgorithm(m.Algorithm); err != nil {
			return proof.WrapError(proof.KindUsage, "PROOF-MANIFEST-004", "manifest: algorithm", err)
		}
	}
	return nil
}

// Options returns build options for the manifest's algorithm.
func (m Manifest) Options() (Options, error) {
	var opts Options
	if m.Algorithm != "" {
		alg, err := identity.ParseAlgorithm(m.Algorithm)
		if err != nil {
			return opts, proof.WrapError(proof.KindUsage, "PROOF-MANIFEST-004", "manifest: algorithm", err)
		}
		opts.Algorithm = alg
	}
	return opts, nil
}

// Transformation constructs the manifest's transformation.
func (m Manifest) Transformation() (transform.Transformation, error) {
	input := transform.InputManifest
	if m.Transform.Input != "" {
		input = transform.InputMode(m.Transform.Input)
	}
	return transform.Lookup(m.Transform.Name, input, m.Transform.Params)
}

// Reader reads sources relative to SourceDir, itself relative to the
// manifest file.
func (m Manifest) Reader() DirReader {
	dir := m.SourceDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.dir, dir)
	}
	return DirReader{Root: dir}
}
