package transform

import (
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
)

// Transformation turns ordered inputs into one artifact. Apply must be a
// pure function of inputs and Definition.
type Transformation interface {
	Definition() Definition
	Apply(ctx context.Context, inputs [][]byte) ([]byte, error)
}

// Factory builds a transformation from a definition carrying Name, Input
// and Params. The returned transformation's Definition adds pinned Tools.
type Factory func(def Definition) (Transformation, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a named factory.
func Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("transform: name and factory are required")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("transform: %q already registered", name)
	}
	factories[name] = f
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

// Names returns registered transformation names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup constructs a registered transformation for the current binary.
func Lookup(name string, input InputMode, params map[string]string) (Transformation, error) {
	return construct(Definition{Spec: SpecVersion, Name: name, Input: input, Params: params})
}

func construct(def Definition) (Transformation, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	mu.RLock()
	f, ok := factories[def.Name]
	mu.RUnlock()
	if !ok {
		return nil, proof.NewError(proof.KindUsage, "PROOF-TF-010", fmt.Sprintf("transform: unknown transformation %q", def.Name))
	}
	t, err := f(Definition{Spec: def.Spec, Name: def.Name, Input: def.Input, Params: def.Params})
	if err != nil {
		return nil, proof.WrapError(proof.KindUsage, "PROOF-TF-011", fmt.Sprintf("transform: %s", def.Name), err)
	}
	return t, nil
}

// FromDefinition reconstructs the transformation a definition names. The
// reconstructed definition must encode to the same bytes; a difference
// (for example a different pinned tool version) means this binary cannot
// reproduce the transformation.
func FromDefinition(def Definition) (Transformation, error) {
	t, err := construct(def)
	if err != nil {
		return nil, err
	}
	want, err := def.Bytes()
	if err != nil {
		return nil, err
	}
	got, err := t.Definition().Bytes()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(want, got) {
		return nil, proof.NewError(proof.KindTransformationMismatch, "PROOF-TF-012",
			fmt.Sprintf("transform: %s cannot be reproduced by this binary (pinned tools %v, have %v)", def.Name, def.Tools, t.Definition().Tools))
	}
	return t, nil
}

// FromBytes parses definition bytes and reconstructs the transformation.
func FromBytes(b []byte) (Transformation, error) {
	def, err := ParseDefinition(b)
	if err != nil {
		return nil, err
	}
	return FromDefinition(def)
}

// Identity is the identity of t's definition.
func Identity(t Transformation, alg identity.Algorithm) (identity.Identity, error) {
	return t.Definition().Identity(alg)
}

// moduleVersion reports the version of a linked module, for pinning in
// Definition.Tools.
func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}
