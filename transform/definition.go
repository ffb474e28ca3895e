package transform

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
)

// SpecVersion tags the Definition schema.
const SpecVersion = "xdao-transform-1"

// InputMode declares what a transformation's input identity names.
type InputMode string

const (
	// InputManifest: the input identity names a serialized inclusion proof;
	// the transformation receives the listed contents in order.
	InputManifest InputMode = "manifest"
	// InputBlob: the input identity names a single artifact, typically the
	// previous stage's output.
	InputBlob InputMode = "blob"
)

func (m InputMode) valid() bool { return m == InputManifest || m == InputBlob }

// Definition is the canonical description of a transformation.
type Definition struct {
	Spec   string            `cbor:"spec"`
	Name   string            `cbor:"name"`
	Input  InputMode         `cbor:"input"`
	Params map[string]string `cbor:"params,omitempty"`
	Tools  map[string]string `cbor:"tools,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transform: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("transform: CBOR decoder initialization failed: " + err.Error())
	}
}

func (d Definition) Validate() error {
	if d.Spec != SpecVersion {
		return proof.NewError(proof.KindValidation, "PROOF-TF-001", fmt.Sprintf("transform: unsupported definition spec %q", d.Spec))
	}
	if d.Name == "" {
		return proof.NewError(proof.KindValidation, "PROOF-TF-002", "transform: definition name is required")
	}
	if !d.Input.valid() {
		return proof.NewError(proof.KindValidation, "PROOF-TF-003", fmt.Sprintf("transform: invalid input mode %q", d.Input))
	}
	return nil
}

// Bytes returns the Core Deterministic CBOR encoding of d.
func (d Definition) Bytes() ([]byte, error) {
	b, err := encMode.Marshal(d)
	if err != nil {
		return nil, proof.WrapError(proof.KindInternal, "PROOF-TF-004", "transform: encode definition", err)
	}
	return b, nil
}

// Identity is the transformation identity: the identity of d's bytes.
func (d Definition) Identity(alg identity.Algorithm) (identity.Identity, error) {
	b, err := d.Bytes()
	if err != nil {
		return identity.Undef, err
	}
	return identity.Identify(b, alg)
}

// Param returns the named parameter or def when unset.
func (d Definition) Param(name, def string) string {
	if v, ok := d.Params[name]; ok {
		return v
	}
	return def
}

// ParseDefinition decodes definition bytes. Only the canonical encoding is
// accepted, so one definition has exactly one identity.
func ParseDefinition(b []byte) (Definition, error) {
	var d Definition
	if err := decMode.Unmarshal(b, &d); err != nil {
		return Definition{}, proof.WrapError(proof.KindParse, "PROOF-TF-005", "transform: decode definition", err)
	}
	canon, err := d.Bytes()
	if err != nil {
		return Definition{}, err
	}
	if !bytes.Equal(canon, b) {
		return Definition{}, proof.NewError(proof.KindParse, "PROOF-TF-006", "transform: definition is not canonically encoded")
	}
	return d, d.Validate()
}
