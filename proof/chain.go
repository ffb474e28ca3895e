package proof

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"xdao.co/proofs/identity"
)

// Chain is an ordered sequence of transformation proofs where each stage's
// output is the next stage's input.
type Chain []Transformation

var canonicalCBOR cbor.EncMode

func init() {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	canonicalCBOR = em
}

// Verify checks that proof[k].Output == proof[k+1].Input for every k. A
// break is reported as KindChainBreak with Index set to k+1.
func (c Chain) Verify() error {
	if len(c) == 0 {
		return NewError(KindChainBreak, "PROOF-CHAIN-001", "empty chain")
	}
	for i, tp := range c {
		if err := tp.Validate(); err != nil {
			return indexedError(KindValidation, "PROOF-CHAIN-003", i, fmt.Sprintf("stage %d", i), err)
		}
	}
	for k := 0; k+1 < len(c); k++ {
		if c[k].Output != c[k+1].Input {
			return indexedError(KindChainBreak, "PROOF-CHAIN-002", k+1,
				fmt.Sprintf("chain break at stage %d: output %s does not match input %s", k+1, c[k].Output, c[k+1].Input), nil)
		}
	}
	return nil
}

// Bytes renders each proof's three lines, separated by one blank line.
func (c Chain) Bytes() []byte {
	var buf bytes.Buffer
	for i, tp := range c {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(tp.Bytes())
	}
	return buf.Bytes()
}

func (c Chain) String() string { return string(c.Bytes()) }

// Encode returns the chain's canonical CBOR encoding: an array of
// [input, transformation, output] binary CIDs. It is the content a
// collapsed proof's transformation identity names.
func (c Chain) Encode() ([]byte, error) {
	stages := make([][3][]byte, len(c))
	for i, tp := range c {
		stages[i] = [3][]byte{tp.Input.CID().Bytes(), tp.Transformation.CID().Bytes(), tp.Output.CID().Bytes()}
	}
	b, err := canonicalCBOR.Marshal(stages)
	if err != nil {
		return nil, WrapError(KindInternal, "PROOF-CHAIN-004", "encode chain", err)
	}
	return b, nil
}

// Identity returns the identity of Encode's output.
func (c Chain) Identity(alg identity.Algorithm) (identity.Identity, error) {
	b, err := c.Encode()
	if err != nil {
		return identity.Undef, err
	}
	return identity.Identify(b, alg)
}

// DecodeChain parses the output of Encode. Bytes that are not a canonical
// chain encoding are KindParse.
func DecodeChain(b []byte) (Chain, error) {
	var stages [][3][]byte
	if err := cbor.Unmarshal(b, &stages); err != nil {
		return nil, WrapError(KindParse, "PROOF-PARSE-005", "decode chain", err)
	}
	if len(stages) == 0 {
		return nil, NewError(KindParse, "PROOF-PARSE-005", "decode chain: no stages")
	}
	out := make(Chain, len(stages))
	for i, st := range stages {
		var ids [3]identity.Identity
		for j, raw := range st {
			c, err := cid.Cast(raw)
			if err != nil {
				return nil, indexedError(KindParse, "PROOF-PARSE-005", i, "decode chain", err)
			}
			if ids[j], err = identity.FromCID(c); err != nil {
				return nil, indexedError(KindParse, "PROOF-PARSE-005", i, "decode chain", err)
			}
		}
		out[i] = Transformation{Input: ids[0], Transformation: ids[1], Output: ids[2]}
	}
	again, err := out.Encode()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(again, b) {
		return nil, NewError(KindParse, "PROOF-PARSE-005", "decode chain: not canonical")
	}
	return out, nil
}

// Collapse returns the single transformation proof the chain stands for when
// nested: first input, the chain identity, last output. The proof verifies
// only against a store holding Encode's output; provenance.Collapse puts it.
func (c Chain) Collapse(alg identity.Algorithm) (Transformation, error) {
	if err := c.Verify(); err != nil {
		return Transformation{}, err
	}
	id, err := c.Identity(alg)
	if err != nil {
		return Transformation{}, err
	}
	return Transformation{Input: c[0].Input, Transformation: id, Output: c[len(c)-1].Output}, nil
}

// ParseChain parses blank-line separated three-line blocks. Parsing does
// not check links; call Verify.
func ParseChain(b []byte) (Chain, error) {
	lines := strings.Split(string(b), "\n")
	var (
		out   Chain
		block []string
		start int
	)
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		tp, err := parseTransformation(strings.Join(block, "\n"), start)
		if err != nil {
			return err
		}
		out = append(out, tp)
		block = block[:0]
		return nil
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if len(block) == 0 {
			start = i
		}
		block = append(block, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, NewError(KindParse, "PROOF-PARSE-003", "chain has no proofs")
	}
	return out, nil
}

// ReadChain reads and parses a chain from r.
func ReadChain(r io.Reader) (Chain, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, WrapError(KindIO, "PROOF-IO-001", "read chain", err)
	}
	return ParseChain(b)
}
