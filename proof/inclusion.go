package proof

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"xdao.co/proofs/identity"
)

// Inclusion is an ordered list of input identities. Order is significant:
// reordering changes the meaning of the build.
type Inclusion []identity.Identity

// Bytes renders the wire form: one identity per line, declared order,
// trailing newline. An empty proof renders as no bytes.
func (p Inclusion) Bytes() []byte {
	var buf bytes.Buffer
	for _, id := range p {
		buf.WriteString(id.String())
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (p Inclusion) String() string { return string(p.Bytes()) }

// Equal reports element-wise equality, order included.
func (p Inclusion) Equal(other Inclusion) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Identity returns the identity of the serialized proof.
func (p Inclusion) Identity(alg identity.Algorithm) (identity.Identity, error) {
	return identity.Identify(p.Bytes(), alg)
}

// Validate checks that every entry is a defined identity.
func (p Inclusion) Validate() error {
	for i, id := range p {
		if !id.Defined() {
			return indexedError(KindValidation, "PROOF-INCL-001", i+1, fmt.Sprintf("entry %d is undefined", i+1), nil)
		}
	}
	return nil
}

// ParseInclusion parses the wire form. Blank lines and surrounding
// whitespace are ignored; any other malformed line is a KindParse error
// carrying its 1-based line number.
func ParseInclusion(b []byte) (Inclusion, error) {
	var out Inclusion
	for i, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, err := identity.Parse(line)
		if err != nil {
			return nil, indexedError(KindParse, "PROOF-PARSE-001", i+1, fmt.Sprintf("line %d: invalid identity %q", i+1, line), err)
		}
		out = append(out, id)
	}
	return out, nil
}

// ReadInclusion reads and parses an inclusion proof from r.
func ReadInclusion(r io.Reader) (Inclusion, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, WrapError(KindIO, "PROOF-IO-001", "read inclusion proof", err)
	}
	return ParseInclusion(b)
}
