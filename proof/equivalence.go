package proof

import (
	"io"
	"strings"

	"xdao.co/proofs/identity"
)

// Equivalence claims that the content named by A hashes to B under B's
// algorithm. It holds only once verified against the content itself.
type Equivalence struct {
	A identity.Identity
	B identity.Identity
}

// Bytes renders two lines: A then B.
func (e Equivalence) Bytes() []byte {
	return []byte(e.A.String() + "\n" + e.B.String() + "\n")
}

func (e Equivalence) String() string { return string(e.Bytes()) }

func (e Equivalence) Validate() error {
	if !e.A.Defined() || !e.B.Defined() {
		return NewError(KindValidation, "PROOF-EQ-001", "equivalence: undefined identity")
	}
	if e.A.Algorithm() == e.B.Algorithm() && e.A != e.B {
		return NewError(KindValidation, "PROOF-EQ-002", "equivalence: distinct identities under one algorithm")
	}
	return nil
}

// ParseEquivalence parses exactly two identity lines.
func ParseEquivalence(b []byte) (Equivalence, error) {
	block := strings.TrimSpace(string(b))
	lines := strings.Split(block, "\n")
	if block == "" || len(lines) != 2 {
		return Equivalence{}, NewError(KindParse, "PROOF-PARSE-004", "equivalence must have exactly 2 lines")
	}
	var ids [2]identity.Identity
	for i, line := range lines {
		id, err := identity.Parse(strings.TrimSpace(line))
		if err != nil {
			return Equivalence{}, indexedError(KindParse, "PROOF-PARSE-001", i+1, "invalid identity", err)
		}
		ids[i] = id
	}
	return Equivalence{A: ids[0], B: ids[1]}, nil
}

// ReadEquivalence reads and parses an equivalence from r.
func ReadEquivalence(r io.Reader) (Equivalence, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Equivalence{}, WrapError(KindIO, "PROOF-IO-001", "read equivalence", err)
	}
	return ParseEquivalence(b)
}
