package proof

import (
	"fmt"
	"io"
	"strings"

	"xdao.co/proofs/identity"
)

// Transformation records one opaque step: Input became Output under the
// transformation named by Transformation.
type Transformation struct {
	Input          identity.Identity
	Transformation identity.Identity
	Output         identity.Identity
}

// Bytes renders exactly three lines: input, transformation, output.
func (t Transformation) Bytes() []byte {
	return []byte(t.Input.String() + "\n" + t.Transformation.String() + "\n" + t.Output.String() + "\n")
}

func (t Transformation) String() string { return string(t.Bytes()) }

func (t Transformation) Validate() error {
	switch {
	case !t.Input.Defined():
		return NewError(KindValidation, "PROOF-TP-001", "transformation proof: undefined input")
	case !t.Transformation.Defined():
		return NewError(KindValidation, "PROOF-TP-002", "transformation proof: undefined transformation")
	case !t.Output.Defined():
		return NewError(KindValidation, "PROOF-TP-003", "transformation proof: undefined output")
	}
	return nil
}

// ParseTransformation parses exactly three identity lines. Surrounding
// whitespace and a trailing newline are tolerated.
func ParseTransformation(b []byte) (Transformation, error) {
	return parseTransformation(strings.TrimSpace(string(b)), 0)
}

// ReadTransformation reads and parses a transformation proof from r.
func ReadTransformation(r io.Reader) (Transformation, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Transformation{}, WrapError(KindIO, "PROOF-IO-001", "read transformation proof", err)
	}
	return ParseTransformation(b)
}

// parseTransformation parses one trimmed three-line block. offset is the
// number of lines preceding the block, for error positions.
func parseTransformation(block string, offset int) (Transformation, error) {
	lines := strings.Split(block, "\n")
	if block == "" || len(lines) != 3 {
		return Transformation{}, indexedError(KindParse, "PROOF-PARSE-002", offset+1,
			fmt.Sprintf("transformation proof must have exactly 3 lines, got %d", countLines(block)), nil)
	}
	var ids [3]identity.Identity
	for i, line := range lines {
		line = strings.TrimSpace(line)
		id, err := identity.Parse(line)
		if err != nil {
			n := offset + i + 1
			return Transformation{}, indexedError(KindParse, "PROOF-PARSE-001", n, fmt.Sprintf("line %d: invalid identity %q", n, line), err)
		}
		ids[i] = id
	}
	return Transformation{Input: ids[0], Transformation: ids[1], Output: ids[2]}, nil
}

func countLines(block string) int {
	if block == "" {
		return 0
	}
	return strings.Count(block, "\n") + 1
}
