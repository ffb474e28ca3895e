package transform

import (
	"bytes"
	"context"
)

// Concat writes each input followed by a separator ("\n" by default).
//
// Params: separator.
type Concat struct {
	def Definition
	sep []byte
}

func init() {
	MustRegister("concat", func(def Definition) (Transformation, error) {
		return &Concat{def: def, sep: []byte(def.Param("separator", "\n"))}, nil
	})
}

func (c *Concat) Definition() Definition { return c.def }

func (c *Concat) Apply(ctx context.Context, inputs [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Write(in)
		buf.Write(c.sep)
	}
	return buf.Bytes(), nil
}
