package transform

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

const lz4Module = "github.com/pierrec/lz4/v4"

// maxDecodedSize bounds what a decompressing transformation may produce.
var maxDecodedSize = 1 << 30

// LZ4 compresses the concatenated inputs in LZ4 block format prefixed by
// the uncompressed size as a big-endian uint32. mode=decompress reverses it.
//
// Params: mode (compress|decompress).
type LZ4 struct {
	def        Definition
	decompress bool
}

func init() {
	MustRegister("lz4", func(def Definition) (Transformation, error) {
		l := &LZ4{def: def}
		switch mode := def.Param("mode", "compress"); mode {
		case "compress":
		case "decompress":
			l.decompress = true
		default:
			return nil, fmt.Errorf("invalid mode %q", mode)
		}
		l.def.Tools = map[string]string{lz4Module: moduleVersion(lz4Module)}
		return l, nil
	})
}

func (l *LZ4) Definition() Definition { return l.def }

func (l *LZ4) Apply(ctx context.Context, inputs [][]byte) ([]byte, error) {
	src := bytes.Join(inputs, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.decompress {
		if len(src) < 4 {
			return nil, fmt.Errorf("lz4 decompress: missing size header")
		}
		size := binary.BigEndian.Uint32(src[:4])
		if uint64(size) > uint64(maxDecodedSize) {
			return nil, fmt.Errorf("lz4 decompress: size %d too large", size)
		}
		out := make([]byte, size)
		if size == 0 {
			return out, nil
		}
		n, err := lz4.UncompressBlock(src[4:], out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != int(size) {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	}

	if len(src) > maxDecodedSize {
		return nil, fmt.Errorf("lz4 compress: input too large")
	}
	out := make([]byte, 4+lz4.CompressBlockBound(len(src)))
	binary.BigEndian.PutUint32(out, uint32(len(src)))
	n, err := lz4.CompressBlock(src, out[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 && len(src) > 0 {
		// Incompressible input: store it as a single literal run.
		n, err = storeLiterals(src, out[4:])
		if err != nil {
			return nil, err
		}
	}
	return out[:4+n], nil
}

// storeLiterals encodes src as one LZ4 sequence of literals only, which is
// a valid block for any input.
func storeLiterals(src, dst []byte) (int, error) {
	n := len(src)
	i := 0
	if n < 15 {
		dst[i] = byte(n << 4)
		i++
	} else {
		dst[i] = 0xF0
		i++
		rem := n - 15
		for rem >= 255 {
			if i >= len(dst) {
				return 0, fmt.Errorf("lz4 compress: buffer too small")
			}
			dst[i] = 255
			i++
			rem -= 255
		}
		dst[i] = byte(rem)
		i++
	}
	if i+n > len(dst) {
		return 0, fmt.Errorf("lz4 compress: buffer too small")
	}
	copy(dst[i:], src)
	return i + n, nil
}
