package transform

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

const zstdModule = "github.com/klauspost/compress"

// Zstd compresses the concatenated inputs, or decompresses them with
// mode=decompress. The encoder runs single-threaded so output bytes depend
// only on level and library version, which is pinned in Tools.
//
// Params: level (1-22, default 3), mode (compress|decompress).
type Zstd struct {
	def        Definition
	level      zstd.EncoderLevel
	decompress bool
}

func init() {
	MustRegister("zstd", func(def Definition) (Transformation, error) {
		level, err := strconv.Atoi(def.Param("level", "3"))
		if err != nil || level < 1 || level > 22 {
			return nil, fmt.Errorf("invalid level %q", def.Param("level", "3"))
		}
		z := &Zstd{def: def, level: zstd.EncoderLevelFromZstd(level)}
		switch mode := def.Param("mode", "compress"); mode {
		case "compress":
		case "decompress":
			z.decompress = true
		default:
			return nil, fmt.Errorf("invalid mode %q", mode)
		}
		z.def.Tools = map[string]string{zstdModule: moduleVersion(zstdModule)}
		return z, nil
	})
}

func (z *Zstd) Definition() Definition { return z.def }

func (z *Zstd) Apply(ctx context.Context, inputs [][]byte) ([]byte, error) {
	src := bytes.Join(inputs, nil)
	if z.decompress {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(uint64(maxDecodedSize)))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(src, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(z.level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), ctx.Err()
}
