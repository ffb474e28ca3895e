package bundle

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 2

var epoch0 = time.Unix(0, 0).UTC()

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to identities.
	Labels map[string]identity.Identity
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// Compress wraps the TAR stream in zstd. Import detects it automatically.
	Compress bool
}

// Export writes a deterministic TAR bundle containing the blocks for the given identities.
//
// The bundle bytes are deterministic: entry order is lexicographic and TAR headers are normalized.
// All exported bytes are validated against their identities.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []identity.Identity, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	if opts.Compress {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return err
		}
		if err := export(ctx, zw, cas, ids, opts); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	}
	return export(ctx, w, cas, ids, opts)
}

func export(ctx context.Context, w io.Writer, cas storage.CAS, ids []identity.Identity, opts ExportOptions) error {
	uniq := make(map[string]identity.Identity, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidIdentity
		}
		uniq[id.String()] = id
	}

	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)

	blocks := make([]indexBlock, 0, len(names))
	for _, s := range names {
		id := uniq[s]
		b, err := cas.Get(ctx, id)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if !id.Matches(b) {
			_ = tw.Close()
			return storage.ErrMismatch
		}

		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, indexBlock{ID: s, Algorithm: string(id.Algorithm()), Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := indexJSON{
			Version: FormatVersion,
			Blocks:  blocks,
		}

		if len(opts.Labels) > 0 {
			keys := make([]string, 0, len(opts.Labels))
			for k := range opts.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			labels := make([]indexLabel, 0, len(keys))
			for _, k := range keys {
				if k == "" {
					_ = tw.Close()
					return fmt.Errorf("bundle: empty label key")
				}
				v := opts.Labels[k]
				if !v.Defined() {
					_ = tw.Close()
					return storage.ErrInvalidIdentity
				}
				labels = append(labels, indexLabel{Name: k, ID: v.String()})
			}
			idx.Labels = labels
		}

		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Import reads a bundle from r and imports all blocks into cas, returning
// the imported identities in entry order.
//
// Default behavior is fail-closed: unknown entries cause an error.
// Use ImportWithOptions to allow ignoring unknown entries.
func Import(ctx context.Context, r io.Reader, cas storage.CAS) ([]identity.Identity, error) {
	return ImportWithOptions(ctx, r, cas, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and imports all blocks into cas.
//
// It validates that each block's bytes match the identity in its filename.
func ImportWithOptions(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) ([]identity.Identity, error) {
	if cas == nil {
		return nil, fmt.Errorf("bundle: nil CAS")
	}

	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, _ := br.Peek(len(zstdMagic)); bytes.Equal(magic, zstdMagic) {
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	}

	tr := tar.NewReader(src)
	seen := map[string]struct{}{}
	var out []identity.Identity

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return out, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return out, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return out, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, perr := identity.Parse(strings.TrimPrefix(name, "blocks/"))
		if perr != nil {
			return out, storage.ErrInvalidIdentity
		}

		payload, rerr := io.ReadAll(tr)
		if rerr != nil {
			return out, rerr
		}
		if !id.Matches(payload) {
			return out, storage.ErrMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return out, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		putID, perr := cas.Put(ctx, payload, id.Algorithm())
		if perr != nil {
			return out, perr
		}
		if putID != id {
			return out, storage.ErrMismatch
		}
		out = append(out, id)
	}
}

type indexJSON struct {
	Version int          `json:"version"`
	Blocks  []indexBlock `json:"blocks"`
	Labels  []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	ID        string `json:"id"`
	Algorithm string `json:"algorithm"`
	Size      int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
