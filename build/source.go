package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrSourceNotFound reports a named source that does not exist.
var ErrSourceNotFound = errors.New("build: source not found")

// SourceReader reads named sources from trusted local storage.
type SourceReader interface {
	ReadSource(ctx context.Context, name string) ([]byte, error)
}

// DirReader reads sources as files relative to Root. Names may not escape
// Root.
type DirReader struct {
	Root string
}

func (d DirReader) ReadSource(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if name == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("build: invalid source name %q", name)
	}
	root := d.Root
	if root == "" {
		root = "."
	}
	b, err := os.ReadFile(filepath.Join(root, clean))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return b, err
}

// MapReader serves sources from memory.
type MapReader map[string][]byte

func (m MapReader) ReadSource(ctx context.Context, name string) ([]byte, error) {
	b, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return b, nil
}
