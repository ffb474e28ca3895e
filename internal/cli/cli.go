// Package cli holds the pieces shared by the xdao command line tools:
// store selection flags, logger setup, exit code reporting and atomic
// artifact writes.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"xdao.co/proofs/config"
	"xdao.co/proofs/identity"
	"xdao.co/proofs/logging"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casconfig"
	"xdao.co/proofs/storage/casregistry"
)

// StoreFlags selects a content store either by backend name (with the
// backend's own flags) or by a casconfig file.
type StoreFlags struct {
	Backend      string
	Config       string
	ListBackends bool
}

// Add registers --backend, --cas-config, --list-backends and every CLI
// backend's flags on fs.
func (s *StoreFlags) Add(fs *flag.FlagSet, defaultBackend string) {
	fs.StringVar(&s.Backend, "backend", defaultBackend, "CAS backend name (see --list-backends)")
	fs.StringVar(&s.Config, "cas-config", "", "CAS config file (JSON or YAML); overrides --backend selection")
	fs.BoolVar(&s.ListBackends, "list-backends", false, "List supported backends and exit")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

// Configured reports whether any store was selected.
func (s *StoreFlags) Configured(cfg config.Config) bool {
	return s.Config != "" || s.Backend != "" || cfg.StoreConfig != "" || cfg.StoreBackend != ""
}

// Algorithm returns the identity algorithm to store under: cfg's when it
// was chosen explicitly, otherwise the selected backend's native one.
func (s *StoreFlags) Algorithm(cfg config.Config) identity.Algorithm {
	if cfg.AlgorithmSet {
		return cfg.Algorithm
	}
	backend := s.Backend
	if backend == "" {
		backend = cfg.StoreBackend
	}
	if s.Config == "" && cfg.StoreConfig == "" && backend == "git" {
		return identity.GitSHA1
	}
	return cfg.Algorithm
}

// Open opens the selected store. Values from cfg fill in unset flags.
// With a config file, a non-empty backend names the preferred write target.
func (s *StoreFlags) Open(cfg config.Config) (storage.CAS, func() error, error) {
	path, backend := s.Config, s.Backend
	if path == "" {
		path = cfg.StoreConfig
	}
	if backend == "" {
		backend = cfg.StoreBackend
	}
	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	switch {
	case path != "":
		var cc casconfig.Config
		cc, err = casconfig.LoadFile(path)
		if err != nil {
			return nil, nil, proof.WrapError(proof.KindUsage, "PROOF-CLI-001", "cas config", err)
		}
		cas, closeFn, err = cc.Open(casregistry.UsageCLI, backend)
	case backend != "":
		cas, closeFn, err = casregistry.Open(backend, casregistry.UsageCLI)
	default:
		return nil, nil, proof.NewError(proof.KindUsage, "PROOF-CLI-002", "no content store selected (use --backend or --cas-config)")
	}
	if err != nil {
		return nil, nil, proof.WrapError(proof.KindUsage, "PROOF-CLI-003", "open store", err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return storage.Verified{CAS: cas}, closeFn, nil
}

func PrintBackends(w io.Writer, usage casregistry.Usage) {
	for _, b := range casregistry.List(usage) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// Setup loads configuration and returns a context carrying a run-tagged
// logger that writes to errOut.
func Setup(app, configPath string, fs *pflag.FlagSet, errOut io.Writer) (context.Context, config.Config, error) {
	if configPath == "" {
		configPath = os.Getenv("XDAO_CONFIG")
	}
	cfg, err := config.Load(configPath, fs)
	if err != nil {
		return nil, config.Config{}, proof.WrapError(proof.KindUsage, "PROOF-CLI-004", "config", err)
	}
	logger, err := logging.New(errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, config.Config{}, proof.WrapError(proof.KindUsage, "PROOF-CLI-005", "logging", err)
	}
	ctx, _, _ := logging.WithRun(context.Background(), logger, app)
	return ctx, cfg, nil
}

// Fail reports err and returns its exit code.
func Fail(ctx context.Context, errOut io.Writer, err error) int {
	code := proof.ExitCode(err)
	if ctx != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("rule", proof.RuleID(err)).Int("exit", code).Msg("failed")
	}
	fmt.Fprintln(errOut, err)
	return code
}

// WriteFileAtomic writes data to path via a temporary file in the same
// directory and a rename, so readers never see a partial artifact.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return proof.WrapError(proof.KindIO, "PROOF-CLI-010", "create output directory", err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return proof.WrapError(proof.KindIO, "PROOF-CLI-010", "create output", err)
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp)
		return proof.WrapError(proof.KindIO, "PROOF-CLI-011", "write output", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		_ = os.Remove(tmp)
		return proof.WrapError(proof.KindIO, "PROOF-CLI-011", "write output", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return proof.WrapError(proof.KindIO, "PROOF-CLI-012", "rename output", err)
	}
	return nil
}

// ParseParams parses repeated key=value flags.
func ParseParams(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, proof.NewError(proof.KindUsage, "PROOF-CLI-020", fmt.Sprintf("invalid parameter %q (want key=value)", kv))
		}
		if _, dup := out[k]; dup {
			return nil, proof.NewError(proof.KindUsage, "PROOF-CLI-021", fmt.Sprintf("duplicate parameter %q", k))
		}
		out[k] = v
	}
	return out, nil
}

// MultiString is a repeatable flag.Value.
type MultiString []string

func (m *MultiString) String() string { return strings.Join(*m, ",") }

func (m *MultiString) Set(v string) error {
	if strings.TrimSpace(v) == "" {
		return errors.New("empty value")
	}
	*m = append(*m, v)
	return nil
}
