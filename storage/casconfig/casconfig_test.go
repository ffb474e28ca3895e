package casconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
	_ "xdao.co/proofs/storage/localfs"
	_ "xdao.co/proofs/storage/memcas"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadFile_JSONWithComments(t *testing.T) {
	p := writeFile(t, "cas.json", `{
  // primary store
  "write_policy": "all",
  "backends": [
    {"name": "memory", "id": "a"},
    {"name": "memory", "id": "b"},
  ]
}`)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.WritePolicy != "all" || len(cfg.Backends) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, "cas.yaml", "backends:\n  - name: localfs\n    config:\n      localfs-dir: "+dir+"\n")
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Backends[0].Config["localfs-dir"] != dir {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]Config{
		"empty":     {},
		"noname":    {Backends: []BackendConfig{{}}},
		"duplicate": {Backends: []BackendConfig{{Name: "memory"}, {Name: "memory"}}},
		"policy":    {WritePolicy: "some", Backends: []BackendConfig{{Name: "memory"}}},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestOpen_ReplicatesToAll(t *testing.T) {
	cfg := Config{
		WritePolicy: "all",
		Backends: []BackendConfig{
			{Name: "localfs", ID: "one", Config: map[string]string{"localfs-dir": t.TempDir()}},
			{Name: "localfs", ID: "two", Config: map[string]string{"localfs-dir": t.TempDir()}},
		},
	}
	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()

	rep, ok := cas.(storage.ReplicatingCAS)
	if !ok {
		t.Fatalf("expected ReplicatingCAS, got %T", cas)
	}
	ctx := context.Background()
	id, err := cas.Put(ctx, []byte("replicated"), identity.SHA2_256)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	for _, b := range rep.Backends {
		if !b.CAS.Has(ctx, id) {
			t.Fatalf("backend %s missing %s", b.Name, id)
		}
	}
}

func TestOpen_PreferredBackendFirst(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{
		{Name: "memory", ID: "slow"},
		{Name: "memory", ID: "fast"},
	}}
	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "fast")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	if _, ok := cas.(storage.MultiCAS); !ok {
		t.Fatalf("expected MultiCAS, got %T", cas)
	}
	if _, _, err := cfg.Open(casregistry.UsageCLI, "missing"); err == nil {
		t.Fatalf("expected error for unknown preferred backend")
	}
}
