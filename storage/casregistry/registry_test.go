package casregistry_test

import (
	"flag"
	"strings"
	"testing"

	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
	"xdao.co/proofs/storage/memcas"
)

func TestRegister_Validation(t *testing.T) {
	noop := func(*flag.FlagSet) {}
	open := func() (storage.CAS, func() error, error) { return memcas.New(), nil, nil }

	cases := []casregistry.Backend{
		{},
		{Name: "x-noflags", Open: open, Usage: casregistry.UsageCLI},
		{Name: "x-noopen", RegisterFlags: noop, Usage: casregistry.UsageCLI},
		{Name: "x-nousage", RegisterFlags: noop, Open: open},
	}
	for _, b := range cases {
		if err := casregistry.Register(b); err == nil {
			t.Fatalf("expected error registering %+v", b.Name)
		}
	}
}

func TestRegistry_UsageFiltersAndOpens(t *testing.T) {
	var dir string
	casregistry.MustRegister(casregistry.Backend{
		Name:        "test-daemon-only",
		Description: "test",
		Usage:       casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&dir, "test-daemon-dir", "", "")
		},
		Open: func() (storage.CAS, func() error, error) { return memcas.New(), nil, nil },
	})

	for _, n := range casregistry.Names(casregistry.UsageCLI) {
		if n == "test-daemon-only" {
			t.Fatalf("daemon-only backend listed for CLI")
		}
	}
	if _, _, err := casregistry.Open("test-daemon-only", casregistry.UsageCLI); err == nil {
		t.Fatalf("expected usage error")
	}
	if _, _, err := casregistry.Open("test-daemon-only", casregistry.UsageDaemon); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := casregistry.OpenWithConfig("test-daemon-only", casregistry.UsageDaemon, nil); err == nil || !strings.Contains(err.Error(), "config") {
		t.Fatalf("expected config error, got %v", err)
	}
	if _, _, err := casregistry.Open("no-such-backend", casregistry.UsageCLI); err == nil {
		t.Fatalf("expected unknown backend error")
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)
	if fs.Lookup("test-daemon-dir") == nil {
		t.Fatalf("backend flags not registered")
	}
	if err := casregistry.Register(casregistry.Backend{
		Name: "test-daemon-only", Usage: casregistry.UsageDaemon,
		RegisterFlags: func(*flag.FlagSet) {},
		Open:          func() (storage.CAS, func() error, error) { return nil, nil, nil },
	}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
