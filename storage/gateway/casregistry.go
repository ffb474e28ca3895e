package gateway

import (
	"flag"
	"fmt"
	"time"

	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
)

var (
	flagURL     string
	flagTimeout time.Duration
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "gateway",
		Description: "IPFS trustless HTTP gateway (read-only, raw blocks)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagURL, "gateway-url", "", "Gateway root URL (for --backend=gateway)")
			fs.DurationVar(&flagTimeout, "gateway-timeout", 30*time.Second, "Per-request timeout (for --backend=gateway)")
		},
		Open: func() (storage.CAS, func() error, error) {
			cas, err := New(Options{URL: flagURL, Timeout: flagTimeout})
			return cas, nil, err
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			opts := Options{URL: cfg["gateway-url"], Timeout: 30 * time.Second}
			if s := cfg["gateway-timeout"]; s != "" {
				d, err := time.ParseDuration(s)
				if err != nil {
					return nil, nil, fmt.Errorf("gateway-timeout: %w", err)
				}
				opts.Timeout = d
			}
			cas, err := New(opts)
			return cas, nil, err
		},
	})
}
