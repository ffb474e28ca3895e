package rediscas

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
)

var flagOpts Options

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "redis",
		Description: "Redis keys (SETNX, never overwritten)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagOpts.Addr, "redis-addr", "", "Redis address host:port (for --backend=redis)")
			fs.IntVar(&flagOpts.DB, "redis-db", 0, "Redis database number (for --backend=redis)")
			fs.StringVar(&flagOpts.Prefix, "redis-prefix", DefaultPrefix, "Key prefix (for --backend=redis)")
		},
		Open: func() (storage.CAS, func() error, error) {
			opts := flagOpts
			opts.Password = os.Getenv("XDAO_REDIS_PASSWORD")
			return open(opts)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			opts := Options{
				Addr:     cfg["redis-addr"],
				Prefix:   cfg["redis-prefix"],
				Password: os.Getenv("XDAO_REDIS_PASSWORD"),
			}
			if v := cfg["redis-db"]; v != "" {
				db, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, fmt.Errorf("redis-db: %w", err)
				}
				opts.DB = db
			}
			return open(opts)
		},
	})
}

func open(opts Options) (storage.CAS, func() error, error) {
	cas, err := New(opts)
	if err != nil {
		return nil, nil, err
	}
	return cas, cas.Close, nil
}
