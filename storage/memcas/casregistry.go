package memcas

import (
	"flag"

	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:          "memory",
		Description:   "In-process memory CAS (contents are lost on exit)",
		Usage:         casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {},
		Open: func() (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
		OpenConfig: func(map[string]string) (storage.CAS, func() error, error) {
			return New(), nil, nil
		},
	})
}
