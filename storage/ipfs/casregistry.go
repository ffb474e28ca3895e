package ipfs

import (
	"flag"
	"os"

	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
)

var (
	flagBin      string
	flagIPFSPath string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (raw blocks)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagIPFSPath, "ipfs-path", "", "IPFS_PATH override (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return New(options(flagBin, flagIPFSPath)), nil, nil
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return New(options(cfg["ipfs-bin"], cfg["ipfs-path"])), nil, nil
		},
	})
}

func options(bin, repo string) Options {
	opts := Options{Bin: bin}
	if repo != "" {
		opts.Env = append(os.Environ(), "IPFS_PATH="+repo)
	}
	return opts
}
