package gitobj

import (
	"flag"
	"fmt"

	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
)

var (
	flagRepo string
	flagBin  string
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "git",
		Description: "git object database (git-sha1 identities only)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagRepo, "git-repo", "", "Repository path (for --backend=git)")
			fs.StringVar(&flagBin, "git-bin", "git", "Path to the git binary (for --backend=git)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagRepo, flagBin)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			return open(cfg["git-repo"], cfg["git-bin"])
		},
	})
}

func open(repo, bin string) (storage.CAS, func() error, error) {
	if repo == "" {
		return nil, nil, fmt.Errorf("missing --git-repo")
	}
	cas, err := New(Options{Repo: repo, Bin: bin})
	if err != nil {
		return nil, nil, err
	}
	return cas, nil, nil
}
