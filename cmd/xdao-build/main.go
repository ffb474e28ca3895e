package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"xdao.co/proofs/build"
	"xdao.co/proofs/internal/cli"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage/casregistry"
	"xdao.co/proofs/transform"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "xdao-build: build an artifact and emit its inclusion proof")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-build [flags] SOURCE...                  # local mode")
	fmt.Fprintln(w, "  xdao-build --from-proof [flags] < proof.txt   # proof mode")
	fmt.Fprintln(w, "  xdao-build --manifest build.toml [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Both modes print the inclusion proof (one identity per line) to stdout and")
	fmt.Fprintln(w, "write the artifact to --out only when the whole build succeeded.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Reproducibility:")
	fmt.Fprintln(w, "  xdao-build --backend localfs --localfs-dir .cas a.js b.js > proof.txt")
	fmt.Fprintln(w, "  xdao-build --from-proof --backend localfs --localfs-dir .cas --out build/again < proof.txt")
	fmt.Fprintln(w, "  cmp build/out build/again")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

func run(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	fs := pflag.NewFlagSet("xdao-build", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.SortFlags = false

	var (
		fromProof  bool
		outPath    string
		tname      string
		params     []string
		manifest   string
		sourceDir  string
		configPath string
		help       bool
		store      cli.StoreFlags
	)
	fs.BoolVar(&fromProof, "from-proof", false, "Read an inclusion proof from stdin and build from the content store")
	fs.StringVar(&outPath, "out", "build/out", "Artifact output path")
	fs.StringVar(&tname, "transform", "concat", "Transformation name")
	fs.StringArrayVar(&params, "param", nil, "Transformation parameter key=value (repeatable)")
	fs.StringVar(&manifest, "manifest", "", "TOML build manifest")
	fs.StringVar(&sourceDir, "source-dir", ".", "Directory local sources are read from")
	fs.String("algorithm", "", "Identity algorithm for local sources (default sha2-256)")
	fs.Int("workers", build.DefaultWorkers, "Concurrent fetches in proof mode")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("log-format", "", "Log format (console, json)")
	fs.StringVar(&configPath, "config", "", "Config file (default $XDAO_CONFIG)")
	fs.BoolVarP(&help, "help", "h", false, "Show help")

	goFS := flag.NewFlagSet("xdao-build", flag.ContinueOnError)
	store.Add(goFS, "")
	fs.AddGoFlagSet(goFS)

	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if help {
		printUsage(out, fs)
		return proof.ExitOK
	}
	if store.ListBackends {
		cli.PrintBackends(out, casregistry.UsageCLI)
		return proof.ExitOK
	}

	ctx, cfg, err := cli.Setup("xdao-build", configPath, fs, errOut)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}

	sources := fs.Args()
	reader := build.DirReader{Root: sourceDir}
	opts := build.Options{Algorithm: store.Algorithm(cfg), Workers: cfg.Workers}
	var t transform.Transformation

	if manifest != "" {
		m, err := build.LoadManifest(manifest)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		if len(sources) == 0 {
			sources = m.Sources
		}
		if !fs.Changed("source-dir") {
			reader = m.Reader()
		}
		if m.Out != "" && !fs.Changed("out") {
			cfg.Out = m.Out
		}
		if m.Algorithm != "" && !fs.Changed("algorithm") {
			mopts, err := m.Options()
			if err != nil {
				return cli.Fail(ctx, errOut, err)
			}
			opts.Algorithm = mopts.Algorithm
		}
		if t, err = m.Transformation(); err != nil {
			return cli.Fail(ctx, errOut, err)
		}
	} else {
		p, err := cli.ParseParams(params)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		if t, err = transform.Lookup(tname, transform.InputManifest, p); err != nil {
			return cli.Fail(ctx, errOut, err)
		}
	}
	outPath = cfg.Out

	if store.Configured(cfg) {
		cas, closeFn, err := store.Open(cfg)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		defer closeFn()
		opts.Store = cas
	}

	var res build.Result
	if fromProof {
		if len(sources) != 0 && manifest == "" {
			fmt.Fprintln(errOut, "--from-proof takes no SOURCE arguments")
			return proof.ExitUsage
		}
		if opts.Store == nil {
			fmt.Fprintln(errOut, "--from-proof requires a content store (--backend or --cas-config)")
			return proof.ExitUsage
		}
		res, err = buildFromProof(ctx, stdin, t, opts)
	} else {
		if len(sources) == 0 {
			printUsage(errOut, fs)
			return proof.ExitUsage
		}
		res, err = build.BuildFromLocalSources(ctx, reader, sources, t, opts)
	}
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}

	if err := cli.WriteFileAtomic(outPath, res.Artifact); err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	if _, err := out.Write(res.Proof.Bytes()); err != nil {
		return cli.Fail(ctx, errOut, proof.WrapError(proof.KindIO, "PROOF-CLI-013", "write proof", err))
	}
	return proof.ExitOK
}

func buildFromProof(ctx context.Context, stdin io.Reader, t transform.Transformation, opts build.Options) (build.Result, error) {
	p, err := proof.ReadInclusion(stdin)
	if err != nil {
		return build.Result{}, err
	}
	return build.BuildFromProof(ctx, p, t, opts)
}
