package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"xdao.co/proofs/config"
	"xdao.co/proofs/identity"
	"xdao.co/proofs/internal/cli"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/bundle"
	"xdao.co/proofs/storage/memcas"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return proof.ExitUsage
	}

	switch args[0] {
	case "identify":
		return cmdIdentify(args[1:], stdin, out, errOut)
	case "transform":
		return cmdTransform(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], stdin, out, errOut)
	case "chain":
		return cmdChain(args[1:], stdin, out, errOut)
	case "check":
		return cmdCheck(args[1:], out, errOut)
	case "equiv":
		return cmdEquiv(args[1:], stdin, out, errOut)
	case "bundle":
		return cmdBundle(args[1:], stdin, out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return proof.ExitOK
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return proof.ExitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-proof: inclusion and transformation proofs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-proof identify [--algorithm ALG] [FILE...]")
	fmt.Fprintln(w, "  xdao-proof transform [store flags] [--transform NAME] [--param k=v ...] [--then NAME[,k=v...] ...] [--source-dir DIR] [--out FILE] SOURCE...")
	fmt.Fprintln(w, "  xdao-proof verify [store flags] [PROOF_FILE|-]")
	fmt.Fprintln(w, "  xdao-proof chain verify [store flags] [--links-only] [CHAIN_FILE|-]")
	fmt.Fprintln(w, "  xdao-proof check [--transform NAME] [--param k=v ...] [--source-dir DIR] [--proof FILE store flags] SOURCE...")
	fmt.Fprintln(w, "  xdao-proof equiv prove [store flags] --to ALG IDENTITY")
	fmt.Fprintln(w, "  xdao-proof equiv verify [store flags] [EQUIV_FILE|-]")
	fmt.Fprintln(w, "  xdao-proof bundle export [store flags] --out FILE [--zstd] [--index] IDENTITY...")
	fmt.Fprintln(w, "  xdao-proof bundle import [store flags] [FILE|-]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Store flags:")
	fmt.Fprintln(w, "  --backend NAME (see --list-backends) plus backend flags, or --cas-config FILE")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes:")
	fmt.Fprintln(w, "  0 ok, 1 failure, 2 usage, 3 not found, 4 validation failed,")
	fmt.Fprintln(w, "  5 transformation mismatch / not reproducible, 6 chain break")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - proofs are written to stdout; logs go to stderr")
	fmt.Fprintln(w, "  - a transformation proof is three lines: input, transformation, output")
	fmt.Fprintln(w, "  - chains separate proofs with one blank line")
}

// common carries the flags every store-backed subcommand accepts.
type common struct {
	store      cli.StoreFlags
	configPath string
}

func (c *common) add(fs *flag.FlagSet) {
	c.store.Add(fs, "")
	fs.StringVar(&c.configPath, "config", "", "Config file (default $XDAO_CONFIG)")
}

func (c *common) setup(app string, errOut io.Writer) (context.Context, config.Config, error) {
	return cli.Setup(app, c.configPath, nil, errOut)
}

// open sets up logging and opens the selected store.
func (c *common) open(app string, errOut io.Writer) (context.Context, config.Config, storage.CAS, func() error, error) {
	ctx, cfg, err := c.setup(app, errOut)
	if err != nil {
		return nil, config.Config{}, nil, nil, err
	}
	cas, closeFn, err := c.store.Open(cfg)
	if err != nil {
		return ctx, cfg, nil, nil, err
	}
	return ctx, cfg, cas, closeFn, nil
}

// openOrMemory opens the selected store, or an in-memory one when none is
// selected.
func (c *common) openOrMemory(cfg config.Config) (storage.CAS, func() error, error) {
	if !c.store.Configured(cfg) {
		return memcas.New(), func() error { return nil }, nil
	}
	return c.store.Open(cfg)
}

func readInput(fs *flag.FlagSet, stdin io.Reader) ([]byte, error) {
	if fs.NArg() == 0 || fs.Arg(0) == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, proof.WrapError(proof.KindIO, "PROOF-CLI-030", "read stdin", err)
		}
		return b, nil
	}
	return readFile(fs.Arg(0))
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, proof.WrapError(proof.KindNotFound, "PROOF-CLI-032", "read "+path, err)
	}
	if err != nil {
		return nil, proof.WrapError(proof.KindIO, "PROOF-CLI-031", "read "+path, err)
	}
	return b, nil
}

func cmdIdentify(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("identify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var algName string
	var hexForm bool
	fs.StringVar(&algName, "algorithm", string(identity.Default), "Identity algorithm ("+algorithmNames()+")")
	fs.BoolVar(&hexForm, "hex", false, "Print <algorithm>:<hex> instead of the CID form")
	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	alg, err := identity.ParseAlgorithm(algName)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return proof.ExitUsage
	}

	emit := func(b []byte) {
		id := identity.MustIdentify(b, alg)
		if hexForm {
			_, _ = fmt.Fprintf(out, "%s:%s\n", alg, id.Hex())
			return
		}
		_, _ = fmt.Fprintln(out, id)
	}
	if fs.NArg() == 0 {
		b, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(errOut, "read stdin: %v\n", err)
			return proof.ExitFailure
		}
		emit(b)
		return proof.ExitOK
	}
	for _, p := range fs.Args() {
		b, err := os.ReadFile(p)
		if os.IsNotExist(err) {
			fmt.Fprintf(errOut, "missing source: %s\n", p)
			return proof.ExitNotFound
		}
		if err != nil {
			fmt.Fprintf(errOut, "read %s: %v\n", p, err)
			return proof.ExitFailure
		}
		emit(b)
	}
	return proof.ExitOK
}

func algorithmNames() string {
	algs := identity.Algorithms()
	names := make([]string, len(algs))
	for i, a := range algs {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

func cmdBundle(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-proof bundle <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: export, import")
		return proof.ExitUsage
	}
	switch args[0] {
	case "export":
		fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var c common
		c.add(fs)
		var outPath string
		var compress, index bool
		fs.StringVar(&outPath, "out", "", "Bundle output file")
		fs.BoolVar(&compress, "zstd", false, "Compress the bundle with zstd")
		fs.BoolVar(&index, "index", true, "Include index.json")
		if err := fs.Parse(args[1:]); err != nil {
			return proof.ExitUsage
		}
		if outPath == "" || fs.NArg() == 0 {
			fmt.Fprintln(errOut, "usage: xdao-proof bundle export [store flags] --out FILE [--zstd] [--index] IDENTITY...")
			return proof.ExitUsage
		}
		ids := make([]identity.Identity, 0, fs.NArg())
		for _, s := range fs.Args() {
			id, err := identity.Parse(s)
			if err != nil {
				fmt.Fprintf(errOut, "invalid identity %q: %v\n", s, err)
				return proof.ExitUsage
			}
			ids = append(ids, id)
		}
		ctx, _, cas, closeFn, err := c.open("xdao-proof", errOut)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		defer closeFn()

		var buf bytes.Buffer
		if err := bundle.Export(ctx, &buf, cas, ids, bundle.ExportOptions{IncludeIndex: index, Compress: compress}); err != nil {
			return cli.Fail(ctx, errOut, proof.FromStorage(err, "bundle export"))
		}
		if err := cli.WriteFileAtomic(outPath, buf.Bytes()); err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		return proof.ExitOK

	case "import":
		fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var c common
		c.add(fs)
		var ignoreUnknown bool
		fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown entries instead of failing")
		if err := fs.Parse(args[1:]); err != nil {
			return proof.ExitUsage
		}
		b, err := readInput(fs, stdin)
		if err != nil {
			return cli.Fail(nil, errOut, err)
		}
		ctx, _, cas, closeFn, err := c.open("xdao-proof", errOut)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		defer closeFn()

		ids, err := bundle.ImportWithOptions(ctx, bytes.NewReader(b), cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
		if err != nil {
			return cli.Fail(ctx, errOut, proof.FromStorage(err, "bundle import"))
		}
		for _, id := range ids {
			_, _ = fmt.Fprintln(out, id)
		}
		return proof.ExitOK

	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return proof.ExitUsage
	}
}
