package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/internal/cli"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/storage/casregistry"
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
	case "put":
		return cmdPut(args[1:], stdin, out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "has":
		return cmdHas(args[1:], out, errOut)
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
	fmt.Fprintln(w, "xdao-cas: minimal content store tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-cas put --backend localfs --localfs-dir <dir> [--algorithm ALG] [<file>|-]")
	fmt.Fprintln(w, "  xdao-cas get --backend localfs --localfs-dir <dir> --id <identity> [--out <file>]")
	fmt.Fprintln(w, "  xdao-cas has --backend localfs --localfs-dir <dir> --id <identity>")
	fmt.Fprintln(w, "  xdao-cas put --cas-config <file> <file>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - ipfs backend shells out to the local Kubo 'ipfs' CLI")
	fmt.Fprintln(w, "  - grpc backend talks to xdao-casgrpcd (or any CAS gRPC server)")
	fmt.Fprintln(w, "  - identities print as CIDv1; <algorithm>:<hex> is accepted on input")
	fmt.Fprintln(w, "  - has exits 0 when present and 3 when absent")
}

type commonFlags struct {
	store      cli.StoreFlags
	configPath string
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	c.store.Add(fs, "localfs")
	fs.StringVar(&c.configPath, "config", "", "Config file (default $XDAO_CONFIG)")
}

func (c *commonFlags) listed(out io.Writer) bool {
	if !c.store.ListBackends {
		return false
	}
	cli.PrintBackends(out, casregistry.UsageCLI)
	return true
}

func parseID(s string, errOut io.Writer) (identity.Identity, bool) {
	if s == "" {
		fmt.Fprintln(errOut, "missing --id")
		return identity.Undef, false
	}
	id, err := identity.Parse(s)
	if err != nil {
		fmt.Fprintf(errOut, "%v: %v\n", storage.ErrInvalidIdentity, err)
		return identity.Undef, false
	}
	return id, true
}

func cmdPut(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var algName string
	fs.StringVar(&algName, "algorithm", "", "Identity algorithm (default from config, sha2-256)")
	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if common.listed(out) {
		return proof.ExitOK
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(errOut, "usage: xdao-cas put [common flags] [--algorithm ALG] [<file>|-]")
		return proof.ExitUsage
	}

	ctx, cfg, err := cli.Setup("xdao-cas", common.configPath, nil, errOut)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	alg := common.store.Algorithm(cfg)
	if algName != "" {
		if alg, err = identity.ParseAlgorithm(algName); err != nil {
			fmt.Fprintln(errOut, err)
			return proof.ExitUsage
		}
	}

	var b []byte
	if fs.NArg() == 0 || fs.Arg(0) == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(fs.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return proof.ExitFailure
	}

	cas, closeFn, err := common.store.Open(cfg)
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	defer closeFn()

	id, err := cas.Put(ctx, b, alg)
	if err != nil {
		return cli.Fail(ctx, errOut, proof.FromStorage(err, "put"))
	}
	_, _ = fmt.Fprintln(out, id.String())
	return proof.ExitOK
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var idStr string
	var outPath string
	fs.StringVar(&idStr, "id", "", "Identity to fetch")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if common.listed(out) {
		return proof.ExitOK
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: xdao-cas get [common flags] --id <identity> [--out <file>]")
		return proof.ExitUsage
	}
	id, ok := parseID(idStr, errOut)
	if !ok {
		return proof.ExitUsage
	}

	ctx, cfg, err := cli.Setup("xdao-cas", common.configPath, nil, errOut)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	cas, closeFn, err := common.store.Open(cfg)
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	defer closeFn()

	b, err := cas.Get(ctx, id)
	if err != nil {
		return cli.Fail(ctx, errOut, proof.FromStorage(err, "get "+id.String()))
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return proof.ExitOK
	}
	if err := cli.WriteFileAtomic(outPath, b); err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	return proof.ExitOK
}

func cmdHas(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("has", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var idStr string
	fs.StringVar(&idStr, "id", "", "Identity to look up")
	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if common.listed(out) {
		return proof.ExitOK
	}
	id, ok := parseID(idStr, errOut)
	if !ok {
		return proof.ExitUsage
	}

	ctx, cfg, err := cli.Setup("xdao-cas", common.configPath, nil, errOut)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	cas, closeFn, err := common.store.Open(cfg)
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	defer closeFn()

	if !cas.Has(ctx, id) {
		_, _ = fmt.Fprintln(out, "absent")
		return proof.ExitNotFound
	}
	_, _ = fmt.Fprintln(out, "present")
	return proof.ExitOK
}
