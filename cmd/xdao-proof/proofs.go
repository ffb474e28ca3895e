package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"xdao.co/proofs/build"
	"xdao.co/proofs/identity"
	"xdao.co/proofs/internal/cli"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/provenance"
	"xdao.co/proofs/repro"
	"xdao.co/proofs/storage/casregistry"
	"xdao.co/proofs/transform"
)

// stageFlags describes the manifest-input transformation of a build.
type stageFlags struct {
	name      string
	params    cli.MultiString
	sourceDir string
	algorithm string
}

func (s *stageFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&s.name, "transform", "concat", "Transformation name")
	fs.Var(&s.params, "param", "Transformation parameter key=value (repeatable)")
	fs.StringVar(&s.sourceDir, "source-dir", ".", "Directory local sources are read from")
	fs.StringVar(&s.algorithm, "algorithm", "", "Identity algorithm (default from config, sha2-256)")
}

func (s *stageFlags) transformation() (transform.Transformation, error) {
	params, err := cli.ParseParams(s.params)
	if err != nil {
		return nil, err
	}
	return transform.Lookup(s.name, transform.InputManifest, params)
}

func (s *stageFlags) resolveAlgorithm(def identity.Algorithm) (identity.Algorithm, error) {
	if s.algorithm == "" {
		return def, nil
	}
	alg, err := identity.ParseAlgorithm(s.algorithm)
	if err != nil {
		return "", proof.WrapError(proof.KindUsage, "PROOF-CLI-040", "--algorithm", err)
	}
	return alg, nil
}

// parseThen parses "name[,k=v,...]" into a blob-input transformation.
func parseThen(spec string) (transform.Transformation, error) {
	parts := strings.Split(spec, ",")
	params, err := cli.ParseParams(parts[1:])
	if err != nil {
		return nil, err
	}
	return transform.Lookup(strings.TrimSpace(parts[0]), transform.InputBlob, params)
}

func cmdTransform(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("transform", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.add(fs)
	var st stageFlags
	st.add(fs)
	var then cli.MultiString
	var outPath, inclusionPath string
	fs.Var(&then, "then", "Downstream stage NAME[,k=v...] fed the previous output (repeatable)")
	fs.StringVar(&outPath, "out", "", "Write the final artifact to FILE")
	fs.StringVar(&inclusionPath, "inclusion", "", "Write the inclusion proof to FILE")
	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if c.store.ListBackends {
		cli.PrintBackends(out, casregistry.UsageCLI)
		return proof.ExitOK
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdao-proof transform [store flags] [--transform NAME] [--param k=v ...] [--then NAME[,k=v...] ...] SOURCE...")
		return proof.ExitUsage
	}

	t, err := st.transformation()
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	stages := make([]transform.Transformation, 0, len(then))
	for _, spec := range then {
		s, err := parseThen(spec)
		if err != nil {
			return cli.Fail(nil, errOut, err)
		}
		stages = append(stages, s)
	}

	ctx, cfg, err := c.setup("xdao-proof", errOut)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	alg, err := st.resolveAlgorithm(c.store.Algorithm(cfg))
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}

	// Without a store the proof is still emitted, but objects live only
	// for this run.
	cas, closeFn, err := c.openOrMemory(cfg)
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	defer closeFn()

	p, err := provenance.RunPipeline(ctx, cas, provenance.Step{
		Transformation: t,
		Reader:         build.DirReader{Root: st.sourceDir},
		Sources:        fs.Args(),
		Algorithm:      alg,
		Workers:        cfg.Workers,
	}, stages...)
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}

	if outPath != "" {
		if err := cli.WriteFileAtomic(outPath, p.Artifact); err != nil {
			return cli.Fail(ctx, errOut, err)
		}
	}
	if inclusionPath != "" {
		if err := cli.WriteFileAtomic(inclusionPath, p.Inclusion.Bytes()); err != nil {
			return cli.Fail(ctx, errOut, err)
		}
	}
	_, _ = out.Write(p.Chain.Bytes())
	return proof.ExitOK
}

func cmdVerify(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.add(fs)
	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(errOut, "usage: xdao-proof verify [store flags] [PROOF_FILE|-]")
		return proof.ExitUsage
	}
	b, err := readInput(fs, stdin)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	tp, err := proof.ParseTransformation(b)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}

	ctx, _, cas, closeFn, err := c.open("xdao-proof", errOut)
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	defer closeFn()

	if err := provenance.Verify(ctx, cas, tp); err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	_, _ = fmt.Fprintln(out, "OK")
	return proof.ExitOK
}

func cmdChain(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "verify" {
		fmt.Fprintln(errOut, "usage: xdao-proof chain verify [store flags] [--links-only] [CHAIN_FILE|-]")
		return proof.ExitUsage
	}
	fs := flag.NewFlagSet("chain verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.add(fs)
	var linksOnly bool
	var nestAlg string
	fs.BoolVar(&linksOnly, "links-only", false, "Only check that stage outputs feed the next stage inputs")
	fs.StringVar(&nestAlg, "identity", "", "Also print the chain's nested transformation proof under ALG")
	if err := fs.Parse(args[1:]); err != nil {
		return proof.ExitUsage
	}
	b, err := readInput(fs, stdin)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	chain, err := proof.ParseChain(b)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}

	var nestTo identity.Algorithm
	if nestAlg != "" {
		alg, err := identity.ParseAlgorithm(nestAlg)
		if err != nil {
			return cli.Fail(nil, errOut, proof.WrapError(proof.KindUsage, "PROOF-CLI-040", "--identity", err))
		}
		nestTo = alg
	}

	var collapse func() (proof.Transformation, error)
	if linksOnly {
		if err := chain.Verify(); err != nil {
			return cli.Fail(nil, errOut, err)
		}
		// Nothing is stored, so the nested proof only verifies where the
		// chain's encoding is already present.
		collapse = func() (proof.Transformation, error) { return chain.Collapse(nestTo) }
	} else {
		ctx, _, cas, closeFn, err := c.open("xdao-proof", errOut)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		defer closeFn()
		if err := provenance.VerifyChain(ctx, cas, chain); err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		collapse = func() (proof.Transformation, error) { return provenance.Collapse(ctx, cas, chain, nestTo) }
	}

	if nestAlg != "" {
		nested, err := collapse()
		if err != nil {
			return cli.Fail(nil, errOut, err)
		}
		_, _ = out.Write(nested.Bytes())
		return proof.ExitOK
	}
	_, _ = fmt.Fprintf(out, "OK (%d stages)\n", len(chain))
	return proof.ExitOK
}

func cmdCheck(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var c common
	c.add(fs)
	var st stageFlags
	st.add(fs)
	var proofPath string
	fs.StringVar(&proofPath, "proof", "", "Check a previously emitted inclusion proof against the sources (needs a store)")
	if err := fs.Parse(args); err != nil {
		return proof.ExitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: xdao-proof check [--transform NAME] [--param k=v ...] [--proof FILE store flags] SOURCE...")
		return proof.ExitUsage
	}
	t, err := st.transformation()
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	ctx, cfg, err := c.setup("xdao-proof", errOut)
	if err != nil {
		return cli.Fail(nil, errOut, err)
	}
	alg, err := st.resolveAlgorithm(c.store.Algorithm(cfg))
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	opts := build.Options{Algorithm: alg, Workers: cfg.Workers}
	reader := build.DirReader{Root: st.sourceDir}

	var rep repro.Report
	if proofPath != "" {
		b, err := readFile(proofPath)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		p, err := proof.ParseInclusion(b)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		cas, closeFn, err := c.store.Open(cfg)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		defer closeFn()
		opts.Store = cas
		if st.algorithm == "" {
			// Follow the proof's algorithm.
			opts.Algorithm = ""
		}
		rep, err = repro.CheckProof(ctx, p, reader, fs.Args(), t, opts)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
	} else {
		rep, err = repro.Check(ctx, reader, fs.Args(), t, opts)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
	}

	if err := rep.Err(); err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	id, err := rep.ArtifactIdentity(alg)
	if err != nil {
		return cli.Fail(ctx, errOut, err)
	}
	_, _ = fmt.Fprintf(out, "reproducible %s\n", id)
	return proof.ExitOK
}

func cmdEquiv(args []string, stdin io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-proof equiv <prove|verify> ...")
		return proof.ExitUsage
	}
	switch args[0] {
	case "prove":
		fs := flag.NewFlagSet("equiv prove", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var c common
		c.add(fs)
		var to string
		fs.StringVar(&to, "to", "", "Target algorithm")
		if err := fs.Parse(args[1:]); err != nil {
			return proof.ExitUsage
		}
		if to == "" || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: xdao-proof equiv prove [store flags] --to ALG IDENTITY")
			return proof.ExitUsage
		}
		alg, err := identity.ParseAlgorithm(to)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return proof.ExitUsage
		}
		id, err := identity.Parse(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "invalid identity: %v\n", err)
			return proof.ExitUsage
		}
		ctx, _, cas, closeFn, err := c.open("xdao-proof", errOut)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		defer closeFn()
		eq, err := provenance.ProveEquivalence(ctx, cas, id, alg)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		_, _ = out.Write(eq.Bytes())
		return proof.ExitOK

	case "verify":
		fs := flag.NewFlagSet("equiv verify", flag.ContinueOnError)
		fs.SetOutput(errOut)
		var c common
		c.add(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return proof.ExitUsage
		}
		b, err := readInput(fs, stdin)
		if err != nil {
			return cli.Fail(nil, errOut, err)
		}
		eq, err := proof.ParseEquivalence(b)
		if err != nil {
			return cli.Fail(nil, errOut, err)
		}
		ctx, _, cas, closeFn, err := c.open("xdao-proof", errOut)
		if err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		defer closeFn()
		if err := provenance.VerifyEquivalence(ctx, cas, eq); err != nil {
			return cli.Fail(ctx, errOut, err)
		}
		_, _ = fmt.Fprintln(out, "OK")
		return proof.ExitOK

	default:
		fmt.Fprintf(errOut, "unknown equiv subcommand: %s\n", args[0])
		return proof.ExitUsage
	}
}
