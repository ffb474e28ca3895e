package build

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/transform"
)

// DefaultWorkers bounds concurrent fetches in proof mode.
const DefaultWorkers = 4

type Options struct {
	// Algorithm names local sources. Zero means identity.Default.
	Algorithm identity.Algorithm
	// Store receives every local source (local mode) and resolves
	// identities (proof mode, where it is required).
	Store storage.CAS
	// Workers bounds concurrent fetches in proof mode.
	Workers int
}

func (o Options) algorithm() identity.Algorithm {
	if o.Algorithm == "" {
		return identity.Default
	}
	return o.Algorithm
}

// Result is the outcome of either build mode.
type Result struct {
	Proof    proof.Inclusion
	Artifact []byte
	// Inputs holds the input contents in proof order.
	Inputs [][]byte
}

// BuildFromLocalSources reads each named source in order, identifies it and
// applies t. A missing source is KindNotFound.
func BuildFromLocalSources(ctx context.Context, r SourceReader, names []string, t transform.Transformation, opts Options) (Result, error) {
	if r == nil || t == nil {
		return Result{}, proof.NewError(proof.KindUsage, "PROOF-BUILD-000", "build: source reader and transformation are required")
	}
	alg := opts.algorithm()
	if !alg.Known() {
		return Result{}, proof.WrapError(proof.KindUsage, "PROOF-BUILD-006", "build: algorithm", identity.ErrUnknownAlgorithm)
	}
	log := zerolog.Ctx(ctx)

	res := Result{
		Proof:  make(proof.Inclusion, 0, len(names)),
		Inputs: make([][]byte, 0, len(names)),
	}
	for i, name := range names {
		b, err := r.ReadSource(ctx, name)
		if errors.Is(err, ErrSourceNotFound) {
			return Result{}, &proof.Error{Kind: proof.KindNotFound, RuleID: "PROOF-BUILD-001", Message: fmt.Sprintf("build: missing source %q", name), Index: i + 1, Cause: err}
		}
		if err != nil {
			return Result{}, &proof.Error{Kind: proof.KindIO, RuleID: "PROOF-BUILD-002", Message: fmt.Sprintf("build: read source %q", name), Index: i + 1, Cause: err}
		}
		id, err := identity.Identify(b, alg)
		if err != nil {
			return Result{}, proof.WrapError(proof.KindInternal, "PROOF-BUILD-003", "build: identify", err)
		}
		if opts.Store != nil {
			if _, err := (storage.Verified{CAS: opts.Store}).Put(ctx, b, alg); err != nil {
				return Result{}, proof.WrapStorePut("PROOF-BUILD-004", fmt.Sprintf("build: store source %q", name), err)
			}
		}
		log.Debug().Str("source", name).Str("identity", id.String()).Msg("identified source")
		res.Proof = append(res.Proof, id)
		res.Inputs = append(res.Inputs, b)
	}
	return apply(ctx, res, t)
}

// BuildFromProof resolves every identity of p through opts.Store and
// applies t to the contents in proof order. Any resolution failure aborts
// the build with KindProofVerification wrapping the storage cause.
func BuildFromProof(ctx context.Context, p proof.Inclusion, t transform.Transformation, opts Options) (Result, error) {
	if opts.Store == nil || t == nil {
		return Result{}, proof.NewError(proof.KindUsage, "PROOF-BUILD-000", "build: store and transformation are required")
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	inputs, err := Resolve(ctx, opts.Store, p, opts.Workers)
	if err != nil {
		return Result{}, err
	}
	return apply(ctx, Result{Proof: append(proof.Inclusion(nil), p...), Inputs: inputs}, t)
}

func apply(ctx context.Context, res Result, t transform.Transformation) (Result, error) {
	out, err := t.Apply(ctx, res.Inputs)
	if err != nil {
		return Result{}, proof.WrapUnclassified(proof.KindInternal, "PROOF-BUILD-010", fmt.Sprintf("build: apply %s", t.Definition().Name), err)
	}
	res.Artifact = out
	zerolog.Ctx(ctx).Debug().Int("inputs", len(res.Inputs)).Int("artifact_bytes", len(out)).Str("transformation", t.Definition().Name).Msg("build complete")
	return res, nil
}

// Resolve fetches every identity of p through a verifying view of store,
// with at most workers concurrent fetches. The result keeps proof order.
// The first failure cancels outstanding fetches.
func Resolve(ctx context.Context, store storage.CAS, p proof.Inclusion, workers int) ([][]byte, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(p) {
		workers = len(p)
	}
	vs := storage.Verified{CAS: store}
	log := zerolog.Ctx(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]byte, len(p))
	errs := make([]error, len(p))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				b, err := vs.Get(ctx, p[i])
				if err != nil {
					errs[i] = err
					cancel()
					continue
				}
				log.Debug().Str("identity", p[i].String()).Msg("resolved")
				out[i] = b
			}
		}()
	}
feed:
	for i := range p {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	// Report the earliest failing position, not the first to finish.
	for i, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return nil, resolveError(i, p[i], err)
		}
	}
	for i, err := range errs {
		if err != nil {
			return nil, resolveError(i, p[i], err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, proof.WrapError(proof.KindIO, "PROOF-BUILD-022", "build: resolve", err)
	}
	return out, nil
}

func resolveError(i int, id identity.Identity, err error) error {
	rule := "PROOF-BUILD-021"
	if storage.IsNotFound(err) {
		rule = "PROOF-BUILD-020"
	}
	return &proof.Error{
		Kind:    proof.KindProofVerification,
		RuleID:  rule,
		Message: fmt.Sprintf("build: entry %d (%s) failed verification", i+1, id),
		Index:   i + 1,
		Cause:   err,
	}
}
