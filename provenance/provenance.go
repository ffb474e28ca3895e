// Package provenance builds and verifies transformation proofs and chains
// of them.
//
// Every object a proof names (the serialized inclusion proof, the
// transformation definition and the artifact) is put into the store, so a
// proof can later be verified from its three identities alone.
package provenance

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"xdao.co/proofs/build"
	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/transform"
)

// Step describes one transformation run.
//
// For manifest-input transformations, set Reader and Sources (local mode)
// or Inclusion (proof mode). For blob-input transformations, set Input to
// the identity of the single input artifact.
type Step struct {
	Transformation transform.Transformation

	Reader    build.SourceReader
	Sources   []string
	Inclusion proof.Inclusion

	Input identity.Identity

	// Algorithm names new objects. Zero means identity.Default.
	Algorithm identity.Algorithm
	Workers   int
}

func (s Step) algorithm() identity.Algorithm {
	if s.Algorithm == "" {
		return identity.Default
	}
	return s.Algorithm
}

// Result is the outcome of BuildProof.
type Result struct {
	Proof    proof.Transformation
	Artifact []byte
	// Inclusion is set for manifest-input steps.
	Inclusion proof.Inclusion
}

// BuildProof runs step and returns its transformation proof.
func BuildProof(ctx context.Context, store storage.CAS, step Step) (Result, error) {
	if store == nil || step.Transformation == nil {
		return Result{}, proof.NewError(proof.KindUsage, "PROOF-PROV-001", "provenance: store and transformation are required")
	}
	vs := storage.Verified{CAS: store}
	alg := step.algorithm()
	def := step.Transformation.Definition()

	defBytes, err := def.Bytes()
	if err != nil {
		return Result{}, err
	}
	tid, err := vs.Put(ctx, defBytes, alg)
	if err != nil {
		return Result{}, proof.WrapStorePut("PROOF-PROV-002", "provenance: store definition", err)
	}

	var res Result
	switch def.Input {
	case transform.InputManifest:
		opts := build.Options{Algorithm: alg, Store: store, Workers: step.Workers}
		var br build.Result
		if step.Reader != nil {
			br, err = build.BuildFromLocalSources(ctx, step.Reader, step.Sources, step.Transformation, opts)
		} else {
			br, err = build.BuildFromProof(ctx, step.Inclusion, step.Transformation, opts)
		}
		if err != nil {
			return Result{}, err
		}
		// input = identify(serialize(InclusionProof))
		in, err := vs.Put(ctx, br.Proof.Bytes(), alg)
		if err != nil {
			return Result{}, proof.WrapStorePut("PROOF-PROV-003", "provenance: store inclusion proof", err)
		}
		res = Result{Proof: proof.Transformation{Input: in}, Artifact: br.Artifact, Inclusion: br.Proof}

	case transform.InputBlob:
		if !step.Input.Defined() {
			return Result{}, proof.NewError(proof.KindUsage, "PROOF-PROV-004", "provenance: blob step requires an input identity")
		}
		b, err := vs.Get(ctx, step.Input)
		if err != nil {
			return Result{}, proof.FromStorage(err, fmt.Sprintf("provenance: input %s", step.Input))
		}
		out, err := step.Transformation.Apply(ctx, [][]byte{b})
		if err != nil {
			return Result{}, proof.WrapUnclassified(proof.KindInternal, "PROOF-PROV-005", fmt.Sprintf("provenance: apply %s", def.Name), err)
		}
		res = Result{Proof: proof.Transformation{Input: step.Input}, Artifact: out}

	default:
		return Result{}, def.Validate()
	}

	oid, err := vs.Put(ctx, res.Artifact, alg)
	if err != nil {
		return Result{}, proof.WrapStorePut("PROOF-PROV-006", "provenance: store artifact", err)
	}
	res.Proof.Transformation = tid
	res.Proof.Output = oid

	zerolog.Ctx(ctx).Debug().
		Str("input", res.Proof.Input.String()).
		Str("transformation", tid.String()).
		Str("output", oid.String()).
		Msg("transformation proof emitted")
	return res, nil
}

// Reproduce re-executes the transformation tp names against its input and
// returns the artifact. It does not compare against tp.Output. When
// tp.Transformation names a chain stored by Collapse, every stage of that
// chain is verified instead and the final stage's artifact is returned.
func Reproduce(ctx context.Context, store storage.CAS, tp proof.Transformation) ([]byte, error) {
	if err := tp.Validate(); err != nil {
		return nil, err
	}
	vs := storage.Verified{CAS: store}

	defBytes, err := vs.Get(ctx, tp.Transformation)
	if err != nil {
		return nil, proof.FromStorage(err, fmt.Sprintf("provenance: transformation %s", tp.Transformation))
	}
	if chain, err := proof.DecodeChain(defBytes); err == nil {
		return reproduceChain(ctx, store, tp, chain)
	}
	t, err := transform.FromBytes(defBytes)
	if err != nil {
		return nil, err
	}

	inBytes, err := vs.Get(ctx, tp.Input)
	if err != nil {
		return nil, proof.FromStorage(err, fmt.Sprintf("provenance: input %s", tp.Input))
	}
	inputs := [][]byte{inBytes}
	if t.Definition().Input == transform.InputManifest {
		incl, err := proof.ParseInclusion(inBytes)
		if err != nil {
			return nil, err
		}
		inputs, err = build.Resolve(ctx, store, incl, 0)
		if err != nil {
			return nil, err
		}
	}

	out, err := t.Apply(ctx, inputs)
	if err != nil {
		return nil, proof.WrapUnclassified(proof.KindInternal, "PROOF-PROV-005", fmt.Sprintf("provenance: apply %s", t.Definition().Name), err)
	}
	return out, nil
}

// Verify re-executes tp and checks that the recomputed output identity,
// under tp.Output's algorithm, equals tp.Output.
func Verify(ctx context.Context, store storage.CAS, tp proof.Transformation) error {
	out, err := Reproduce(ctx, store, tp)
	if err != nil {
		return err
	}
	got, err := identity.Identify(out, tp.Output.Algorithm())
	if err != nil {
		return proof.WrapError(proof.KindValidation, "PROOF-PROV-011", "provenance: output algorithm", err)
	}
	log := zerolog.Ctx(ctx)
	if got != tp.Output {
		log.Warn().Str("claimed", tp.Output.String()).Str("recomputed", got.String()).Msg("transformation not reproducible")
		return proof.NewError(proof.KindTransformationMismatch, "PROOF-PROV-010",
			fmt.Sprintf("provenance: recomputed output %s does not match claimed %s", got, tp.Output))
	}
	log.Debug().Str("output", got.String()).Msg("transformation proof verified")
	return nil
}
