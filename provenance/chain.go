package provenance

import (
	"context"
	"fmt"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
	"xdao.co/proofs/transform"
)

// Pipeline is the outcome of RunPipeline.
type Pipeline struct {
	Chain    proof.Chain
	Artifact []byte
	// Inclusion is the first stage's inclusion proof.
	Inclusion proof.Inclusion
}

// RunPipeline runs first, then feeds each stage the previous stage's
// output. Stages must take blob input.
func RunPipeline(ctx context.Context, store storage.CAS, first Step, stages ...transform.Transformation) (Pipeline, error) {
	for i, st := range stages {
		if st == nil || st.Definition().Input != transform.InputBlob {
			return Pipeline{}, proof.NewError(proof.KindUsage, "PROOF-PROV-020", fmt.Sprintf("provenance: stage %d must take blob input", i+1))
		}
	}

	res, err := BuildProof(ctx, store, first)
	if err != nil {
		return Pipeline{}, err
	}
	p := Pipeline{Chain: proof.Chain{res.Proof}, Artifact: res.Artifact, Inclusion: res.Inclusion}

	for _, st := range stages {
		next, err := BuildProof(ctx, store, Step{
			Transformation: st,
			Input:          p.Chain[len(p.Chain)-1].Output,
			Algorithm:      first.Algorithm,
		})
		if err != nil {
			return Pipeline{}, err
		}
		p.Chain = append(p.Chain, next.Proof)
		p.Artifact = next.Artifact
	}
	return p, nil
}

// VerifyChain checks chain links, then re-executes every stage.
func VerifyChain(ctx context.Context, store storage.CAS, chain proof.Chain) error {
	if err := chain.Verify(); err != nil {
		return err
	}
	for i, tp := range chain {
		if err := Verify(ctx, store, tp); err != nil {
			return fmt.Errorf("provenance: stage %d: %w", i, err)
		}
	}
	return nil
}

// Collapse stores chain's encoding under alg and returns the single proof
// naming it. Verify recognizes such a proof and verifies the chain it names.
func Collapse(ctx context.Context, store storage.CAS, chain proof.Chain, alg identity.Algorithm) (proof.Transformation, error) {
	if err := chain.Verify(); err != nil {
		return proof.Transformation{}, err
	}
	enc, err := chain.Encode()
	if err != nil {
		return proof.Transformation{}, err
	}
	if _, err := store.Put(ctx, enc, alg); err != nil {
		return proof.Transformation{}, proof.FromStorage(err, "provenance: put chain")
	}
	return chain.Collapse(alg)
}

// reproduceChain verifies a collapsed chain named by tp and returns its
// final artifact.
func reproduceChain(ctx context.Context, store storage.CAS, tp proof.Transformation, chain proof.Chain) ([]byte, error) {
	first, last := chain[0], chain[len(chain)-1]
	if first.Input != tp.Input || last.Output != tp.Output {
		return nil, proof.NewError(proof.KindTransformationMismatch, "PROOF-PROV-021",
			fmt.Sprintf("provenance: chain %s does not span %s to %s", tp.Transformation, tp.Input, tp.Output))
	}
	if err := VerifyChain(ctx, store, chain); err != nil {
		return nil, err
	}
	out, err := storage.Verified{CAS: store}.Get(ctx, last.Output)
	if err != nil {
		return nil, proof.FromStorage(err, fmt.Sprintf("provenance: output %s", last.Output))
	}
	return out, nil
}
