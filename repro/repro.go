// Package repro checks that a build is reproducible: building from local
// sources and building from the emitted inclusion proof must agree.
package repro

import (
	"bytes"
	"context"

	"github.com/rs/zerolog"

	"xdao.co/proofs/build"
	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage/memcas"
	"xdao.co/proofs/transform"
)

// Report is the outcome of a check.
type Report struct {
	Local     build.Result
	FromProof build.Result

	// Reproducible: both artifacts are byte-identical.
	Reproducible bool
	// ProofsEqual: both inclusion proofs are identical.
	ProofsEqual bool
}

// OK requires both artifacts and both proofs to agree.
func (r Report) OK() bool { return r.Reproducible && r.ProofsEqual }

// ArtifactIdentity names the local artifact.
func (r Report) ArtifactIdentity(alg identity.Algorithm) (identity.Identity, error) {
	return identity.Identify(r.Local.Artifact, alg)
}

// Err converts a failed report into a KindTransformationMismatch error.
func (r Report) Err() error {
	switch {
	case !r.Reproducible:
		return proof.NewError(proof.KindTransformationMismatch, "PROOF-REPRO-001", "repro: artifacts differ between local and proof builds")
	case !r.ProofsEqual:
		return proof.NewError(proof.KindTransformationMismatch, "PROOF-REPRO-002", "repro: inclusion proofs differ between local and proof builds")
	}
	return nil
}

// Check builds sources in local mode, feeds the resulting proof back in
// proof mode and compares. When opts.Store is nil an in-memory store
// carries the sources between the two builds.
func Check(ctx context.Context, r build.SourceReader, sources []string, t transform.Transformation, opts build.Options) (Report, error) {
	if opts.Store == nil {
		opts.Store = memcas.New()
	}
	local, err := build.BuildFromLocalSources(ctx, r, sources, t, opts)
	if err != nil {
		return Report{}, err
	}
	fromProof, err := build.BuildFromProof(ctx, local.Proof, t, opts)
	if err != nil {
		return Report{}, err
	}
	return report(ctx, local, fromProof), nil
}

// CheckProof builds p in proof mode from opts.Store and compares against a
// local build of sources. It answers whether a previously emitted proof
// still describes the local tree.
func CheckProof(ctx context.Context, p proof.Inclusion, r build.SourceReader, sources []string, t transform.Transformation, opts build.Options) (Report, error) {
	if opts.Store == nil {
		return Report{}, proof.NewError(proof.KindUsage, "PROOF-REPRO-003", "repro: a store is required to resolve the proof")
	}
	if len(p) > 0 && opts.Algorithm == "" {
		opts.Algorithm = p[0].Algorithm()
	}
	fromProof, err := build.BuildFromProof(ctx, p, t, opts)
	if err != nil {
		return Report{}, err
	}
	// The local build must not write into the store the proof is read from.
	localOpts := opts
	localOpts.Store = nil
	local, err := build.BuildFromLocalSources(ctx, r, sources, t, localOpts)
	if err != nil {
		return Report{}, err
	}
	return report(ctx, local, fromProof), nil
}

func report(ctx context.Context, local, fromProof build.Result) Report {
	rep := Report{
		Local:        local,
		FromProof:    fromProof,
		Reproducible: bytes.Equal(local.Artifact, fromProof.Artifact),
		ProofsEqual:  local.Proof.Equal(fromProof.Proof),
	}
	zerolog.Ctx(ctx).Debug().
		Bool("reproducible", rep.Reproducible).
		Bool("proofs_equal", rep.ProofsEqual).
		Msg("reproducibility check")
	return rep
}
