package provenance

import (
	"context"
	"fmt"

	"xdao.co/proofs/identity"
	"xdao.co/proofs/proof"
	"xdao.co/proofs/storage"
)

// ProveEquivalence fetches the content named by id and names it under alg.
// The content is stored under the new identity as well.
func ProveEquivalence(ctx context.Context, store storage.CAS, id identity.Identity, alg identity.Algorithm) (proof.Equivalence, error) {
	vs := storage.Verified{CAS: store}
	b, err := vs.Get(ctx, id)
	if err != nil {
		return proof.Equivalence{}, proof.FromStorage(err, fmt.Sprintf("provenance: %s", id))
	}
	other, err := vs.Put(ctx, b, alg)
	if err != nil {
		if !alg.Known() {
			return proof.Equivalence{}, proof.WrapError(proof.KindUsage, "PROOF-EQ-011", "provenance: algorithm", err)
		}
		return proof.Equivalence{}, proof.WrapError(proof.KindIO, "PROOF-EQ-012", "provenance: store", err)
	}
	return proof.Equivalence{A: id, B: other}, nil
}

// VerifyEquivalence checks that the content named by eq.A hashes to eq.B.
func VerifyEquivalence(ctx context.Context, store storage.CAS, eq proof.Equivalence) error {
	if err := eq.Validate(); err != nil {
		return err
	}
	b, err := storage.Verified{CAS: store}.Get(ctx, eq.A)
	if err != nil {
		return proof.FromStorage(err, fmt.Sprintf("provenance: %s", eq.A))
	}
	if !eq.B.Matches(b) {
		return proof.NewError(proof.KindValidation, "PROOF-EQ-010", fmt.Sprintf("provenance: %s does not name the content of %s", eq.B, eq.A))
	}
	return nil
}
