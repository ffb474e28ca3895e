// Package proof defines the proof values exchanged between builders and
// verifiers, and their line-oriented wire forms.
//
// An Inclusion proof is the ordered list of input identities of a build.
// A Transformation proof is the triple (input, transformation, output).
// A Chain links Transformation proofs end to end, and an Equivalence states
// that two identities under different algorithms name the same content.
//
// All values are immutable and comparable by their serialized bytes.
package proof
