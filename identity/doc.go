// Package identity computes and parses content identities.
//
// An Identity is a digest of bytes under a named algorithm. Its wire form is a
// CIDv1 string whose multihash carries the algorithm, so proofs may mix
// algorithms without losing track of which one named each item.
package identity
