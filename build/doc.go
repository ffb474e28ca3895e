// Package build runs a transformation over ordered inputs in one of two
// explicit modes and emits the inclusion proof of what went in.
//
// Local mode reads named sources from trusted local storage. Proof mode
// resolves a previously emitted inclusion proof through a content store,
// re-verifying every object. Both share one transformation path, so equal
// content yields byte-identical artifacts and proofs.
package build
