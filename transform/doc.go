// Package transform defines transformations: deterministic functions from
// an ordered list of inputs to one output artifact.
//
// Every transformation is described by a Definition whose canonical CBOR
// bytes are the transformation's identity. The Definition must cover
// everything the output depends on: name, input mode, parameters and pinned
// tool versions. Verifiers rebuild a transformation from its Definition
// alone, so a definition whose pinned tools differ from the running binary's
// cannot be reproduced and is rejected.
package transform
