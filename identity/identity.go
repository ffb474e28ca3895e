package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	ErrUnknownAlgorithm = errors.New("identity: unknown algorithm")
	ErrInvalid          = errors.New("identity: invalid identity")
	ErrMismatch         = errors.New("identity: content does not match identity")
)

// Identity is the content-derived name of a byte sequence under a named
// algorithm.
//
// Identity is an immutable, comparable value: two identities are equal iff
// both the algorithm and the digest bytes are equal. The zero value is
// Undef and names nothing.
//
// Identities computed under different algorithms are never equal, even for
// the same content.
type Identity struct {
	alg    Algorithm
	digest string
}

// Undef is the undefined identity.
var Undef Identity

// Identify computes the identity of data under alg.
// It fails only when alg is not a supported algorithm.
func Identify(data []byte, alg Algorithm) (Identity, error) {
	h, ok := hashers[alg]
	if !ok {
		return Undef, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	return Identity{alg: alg, digest: string(h.sum(data))}, nil
}

// MustIdentify is like Identify but panics on an unknown algorithm.
// Intended for constant algorithms and tests.
func MustIdentify(data []byte, alg Algorithm) Identity {
	id, err := Identify(data, alg)
	if err != nil {
		panic(err)
	}
	return id
}

// New constructs an Identity from a raw digest.
func New(alg Algorithm, digest []byte) (Identity, error) {
	h, ok := hashers[alg]
	if !ok {
		return Undef, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	if len(digest) != h.size {
		return Undef, fmt.Errorf("%w: %s digest is %d bytes, want %d", ErrInvalid, alg, len(digest), h.size)
	}
	return Identity{alg: alg, digest: string(digest)}, nil
}

// Defined reports whether id names content.
func (id Identity) Defined() bool { return id.alg != "" && id.digest != "" }

// Algorithm returns the algorithm id was computed under.
func (id Identity) Algorithm() Algorithm { return id.alg }

// Digest returns a copy of the raw digest bytes.
func (id Identity) Digest() []byte { return []byte(id.digest) }

// Hex returns the lowercase hex encoding of the digest.
func (id Identity) Hex() string { return hex.EncodeToString([]byte(id.digest)) }

// Matches reports whether data hashes to id under id's algorithm.
func (id Identity) Matches(data []byte) bool {
	if !id.Defined() {
		return false
	}
	got, err := Identify(data, id.alg)
	if err != nil {
		return false
	}
	return got == id
}

// Verify returns ErrMismatch if data does not hash to id.
func (id Identity) Verify(data []byte) error {
	if !id.Defined() {
		return ErrInvalid
	}
	if !id.Matches(data) {
		return fmt.Errorf("%w: %s", ErrMismatch, id)
	}
	return nil
}

// CID returns the CIDv1 form of id. The codec is raw, except for GitSHA1
// identities which use git-raw.
func (id Identity) CID() cid.Cid {
	if !id.Defined() {
		return cid.Undef
	}
	h := hashers[id.alg]
	mh, err := multihash.Encode([]byte(id.digest), h.code)
	if err != nil {
		return cid.Undef
	}
	return cid.NewCidV1(h.codec, mh)
}

// String returns the canonical wire form: the CIDv1 string of id.
func (id Identity) String() string {
	if !id.Defined() {
		return "<undef>"
	}
	return id.CID().String()
}

// FromCID converts a CIDv1 with a supported (codec, multihash) pair.
func FromCID(c cid.Cid) (Identity, error) {
	if !c.Defined() {
		return Undef, ErrInvalid
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return Undef, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	h, ok := lookupCode(dec.Code, c.Type())
	if !ok {
		return Undef, fmt.Errorf("%w: multihash %s with codec 0x%x", ErrUnknownAlgorithm, multihash.Codes[dec.Code], c.Type())
	}
	return New(h.name, dec.Digest)
}

// Parse parses the wire form of an identity.
//
// Accepted forms:
//   - a CIDv1 string (the form String emits)
//   - "<algorithm>:<hex digest>", e.g. "sha2-256:2cf2..." or "git-sha1:2e65..."
func Parse(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Undef, ErrInvalid
	}
	if algName, hexDigest, ok := strings.Cut(s, ":"); ok {
		alg, err := ParseAlgorithm(algName)
		if err != nil {
			return Undef, err
		}
		digest, err := hex.DecodeString(hexDigest)
		if err != nil {
			return Undef, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return New(alg, digest)
	}
	c, err := cid.Decode(s)
	if err != nil {
		return Undef, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Version() != 1 {
		return Undef, fmt.Errorf("%w: CIDv%d not supported", ErrInvalid, c.Version())
	}
	return FromCID(c)
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalid
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
