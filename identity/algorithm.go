package identity

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/cloudflare/circl/xof"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a hash function used to derive an Identity.
//
// Names follow the multihash table where one exists. GitSHA1 is the git blob
// object id: sha1 over "blob <len>\x00" followed by the content.
type Algorithm string

const (
	SHA2_256   Algorithm = "sha2-256"
	SHA2_512   Algorithm = "sha2-512"
	SHA3_256   Algorithm = "sha3-256"
	BLAKE2B256 Algorithm = "blake2b-256"
	BLAKE3     Algorithm = "blake3"
	SHAKE256   Algorithm = "shake-256"
	GitSHA1    Algorithm = "git-sha1"
)

// Default is the algorithm used when callers do not choose one.
const Default = SHA2_256

type hasher struct {
	name  Algorithm
	code  uint64 // multihash function code
	codec uint64 // CID codec
	size  int
	sum   func([]byte) []byte
}

var hashers = map[Algorithm]hasher{
	SHA2_256: {SHA2_256, multihash.SHA2_256, cid.Raw, sha256.Size, func(b []byte) []byte {
		s := sha256.Sum256(b)
		return s[:]
	}},
	SHA2_512: {SHA2_512, multihash.SHA2_512, cid.Raw, sha512.Size, func(b []byte) []byte {
		s := sha512.Sum512(b)
		return s[:]
	}},
	SHA3_256: {SHA3_256, multihash.SHA3_256, cid.Raw, 32, func(b []byte) []byte {
		s := sha3.Sum256(b)
		return s[:]
	}},
	BLAKE2B256: {BLAKE2B256, multihash.BLAKE2B_MIN + 31, cid.Raw, blake2b.Size256, func(b []byte) []byte {
		s := blake2b.Sum256(b)
		return s[:]
	}},
	BLAKE3: {BLAKE3, multihash.BLAKE3, cid.Raw, 32, func(b []byte) []byte {
		s := blake3.Sum256(b)
		return s[:]
	}},
	SHAKE256: {SHAKE256, multihash.SHAKE_256, cid.Raw, 64, shake256},
	GitSHA1:  {GitSHA1, multihash.SHA1, cid.GitRaw, sha1.Size, gitBlobSHA1},
}

func shake256(b []byte) []byte {
	x := xof.SHAKE256.New()
	_, _ = x.Write(b)
	out := make([]byte, 64)
	// Reading from an XOF never fails.
	_, _ = io.ReadFull(x, out)
	return out
}

func gitBlobSHA1(b []byte) []byte {
	h := sha1.New()
	_, _ = io.WriteString(h, "blob "+strconv.Itoa(len(b))+"\x00")
	_, _ = h.Write(b)
	return h.Sum(nil)
}

// ParseAlgorithm returns the Algorithm named by s.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "sha256":
		return SHA2_256, nil
	case "sha512":
		return SHA2_512, nil
	}
	a := Algorithm(s)
	if _, ok := hashers[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
	}
	return a, nil
}

// Algorithms returns all supported algorithms sorted by name.
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(hashers))
	for a := range hashers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Size returns the digest length in bytes, or 0 for unknown algorithms.
func (a Algorithm) Size() int { return hashers[a].size }

// Known reports whether a is a supported algorithm.
func (a Algorithm) Known() bool {
	_, ok := hashers[a]
	return ok
}

func (a Algorithm) String() string { return string(a) }

func lookupCode(code, codec uint64) (hasher, bool) {
	for _, h := range hashers {
		if h.code == code && h.codec == codec {
			return h, true
		}
	}
	return hasher{}, false
}
