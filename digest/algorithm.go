/*
Package digest computes cryptographic digests of sources too large to hold in memory, one chunk at a time,
and of short in-memory values in a single call.

Each algorithm can have an accelerated implementation (SIMD or assembly), a portable one, or both.
A Registry picks between them, constructs backends on first use and caches them.
*/
package digest

import (
	"strings"

	"github.com/pkg/errors"
)

// Algorithm is the canonical name of a digest algorithm
type Algorithm string

const (
	MD5        Algorithm = "MD5"
	SHA1       Algorithm = "SHA-1"
	SHA256     Algorithm = "SHA-256"
	SHA384     Algorithm = "SHA-384"
	SHA512     Algorithm = "SHA-512"
	BLAKE2b256 Algorithm = "BLAKE2b-256"
	BLAKE2b512 Algorithm = "BLAKE2b-512"
	BLAKE3     Algorithm = "BLAKE3"
)

// ErrUnsupportedAlgorithm is returned for algorithm names that nothing can compute
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

var knownAlgorithms = []Algorithm{
	MD5,
	SHA1,
	SHA256,
	SHA384,
	SHA512,
	BLAKE2b256,
	BLAKE2b512,
	BLAKE3,
}

// KnownAlgorithms lists every algorithm name this package recognises, in a stable order
func KnownAlgorithms() []Algorithm {
	result := make([]Algorithm, len(knownAlgorithms))
	copy(result, knownAlgorithms)
	return result
}

func (a Algorithm) String() string {
	return string(a)
}

// ParseAlgorithm accepts the canonical names and common spellings of them,
// ignoring case, dashes and underscores ("sha256", "SHA_256", "blake2b-256").
func ParseAlgorithm(name string) (Algorithm, error) {
	key := normalize(name)

	for _, a := range knownAlgorithms {
		if normalize(string(a)) == key {
			return a, nil
		}
	}

	return "", errors.Wrapf(ErrUnsupportedAlgorithm, "%q", name)
}

func normalize(name string) string {
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name))
}
