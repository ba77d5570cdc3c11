package digest

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	blake2bsimd "github.com/minio/blake2b-simd"
	md5simd "github.com/minio/md5-simd"
	sha256simd "github.com/minio/sha256-simd"
	zeeboblake3 "github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"
)

// Builtin returns the implementations this package ships with.
// MD5 only has an accelerated implementation; SHA-1, SHA-384 and SHA-512 only portable ones.
func Builtin() []Implementation {
	return []Implementation{
		{MD5, Accelerated, "md5-simd", newMD5SIMD},

		{SHA1, Portable, "crypto/sha1", simple(sha1.New)},

		{SHA256, Accelerated, "sha256-simd", simple(sha256simd.New)},
		{SHA256, Portable, "crypto/sha256", simple(sha256.New)},

		{SHA384, Portable, "crypto/sha512", simple(sha512.New384)},
		{SHA512, Portable, "crypto/sha512", simple(sha512.New)},

		{BLAKE2b256, Accelerated, "blake2b-simd", simple(blake2bsimd.New256)},
		{BLAKE2b256, Portable, "x/crypto/blake2b", keyed(blake2b.New256)},

		{BLAKE2b512, Accelerated, "blake2b-simd", simple(blake2bsimd.New512)},
		{BLAKE2b512, Portable, "x/crypto/blake2b", keyed(blake2b.New512)},

		{BLAKE3, Accelerated, "zeebo/blake3", func() (Backend, error) {
			return newHashBackend(func() (hash.Hash, error) {
				return zeeboblake3.New(), nil
			}), nil
		}},
		{BLAKE3, Portable, "lukechampine/blake3", func() (Backend, error) {
			return newHashBackend(func() (hash.Hash, error) {
				return blake3.New(32, nil), nil
			}), nil
		}},
	}
}

func simple(newHash func() hash.Hash) Factory {
	return func() (Backend, error) {
		return newHashBackend(func() (hash.Hash, error) {
			return newHash(), nil
		}), nil
	}
}

func keyed(newHash func(key []byte) (hash.Hash, error)) Factory {
	return func() (Backend, error) {
		return newHashBackend(func() (hash.Hash, error) {
			return newHash(nil)
		}), nil
	}
}

// The md5-simd server runs the hashing lanes, so it is the state worth caching
func newMD5SIMD() (Backend, error) {
	server := md5simd.NewServer()

	b := newHashBackend(func() (hash.Hash, error) {
		return server.NewHash(), nil
	})
	b.release = server.Close

	return b, nil
}
