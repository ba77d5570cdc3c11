package digest

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// ErrDigestMismatch is returned by Verify when the digests differ
var ErrDigestMismatch = errors.New("digest does not match")

// ParseDigest decodes a digest written as hexadecimal (any case) or, failing that, base58
func ParseDigest(s string) ([]byte, error) {
	s = strings.TrimSpace(s)

	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}

	b, err := base58.Decode(s)
	if err != nil || len(b) == 0 {
		return nil, errors.Errorf("%q is neither hex nor base58", s)
	}

	return b, nil
}

// Verify compares a computed digest against an expected one written as hex or base58
func Verify(expected string, actual []byte) error {
	want, err := ParseDigest(expected)
	if err != nil {
		return errors.Wrap(err, "expected digest")
	}

	if !bytes.Equal(want, actual) {
		return errors.Wrapf(ErrDigestMismatch, "expected %v, got %v", FormatHex(want), FormatHex(actual))
	}

	return nil
}
