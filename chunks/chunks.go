/*
Package chunks provides the arithmetic that decides how many bytes each step of a scan asks for.
*/
package chunks

import (
	"github.com/pkg/errors"
)

const (
	KB = 1024
	MB = 1024 * KB

	// DefaultSearchChunkSize favours responsiveness: cancellation is observed once per chunk
	DefaultSearchChunkSize = 1 * MB

	// DefaultDigestChunkSize favours throughput
	DefaultDigestChunkSize = 8 * MB

	// MaxChunkSize bounds what a single read may ask for
	MaxChunkSize = 256 * MB
)

// ErrInvalidChunkSize is returned for a chunk size that is not in (0, MaxChunkSize] after defaults apply
var ErrInvalidChunkSize = errors.New("chunk size must be greater than 0 and at most 256MB")

// ResolveChunkSize applies a default to an unset (zero) chunk size, and rejects negative or oversized ones
func ResolveChunkSize(requested, fallback int) (int, error) {
	switch {
	case requested < 0, requested > MaxChunkSize:
		return 0, errors.Wrapf(ErrInvalidChunkSize, "got %d", requested)
	case requested == 0 && (fallback <= 0 || fallback > MaxChunkSize):
		return 0, errors.Wrapf(ErrInvalidChunkSize, "no usable default (%d)", fallback)
	case requested == 0:
		return fallback, nil
	}
	return requested, nil
}
