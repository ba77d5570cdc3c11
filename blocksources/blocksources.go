/*
Package blocksources provides ChunkSource, the collaborator a scan pulls its chunks from, along with
implementations backed by an io.ReaderAt, a local file, an in-memory byte slice and an HTTP server
that supports ranged requests.

A ChunkSource knows nothing about what is done with the data; sessions ask for one range at a time and
decide what to do if a range cannot be read. Any retry policy belongs to the source, not the scan.
*/
package blocksources

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

const MB = 1024 * 1024

var (
	// ErrUnavailable is returned when a requested range lies outside the source
	ErrUnavailable = errors.New("requested range is not available from the source")

	// ErrShortRead is used when a source returned fewer bytes than were requested
	ErrShortRead = errors.New("source returned fewer bytes than requested")
)

// ChunkSource supplies byte ranges of a backing source of known size.
// Implementations must support ReadRange being called from multiple goroutines.
type ChunkSource interface {
	// Size of the source in bytes
	Size() int64

	// ReadRange returns up to maxLength bytes starting at offset.
	// The returned slice is owned by the caller.
	ReadRange(ctx context.Context, offset int64, maxLength int) ([]byte, error)
}

// ReadError records the offset at which reading from a source failed
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read failed at offset %v: %v", e.Offset, e.Err)
}

// Cause allows errors.Cause to see the underlying failure
func (e *ReadError) Cause() error {
	return e.Err
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// clampRange validates a request against a source of the given size, returning the number of bytes that can be read
func clampRange(size, offset int64, maxLength int) (int, error) {
	if offset < 0 || offset > size || maxLength < 0 {
		return 0, errors.Wrapf(
			ErrUnavailable,
			"range %v+%v of source with size %v",
			offset, maxLength, size,
		)
	}

	available := size - offset
	if int64(maxLength) > available {
		return int(available), nil
	}

	return maxLength, nil
}
