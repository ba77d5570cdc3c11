package chunks

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverUsesFullChunksThenRemainder(t *testing.T) {
	r := &FixedSizeResolver{ChunkSize: 4, Size: 10}

	assert.Equal(t,
		[]Range{{0, 4}, {4, 4}, {8, 2}},
		r.Ranges(0),
	)
	assert.Equal(t, int64(3), r.Count(0))
}

func TestResolverStartsAtCursor(t *testing.T) {
	r := &FixedSizeResolver{ChunkSize: 4, Size: 10}

	offset, want := r.Next(7)
	assert.Equal(t, int64(7), offset)
	assert.Equal(t, 3, want)

	assert.Equal(t, []Range{{7, 3}}, r.Ranges(7))
}

func TestResolverAtEnd(t *testing.T) {
	r := &FixedSizeResolver{ChunkSize: 4, Size: 10}

	_, want := r.Next(10)
	assert.Equal(t, 0, want)

	_, want = r.Next(11)
	assert.Equal(t, 0, want)

	assert.Empty(t, r.Ranges(10))
	assert.Equal(t, int64(0), r.Count(12))
}

func TestResolverRangesCoverEveryByteOnce(t *testing.T) {
	const SIZE = 97

	for chunkSize := 1; chunkSize <= SIZE+1; chunkSize++ {
		r := &FixedSizeResolver{ChunkSize: chunkSize, Size: SIZE}
		seen := make([]int, SIZE)

		for _, rng := range r.Ranges(0) {
			for i := rng.Offset; i < rng.End(); i++ {
				seen[i]++
			}
		}

		for i, n := range seen {
			if n != 1 {
				t.Fatalf("chunk size %v: byte %v visited %v times", chunkSize, i, n)
			}
		}
	}
}

func TestResolveChunkSize(t *testing.T) {
	size, err := ResolveChunkSize(0, DefaultSearchChunkSize)
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchChunkSize, size)

	size, err = ResolveChunkSize(17, DefaultSearchChunkSize)
	require.NoError(t, err)
	assert.Equal(t, 17, size)

	_, err = ResolveChunkSize(-1, DefaultSearchChunkSize)
	assert.Equal(t, ErrInvalidChunkSize, errors.Cause(err))

	_, err = ResolveChunkSize(MaxChunkSize+1, DefaultSearchChunkSize)
	assert.Equal(t, ErrInvalidChunkSize, errors.Cause(err))

	_, err = ResolveChunkSize(0, MaxChunkSize+1)
	assert.Equal(t, ErrInvalidChunkSize, errors.Cause(err))

	size, err = ResolveChunkSize(MaxChunkSize, DefaultSearchChunkSize)
	require.NoError(t, err)
	assert.Equal(t, MaxChunkSize, size)
}
