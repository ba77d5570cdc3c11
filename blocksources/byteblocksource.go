package blocksources

import (
	"context"
)

// NewByteSource creates a ChunkSource over data.
// It is provided largely for convenience in testing and for small inline inputs.
func NewByteSource(data []byte) *ByteSource {
	return &ByteSource{data: data}
}

// ByteSource serves ranges from an in-memory slice.
// Each range is copied, so callers may keep or modify what they are given.
type ByteSource struct {
	data []byte
}

func (s *ByteSource) Size() int64 {
	return int64(len(s.data))
}

func (s *ByteSource) ReadRange(ctx context.Context, offset int64, maxLength int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := clampRange(s.Size(), offset, maxLength)
	if err != nil {
		return nil, err
	}

	result := make([]byte, n)
	copy(result, s.data[offset:offset+int64(n)])
	return result, nil
}
