package blocksources

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// NewReaderAtSource creates a ChunkSource that reads ranges from r, which is size bytes long
func NewReaderAtSource(r io.ReaderAt, size int64) *ReaderAtSource {
	return &ReaderAtSource{
		r:    r,
		size: size,
	}
}

// ReaderAtSource provides ranges from an io.ReaderAt.
// io.ReaderAt permits parallel calls, so this is safe to share with a ReadAhead.
type ReaderAtSource struct {
	r    io.ReaderAt
	size int64
}

func (s *ReaderAtSource) Size() int64 {
	return s.size
}

func (s *ReaderAtSource) ReadRange(ctx context.Context, offset int64, maxLength int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readLength, err := clampRange(s.size, offset, maxLength)
	if err != nil {
		return nil, err
	}

	buffer := make([]byte, readLength)
	n, err := io.ReadFull(io.NewSectionReader(s.r, offset, int64(readLength)), buffer)

	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}

	return buffer[:n], nil
}

// FileSource is a ReaderAtSource over an open file, which must be closed when no longer used
type FileSource struct {
	ReaderAtSource
	file *os.File
}

// OpenFile opens the file at path as a ChunkSource.
// The size is fixed when the file is opened.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "could not stat %v", path)
	}

	if info.IsDir() {
		f.Close()
		return nil, errors.Errorf("%v is a directory", path)
	}

	return &FileSource{
		ReaderAtSource: ReaderAtSource{r: f, size: info.Size()},
		file:           f,
	}, nil
}

// Name is the path the file was opened with
func (s *FileSource) Name() string {
	return s.file.Name()
}

func (s *FileSource) Close() error {
	return s.file.Close()
}
