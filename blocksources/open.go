package blocksources

import (
	"context"
	"io"
	"net/http"
	"strings"
)

// Open returns a ChunkSource for a local path or an http/https URL, and the closer that releases it
func Open(ctx context.Context, pathOrURL string, client *http.Client) (ChunkSource, io.Closer, error) {
	if isRemote(pathOrURL) {
		source, err := NewHTTPSource(ctx, pathOrURL, client)
		if err != nil {
			return nil, nil, err
		}
		return source, nopCloser, nil
	}

	source, err := OpenFile(pathOrURL)
	if err != nil {
		return nil, nil, err
	}

	return source, source, nil
}

func isRemote(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
