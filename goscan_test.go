package goscan

import (
	"bytes"
	"context"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Redundancy/go-scan/controller"
	"github.com/Redundancy/go-scan/digest"
	"github.com/Redundancy/go-scan/util/readers"
)

var PATTERN = []byte("goscan")

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSearchFile(t *testing.T) {
	data := readers.Inject(readers.Scrub(readers.NonRepeatingBytes(4, 100000), PATTERN), 65530, PATTERN)
	path := writeTemp(t, data)

	var progress []*controller.ProgressPayload
	result, err := Search(context.Background(), path, PATTERN, 0, Options{
		ChunkSize:  8192,
		OnProgress: func(p *controller.ProgressPayload) { progress = append(progress, p) },
	})

	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.EqualValues(t, 65530, result.Offset)
	assert.NotEmpty(t, result.Session)
	assert.Len(t, progress, 65530/8192)

	result, err = Search(context.Background(), path, PATTERN, 65531, Options{ChunkSize: 8192})
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.EqualValues(t, -1, result.Offset)
}

func TestSearchMissingFile(t *testing.T) {
	_, err := Search(context.Background(), filepath.Join(t.TempDir(), "nope"), PATTERN, 0, Options{})
	assert.Error(t, err)
}

func TestSearchAndHashOverHTTP(t *testing.T) {
	data := readers.Inject(readers.Scrub(readers.NonRepeatingBytes(8, 50000), PATTERN), 49990, PATTERN)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "source.bin", time.Time{}, bytes.NewReader(data))
	}))
	defer server.Close()

	result, err := Search(context.Background(), server.URL, PATTERN, 0, Options{ChunkSize: 4096, ReadAhead: 2})
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.EqualValues(t, 49990, result.Offset)

	completed, err := Hash(context.Background(), server.URL, digest.SHA256, true, Options{ChunkSize: 4096})
	require.NoError(t, err)

	expected := sha256.Sum256(data)
	assert.Equal(t, digest.FormatHex(expected[:]), completed.DigestHex)
	assert.EqualValues(t, len(data), completed.TotalBytes)
}

func TestHashSharedRegistry(t *testing.T) {
	path := writeTemp(t, []byte("abc"))

	registry := digest.NewRegistry(nil)
	defer registry.Close()

	for _, prefer := range []bool{true, false} {
		completed, err := Hash(context.Background(), path, digest.MD5, prefer, Options{Registry: registry})
		require.NoError(t, err)
		assert.Equal(t, "900150983CD24FB0D6963F7D28E17F72", completed.DigestHex)
		assert.Equal(t, "accelerated", completed.Backend)
	}

	assert.Equal(t, 1, registry.Cached())
}

func TestHashReadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "1000")
			return
		}
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := Hash(context.Background(), server.URL, digest.SHA1, true, Options{ChunkSize: 100})
	require.Error(t, err)

	var sessionErr *SessionError
	require.ErrorAs(t, err, &sessionErr)
	assert.Equal(t, controller.CodeRead, sessionErr.Code)
	require.NotNil(t, sessionErr.Offset)
	assert.Zero(t, *sessionErr.Offset)
}
