package blocksources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrRangedRequestNotSupported = errors.New("ranged request not supported (server did not respond with 206 status)")
	ErrURLNotFound               = errors.New("404 error on URL")
	ErrUnknownSize               = errors.New("could not determine the size of the remote content")
)

// NewHTTPSource creates a ChunkSource over a URL served by a server that supports ranged requests.
// The size of the content is probed once, here, so that scans know how far to go.
func NewHTTPSource(ctx context.Context, url string, client *http.Client) (*HTTPSource, error) {
	if client == nil {
		client = http.DefaultClient
	}

	s := &HTTPSource{
		client: client,
		url:    url,
	}

	size, err := s.probeSize(ctx)
	if err != nil {
		return nil, err
	}

	s.size = size
	return s, nil
}

// HTTPSource issues a ranged GET for each chunk.
// This simplifies remote scanning down to one request per step of the scan.
type HTTPSource struct {
	client *http.Client
	url    string
	size   int64
}

func (s *HTTPSource) Size() int64 {
	return s.size
}

// URL of the remote content
func (s *HTTPSource) URL() string {
	return s.url
}

func (s *HTTPSource) ReadRange(ctx context.Context, offset int64, maxLength int) ([]byte, error) {
	readLength, err := clampRange(s.size, offset, maxLength)
	if err != nil {
		return nil, err
	}

	if readLength == 0 {
		return []byte{}, nil
	}

	rangedRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}

	rangeSpecifier := fmt.Sprintf("bytes=%v-%v", offset, offset+int64(readLength)-1)
	rangedRequest.Header.Add("Range", rangeSpecifier)

	rangedResponse, err := s.client.Do(rangedRequest)
	if err != nil {
		return nil, err
	}

	defer rangedResponse.Body.Close()

	switch rangedResponse.StatusCode {
	case http.StatusNotFound:
		return nil, ErrURLNotFound
	case http.StatusPartialContent:
		return io.ReadAll(io.LimitReader(rangedResponse.Body, int64(readLength)))
	default:
		return nil, errors.Wrapf(
			ErrRangedRequestNotSupported,
			"%v returned %v",
			s.url,
			rangedResponse.Status,
		)
	}
}

// probeSize asks for the headers first, and falls back on a one byte ranged request
// for servers that do not report a Content-Length on HEAD
func (s *HTTPSource) probeSize(ctx context.Context) (int64, error) {
	head, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url, nil)
	if err != nil {
		return 0, err
	}

	response, err := s.client.Do(head)
	if err != nil {
		return 0, err
	}
	response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return 0, ErrURLNotFound
	case response.StatusCode == http.StatusOK:
		if size, err := strconv.ParseInt(response.Header.Get("Content-Length"), 10, 64); err == nil {
			return size, nil
		}
	}

	probe, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}
	probe.Header.Add("Range", "bytes=0-0")

	response, err = s.client.Do(probe)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusNotFound:
		return 0, ErrURLNotFound
	case http.StatusPartialContent:
		return parseContentRangeSize(response.Header.Get("Content-Range"))
	case http.StatusRequestedRangeNotSatisfiable:
		// an empty resource cannot satisfy any range
		if size, err := parseContentRangeSize(response.Header.Get("Content-Range")); err == nil {
			return size, nil
		}
		return 0, nil
	default:
		return 0, errors.Wrapf(ErrRangedRequestNotSupported, "%v returned %v", s.url, response.Status)
	}
}

// parseContentRangeSize extracts the complete length from "bytes 0-0/1234" or "bytes */1234"
func parseContentRangeSize(header string) (int64, error) {
	slash := strings.LastIndex(header, "/")
	if slash == -1 {
		return 0, errors.Wrapf(ErrUnknownSize, "Content-Range %q", header)
	}

	size, err := strconv.ParseInt(header[slash+1:], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrUnknownSize, "Content-Range %q", header)
	}

	return size, nil
}
