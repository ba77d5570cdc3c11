package controller

import (
	"context"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/Redundancy/go-scan/blocksources"
	"github.com/Redundancy/go-scan/telemetry"
)

// Opener resolves the source named in a start request. The closer is called when the session ends.
type Opener func(ctx context.Context, source string) (blocksources.ChunkSource, io.Closer, error)

// HTTPOpener opens local paths and http(s) URLs, using client for the latter
func HTTPOpener(client *http.Client) Opener {
	return func(ctx context.Context, source string) (blocksources.ChunkSource, io.Closer, error) {
		return blocksources.Open(ctx, source, client)
	}
}

// Option configures a Controller
type Option func(*Controller)

func WithLogger(l hclog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithOpener replaces the Opener used by Handle
func WithOpener(o Opener) Option {
	return func(c *Controller) {
		c.opener = o
	}
}

// WithPreferAccelerated sets the backend preference used when a request does not state one
func WithPreferAccelerated(prefer bool) Option {
	return func(c *Controller) {
		c.preferAccelerated = prefer
	}
}

// WithChunkSizes sets the chunk sizes used when a request does not state one. Zero keeps the package defaults.
func WithChunkSizes(search, digest int) Option {
	return func(c *Controller) {
		c.searchChunkSize = search
		c.digestChunkSize = digest
	}
}

// WithReadAhead wraps sources opened by Handle so that the next depth chunks are fetched in the background
func WithReadAhead(depth int) Option {
	return func(c *Controller) {
		c.readAhead = depth
	}
}

func WithInstruments(i *telemetry.Instruments) Option {
	return func(c *Controller) {
		c.instruments = i
	}
}
