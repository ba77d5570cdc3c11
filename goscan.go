/*
goscan finds byte patterns in, and computes digests of, sources that are too large to load into memory:
local files, or anything an HTTP server will serve with range requests.

Everything is done a chunk at a time. A pattern scan carries the last few bytes of each chunk over to the next, so a
match that straddles two chunks is still found, exactly once. A digest feeds each chunk to an accumulator, using an
accelerated implementation where the platform has one and a portable one otherwise.

The pieces are usable on their own (blocksources, search, digest), but most programs will want a controller.Controller,
which owns the single active session, turns its progress into events, and handles requests arriving from a transport.
Search and Hash in this package drive a controller for one session and wait for the result.
*/
package goscan

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/Redundancy/go-scan/controller"
	"github.com/Redundancy/go-scan/digest"
)

// Options for Search and Hash. The zero value is usable.
type Options struct {
	Logger hclog.Logger

	// Shared registry of digest backends; one is created for the call if nil
	Registry *digest.Registry

	// 0 uses the package defaults
	ChunkSize int

	// Number of chunks to fetch ahead of the scan, 0 for none
	ReadAhead int

	// Used for http(s) sources, http.DefaultClient if nil
	HTTPClient *http.Client

	// Called with each progress event, on the session's goroutine
	OnProgress func(*controller.ProgressPayload)
}

// SearchResult is the outcome of Search
type SearchResult struct {
	Session string
	Found   bool
	// Absolute offset of the first match, -1 if there is none
	Offset    int64
	ElapsedMs int64
}

// SessionError is the error reported by a session that failed
type SessionError struct {
	controller.ErrorPayload
}

func (e *SessionError) Error() string {
	return e.Message
}

// Search returns the first occurrence of pattern in the file or URL at or after startOffset
func Search(ctx context.Context, source string, pattern []byte, startOffset int64, options Options) (SearchResult, error) {
	terminal, err := run(ctx, options, controller.Request{
		Type:         controller.StartPatternScan,
		Source:       source,
		PatternBytes: pattern,
		StartOffset:  startOffset,
		ChunkSize:    options.ChunkSize,
	})

	if err != nil {
		return SearchResult{Offset: -1}, err
	}

	result := SearchResult{Session: terminal.Session, Offset: -1}

	if terminal.Type == controller.FoundEvent {
		result.Found = true
		result.Offset = terminal.Found.AbsoluteOffset
		result.ElapsedMs = terminal.Found.ElapsedMs
	}

	return result, nil
}

// Hash computes the digest of the whole of the file or URL
func Hash(ctx context.Context, source string, algorithm digest.Algorithm, preferAccelerated bool, options Options) (*controller.CompletedPayload, error) {
	terminal, err := run(ctx, options, controller.Request{
		Type:              controller.StartDigest,
		Source:            source,
		Algorithm:         algorithm.String(),
		ChunkSize:         options.ChunkSize,
		PreferAccelerated: &preferAccelerated,
	})

	if err != nil {
		return nil, err
	}

	return terminal.Completed, nil
}

// run starts a session with request and waits for its terminal event.
// If ctx is cancelled first, the session is cancelled and ctx.Err() returned once it has stopped.
func run(ctx context.Context, options Options, request controller.Request) (controller.Event, error) {
	terminal := make(chan controller.Event, 1)

	sink := controller.SinkFunc(func(e controller.Event) {
		switch {
		case e.Type == controller.ProgressEvent:
			if options.OnProgress != nil {
				options.OnProgress(e.Progress)
			}
		case e.Type.Terminal():
			select {
			case terminal <- e:
			default:
			}
		}
	})

	c := controller.New(options.Registry, sink,
		controller.WithLogger(options.Logger),
		controller.WithOpener(controller.HTTPOpener(options.HTTPClient)),
		controller.WithReadAhead(options.ReadAhead),
	)
	defer c.Close()

	if err := c.Handle(ctx, request); err != nil {
		return controller.Event{}, err
	}

	select {
	case e := <-terminal:
		return result(e)
	case <-ctx.Done():
		c.Cancel()
		<-terminal
		return controller.Event{}, ctx.Err()
	}
}

func result(e controller.Event) (controller.Event, error) {
	switch e.Type {
	case controller.ErrorEvent:
		return e, &SessionError{*e.Error}
	case controller.CancelledEvent:
		return e, errors.New("session was cancelled")
	}
	return e, nil
}
