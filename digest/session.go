package digest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/Redundancy/go-scan/blocksources"
	"github.com/Redundancy/go-scan/chunks"
	"github.com/Redundancy/go-scan/progress"
)

// State of a Session
type State int

const (
	Idle State = iota
	Initializing
	Hashing
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Hashing:
		return "hashing"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Terminal is true for the states a session finishes in
func (s State) Terminal() bool {
	return s >= Completed
}

// Request describes a streaming digest
type Request struct {
	Algorithm         Algorithm
	PreferAccelerated bool
	// 0 uses chunks.DefaultDigestChunkSize
	ChunkSize int
}

// Result of a finished Session
type Result struct {
	State     State
	Algorithm Algorithm
	// Only set when State is Completed
	Sum     []byte
	Class   Class
	Backend string

	TotalBytes int64
	Elapsed    time.Duration
	Err        error
}

// Hex is the digest in upper case hexadecimal, or empty if there is none
func (r Result) Hex() string {
	if r.Sum == nil {
		return ""
	}
	return FormatHex(r.Sum)
}

// ProgressFunc receives a snapshot after each chunk is added to the digest
type ProgressFunc func(progress.Snapshot)

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger a session reports to
func WithLogger(l hclog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now for elapsed time and throughput
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.tracker = progress.NewTracker(now)
	}
}

/*
Session digests a whole source, reading it in order from the start a chunk at a time.

The backend is resolved when the session runs. A backend that fails to construct or to hash ends the
session in Failed; there is no fallback mid-stream. The accumulator is closed however the session ends.
*/
type Session struct {
	source    blocksources.ChunkSource
	registry  *Registry
	request   Request
	resolver  chunks.FixedSizeResolver
	cursor    int64
	tracker   *progress.Tracker
	state     State
	cancelled atomic.Bool
	log       hclog.Logger
}

// NewSession validates the request, rejecting unknown algorithms and bad chunk sizes before anything is read
func NewSession(source blocksources.ChunkSource, registry *Registry, request Request, options ...Option) (*Session, error) {
	if !registry.Supports(request.Algorithm) {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "%q", request.Algorithm)
	}

	chunkSize, err := chunks.ResolveChunkSize(request.ChunkSize, chunks.DefaultDigestChunkSize)
	if err != nil {
		return nil, err
	}
	request.ChunkSize = chunkSize

	s := &Session{
		source:   source,
		registry: registry,
		request:  request,
		resolver: chunks.FixedSizeResolver{ChunkSize: chunkSize, Size: source.Size()},
		tracker:  progress.NewTracker(nil),
		log:      hclog.NewNullLogger(),
	}

	for _, o := range options {
		o(s)
	}

	return s, nil
}

// Cancel asks the session to stop before it reads the next chunk
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// State is the current state. It is only stable once Run has returned.
func (s *Session) State() State {
	return s.state
}

// Run digests the source, reporting progress after every chunk
func (s *Session) Run(ctx context.Context, report ProgressFunc) Result {
	if s.state != Idle {
		return Result{State: Failed, Algorithm: s.request.Algorithm, Err: errors.New("session has already run")}
	}

	s.tracker.Start()
	s.state = Initializing

	handle, err := s.registry.Resolve(s.request.Algorithm, s.request.PreferAccelerated)
	if err != nil {
		return s.finish(Failed, nil, nil, err)
	}

	acc, err := handle.NewAccumulator()
	if err != nil {
		return s.finish(Failed, handle, nil, err)
	}
	defer acc.Close()

	s.state = Hashing
	size := s.source.Size()

	s.log.Debug("digest started",
		"algorithm", s.request.Algorithm,
		"class", handle.Class,
		"backend", handle.Name,
		"size", size,
		"chunk_size", s.request.ChunkSize,
	)

	for s.cursor < size {
		if s.isCancelled(ctx) {
			return s.finish(Cancelled, handle, nil, nil)
		}

		offset, want := s.resolver.Next(s.cursor)
		data, err := s.source.ReadRange(ctx, offset, want)

		if s.isCancelled(ctx) {
			return s.finish(Cancelled, handle, nil, nil)
		}

		switch {
		case err != nil:
			return s.finish(Failed, handle, nil, &blocksources.ReadError{Offset: offset, Err: err})
		case len(data) != want:
			return s.finish(Failed, handle, nil, &blocksources.ReadError{
				Offset: offset,
				Err: errors.Wrapf(
					blocksources.ErrShortRead,
					"wanted %v bytes, got %v",
					want, len(data),
				),
			})
		}

		if _, err := acc.Write(data); err != nil {
			return s.finish(Failed, handle, nil, errors.Wrapf(err, "%v backend %v", handle.Class, handle.Name))
		}

		s.cursor += int64(want)

		snapshot := s.tracker.Observe(s.cursor, s.cursor, size)
		s.log.Trace("chunk hashed", "cursor", s.cursor, "fraction", snapshot.Fraction)

		if report != nil {
			report(snapshot)
		}
	}

	return s.finish(Completed, handle, acc.Sum(), nil)
}

func (s *Session) isCancelled(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

func (s *Session) finish(state State, handle *BackendHandle, sum []byte, err error) Result {
	s.state = state

	result := Result{
		State:      state,
		Algorithm:  s.request.Algorithm,
		Sum:        sum,
		TotalBytes: s.cursor,
		Elapsed:    s.tracker.Elapsed(),
		Err:        err,
	}

	if handle != nil {
		result.Class = handle.Class
		result.Backend = handle.Name
	}

	if err != nil {
		s.log.Warn("digest failed", "algorithm", s.request.Algorithm, "cursor", s.cursor, "error", err)
	} else {
		s.log.Debug("digest finished", "state", state, "bytes", s.cursor, "digest", result.Hex())
	}

	return result
}
