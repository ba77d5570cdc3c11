package search

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/Redundancy/go-scan/blocksources"
	"github.com/Redundancy/go-scan/chunks"
	"github.com/Redundancy/go-scan/circularbuffer"
	"github.com/Redundancy/go-scan/progress"
)

var (
	// ErrEmptyPattern rejects a pattern that would otherwise match everywhere
	ErrEmptyPattern = errors.New("pattern must contain at least one byte")

	// ErrInvalidOffset rejects a start offset before the start or past the end of the source
	ErrInvalidOffset = errors.New("start offset is outside the source")
)

// State of a Session
type State int

const (
	Idle State = iota
	Scanning
	Found
	NotFound
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Found:
		return "found"
	case NotFound:
		return "not-found"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Terminal is true for the states a session finishes in
func (s State) Terminal() bool {
	return s >= Found
}

// Request describes a scan
type Request struct {
	Pattern     []byte
	StartOffset int64
	// 0 uses chunks.DefaultSearchChunkSize
	ChunkSize int
}

// Result is the outcome of a finished scan
type Result struct {
	State State
	// Absolute offset of the match, only meaningful when State is Found
	Offset int64
	// Bytes consumed from the source (not counting carried-over overlap)
	BytesScanned int64
	Elapsed      time.Duration
	// Set when State is Failed; a *blocksources.ReadError for read failures
	Err error
}

// ProgressFunc receives a snapshot after every chunk that did not contain a match
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
Session scans one source for one pattern, stopping at the first match.

Each step reads the next chunk, prepends the carried-over tail of the previous step,
and looks for the pattern in the combination. Memory is bounded by the chunk size plus the pattern length.
Cancel may be called from any goroutine; it is observed before the next chunk is read.
*/
type Session struct {
	source    blocksources.ChunkSource
	pattern   []byte
	matcher   Matcher
	resolver  chunks.FixedSizeResolver
	start     int64
	chunkSize int

	cursor  int64
	window  *circularbuffer.Tail
	scratch []byte
	tracker *progress.Tracker

	state     State
	cancelled atomic.Bool
	log       hclog.Logger
}

// NewSession validates the request against the source, rejecting it before anything is read
func NewSession(source blocksources.ChunkSource, request Request, options ...Option) (*Session, error) {
	if len(request.Pattern) == 0 {
		return nil, ErrEmptyPattern
	}

	size := source.Size()
	if request.StartOffset < 0 || request.StartOffset > size {
		return nil, errors.Wrapf(
			ErrInvalidOffset,
			"offset %v, source size %v",
			request.StartOffset, size,
		)
	}

	chunkSize, err := chunks.ResolveChunkSize(request.ChunkSize, chunks.DefaultSearchChunkSize)
	if err != nil {
		return nil, err
	}

	pattern := make([]byte, len(request.Pattern))
	copy(pattern, request.Pattern)

	s := &Session{
		source:    source,
		pattern:   pattern,
		matcher:   NewMatcher(pattern),
		resolver:  chunks.FixedSizeResolver{ChunkSize: chunkSize, Size: size},
		start:     request.StartOffset,
		chunkSize: chunkSize,
		cursor:    request.StartOffset,
		tracker:   progress.NewTracker(nil),
		log:       hclog.NewNullLogger(),
	}

	for _, o := range options {
		o(s)
	}

	return s, nil
}

// Cancel asks the scan to stop at the next chunk boundary
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// State is the current state. It is only stable once Run has returned.
func (s *Session) State() State {
	return s.state
}

// Cursor is the absolute offset of the next byte the scan will read
func (s *Session) Cursor() int64 {
	return s.cursor
}

// Run performs the scan, reporting progress after each chunk that does not contain a match.
// It returns when the pattern is found, the source is exhausted, a read fails, or the scan is cancelled
// through Cancel or ctx.
func (s *Session) Run(ctx context.Context, report ProgressFunc) Result {
	if s.state != Idle {
		return Result{State: Failed, Err: errors.New("session has already run")}
	}

	s.state = Scanning
	s.tracker.Start()
	size := s.source.Size()

	overlap := len(s.pattern) - 1
	s.window = circularbuffer.NewTail(overlap)
	s.scratch = make([]byte, 0, scratchSize(s.chunkSize, size-s.start)+overlap)

	// release the carried state however the scan ends
	defer func() {
		s.window = nil
		s.scratch = nil
	}()

	s.log.Debug("scan started",
		"pattern_length", len(s.pattern),
		"start", s.start,
		"size", size,
		"chunk_size", s.chunkSize,
	)

	if int64(len(s.pattern)) > size-s.start {
		return s.finish(NotFound, 0, nil)
	}

	for s.cursor < size {
		if s.isCancelled(ctx) {
			return s.finish(Cancelled, 0, nil)
		}

		offset, want := s.resolver.Next(s.cursor)
		data, err := s.source.ReadRange(ctx, offset, want)

		// a cancel that arrived during the read discards its data
		if s.isCancelled(ctx) {
			return s.finish(Cancelled, 0, nil)
		}

		switch {
		case err != nil:
			return s.finish(Failed, 0, &blocksources.ReadError{Offset: offset, Err: err})
		case len(data) != want:
			return s.finish(Failed, 0, &blocksources.ReadError{
				Offset: offset,
				Err: errors.Wrapf(
					blocksources.ErrShortRead,
					"wanted %v bytes, got %v",
					want, len(data),
				),
			})
		}

		carried := s.window.Bytes()
		s.scratch = append(s.scratch[:0], carried...)
		s.scratch = append(s.scratch, data...)

		if m, found := s.matcher.Find(s.scratch); found {
			return s.finish(Found, s.cursor-int64(len(carried))+int64(m), nil)
		}

		s.window.Write(data)
		s.cursor += int64(want)

		snapshot := s.tracker.Observe(s.cursor, s.cursor-s.start, size)
		s.log.Trace("chunk scanned", "cursor", s.cursor, "fraction", snapshot.Fraction)

		if report != nil {
			report(snapshot)
		}
	}

	return s.finish(NotFound, 0, nil)
}

// scratchSize is the most data one step can read: a chunk, or less if the source is shorter
func scratchSize(chunkSize int, remaining int64) int {
	if remaining < int64(chunkSize) {
		return int(remaining)
	}
	return chunkSize
}

func (s *Session) isCancelled(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

func (s *Session) finish(state State, offset int64, err error) Result {
	s.state = state

	result := Result{
		State:        state,
		Offset:       offset,
		BytesScanned: s.cursor - s.start,
		Elapsed:      s.tracker.Elapsed(),
		Err:          err,
	}

	if err != nil {
		s.log.Warn("scan failed", "cursor", s.cursor, "error", err)
	} else {
		s.log.Debug("scan finished", "state", state, "offset", offset, "scanned", result.BytesScanned)
	}

	return result
}
