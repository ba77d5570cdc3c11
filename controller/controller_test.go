package controller

import (
	"context"
	"crypto/sha256"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Redundancy/go-scan/blocksources"
	"github.com/Redundancy/go-scan/chunks"
	"github.com/Redundancy/go-scan/digest"
	"github.com/Redundancy/go-scan/search"
	"github.com/Redundancy/go-scan/util/readers"
)

const WAIT = 5 * time.Second

var DEADBEEF = []byte{0xDE, 0xAD, 0xBE, 0xEF}

// recorder is an EventSink that keeps every event and signals terminal ones
type recorder struct {
	mu       sync.Mutex
	events   []Event
	terminal chan Event
	// called for each event, inside Emit
	onEmit func(Event)
}

func newRecorder() *recorder {
	return &recorder{terminal: make(chan Event, 16)}
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	if r.onEmit != nil {
		r.onEmit(e)
	}

	if e.Type.Terminal() {
		r.terminal <- e
	}
}

func (r *recorder) forSession(id string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Event
	for _, e := range r.events {
		if e.Session == id {
			result = append(result, e)
		}
	}
	return result
}

func (r *recorder) waitTerminal(t *testing.T) Event {
	t.Helper()

	select {
	case e := <-r.terminal:
		return e
	case <-time.After(WAIT):
		require.FailNow(t, "timed out waiting for a terminal event")
	}
	return Event{}
}

// gatedSource blocks every read until it is opened, or the read's context is cancelled
type gatedSource struct {
	blocksources.ChunkSource
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedSource(data []byte) *gatedSource {
	return &gatedSource{
		ChunkSource: blocksources.NewByteSource(data),
		entered:     make(chan struct{}, 1),
		gate:        make(chan struct{}),
	}
}

func (g *gatedSource) ReadRange(ctx context.Context, offset int64, maxLength int) ([]byte, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}

	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return g.ChunkSource.ReadRange(ctx, offset, maxLength)
}

func (g *gatedSource) open() {
	g.once.Do(func() { close(g.gate) })
}

func (g *gatedSource) waitForRead(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(WAIT):
		require.FailNow(t, "timed out waiting for a read")
	}
}

func TestFoundAcrossChunkBoundary(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)
	defer c.Close()

	data := readers.Inject(readers.Uniform(0, 2*chunks.MB), 1048575, DEADBEEF)

	id, err := c.StartPatternScan(context.Background(), blocksources.NewByteSource(data), search.Request{
		Pattern:   DEADBEEF,
		ChunkSize: chunks.MB,
	})
	require.NoError(t, err)

	terminal := rec.waitTerminal(t)
	require.Equal(t, FoundEvent, terminal.Type)
	assert.Equal(t, id, terminal.Session)
	assert.Equal(t, SearchKind, terminal.Kind)
	assert.EqualValues(t, 1048575, terminal.Found.AbsoluteOffset)

	events := rec.forSession(id)
	require.Len(t, events, 2)
	assert.Equal(t, ProgressEvent, events[0].Type)
	assert.EqualValues(t, chunks.MB, events[0].Progress.CursorOffset)
	assert.Equal(t, 0.5, events[0].Progress.FractionComplete)
}

func TestEventsCarryCallerTrace(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)
	defer c.Close()

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	}))

	id, err := c.StartPatternScan(ctx, blocksources.NewByteSource(readers.Uniform(0, 100)), search.Request{
		Pattern:   DEADBEEF,
		ChunkSize: 25,
	})
	require.NoError(t, err)
	require.Equal(t, NotFoundEvent, rec.waitTerminal(t).Type)

	events := rec.forSession(id)
	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, traceID, trace.SpanContextFromContext(e.Context()).TraceID(), "%v event", e.Type)
	}

	// events outside a session carry the request's trace
	require.Error(t, c.Handle(ctx, Request{Type: "bogus"}))
	rejected := rec.waitTerminal(t)
	assert.Equal(t, traceID, trace.SpanContextFromContext(rejected.Context()).TraceID())

	assert.False(t, trace.SpanContextFromContext(Event{}.Context()).IsValid())
}

func TestProgressOrderedAndTerminalLast(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec, WithChunkSizes(100, 100))
	defer c.Close()

	id, err := c.StartDigest(context.Background(), blocksources.NewByteSource(readers.NonRepeatingBytes(1, 1050)), digest.Request{
		Algorithm: digest.SHA256,
	})
	require.NoError(t, err)

	terminal := rec.waitTerminal(t)
	require.Equal(t, CompletedEvent, terminal.Type)
	assert.EqualValues(t, 1050, terminal.Completed.TotalBytes)

	events := rec.forSession(id)
	require.Len(t, events, 12)

	var cursor int64
	for i, e := range events[:11] {
		require.Equal(t, ProgressEvent, e.Type)
		assert.Greater(t, e.Progress.CursorOffset, cursor)
		assert.EqualValues(t, i+1, e.Progress.ProcessedChunk)
		assert.EqualValues(t, 1050, e.Progress.Total)
		cursor = e.Progress.CursorOffset
	}

	assert.Equal(t, CompletedEvent, events[11].Type)
}

func TestBusyRejection(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)
	defer c.Close()

	source := newGatedSource(readers.Uniform(0, 1000))
	first, err := c.StartPatternScan(context.Background(), source, search.Request{Pattern: DEADBEEF, ChunkSize: 10})
	require.NoError(t, err)
	source.waitForRead(t)

	active, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, first, active.ID)

	_, err = c.StartPatternScan(context.Background(), blocksources.NewByteSource([]byte("xx")), search.Request{Pattern: []byte("x")})
	assert.Equal(t, ErrBusy, errors.Cause(err))

	_, err = c.StartDigest(context.Background(), blocksources.NewByteSource([]byte("xx")), digest.Request{Algorithm: digest.MD5})
	assert.Equal(t, ErrBusy, errors.Cause(err))

	// the active session is untouched by the rejected requests
	active, ok = c.Active()
	require.True(t, ok)
	assert.Equal(t, first, active.ID)

	require.True(t, c.Cancel())
	source.open()

	terminal := rec.waitTerminal(t)
	assert.Equal(t, CancelledEvent, terminal.Type)
	assert.Equal(t, first, terminal.Session)

	_, ok = c.Active()
	assert.False(t, ok)

	_, err = c.StartPatternScan(context.Background(), blocksources.NewByteSource([]byte("abc")), search.Request{Pattern: []byte("c")})
	require.NoError(t, err)
	assert.Equal(t, FoundEvent, rec.waitTerminal(t).Type)
}

func TestCancelNeverReportsAResult(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)
	defer c.Close()

	// the pattern is in the chunk being read when the cancel arrives
	source := newGatedSource(readers.Inject(readers.Uniform(0, 100), 5, DEADBEEF))
	id, err := c.StartPatternScan(context.Background(), source, search.Request{Pattern: DEADBEEF, ChunkSize: 50})
	require.NoError(t, err)
	source.waitForRead(t)

	c.Cancel()
	source.open()

	terminal := rec.waitTerminal(t)
	assert.Equal(t, CancelledEvent, terminal.Type)

	for _, e := range rec.forSession(id) {
		assert.NotEqual(t, FoundEvent, e.Type)
		assert.NotEqual(t, NotFoundEvent, e.Type)
	}
}

// countingBackend hands out crypto/sha256 accumulators and counts how many have been closed
type countingBackend struct {
	closed atomic.Int32
}

func (b *countingBackend) NewAccumulator() (digest.Accumulator, error) {
	return &countedAccumulator{sumAccumulator: sumAccumulator{Hash: sha256.New()}, closed: &b.closed}, nil
}

func (b *countingBackend) Close() error { return nil }

type countedAccumulator struct {
	sumAccumulator
	closed *atomic.Int32
}

func (a *countedAccumulator) Close() error {
	a.closed.Add(1)
	return nil
}

func TestCancelDigestMidStream(t *testing.T) {
	backend := &countingBackend{}
	registry := digest.NewRegistry(nil, digest.Implementation{
		Algorithm: digest.SHA256,
		Class:     digest.Portable,
		Name:      "counting",
		Factory:   func() (digest.Backend, error) { return backend, nil },
	})

	rec := newRecorder()
	c := New(registry, rec)
	defer c.Close()

	// cancel once the first chunk has been hashed
	var cancelled sync.Once
	rec.onEmit = func(e Event) {
		if e.Type == ProgressEvent {
			cancelled.Do(func() { c.Cancel() })
		}
	}

	id, err := c.StartDigest(context.Background(), blocksources.NewByteSource(readers.Uniform(1, 100)), digest.Request{
		Algorithm: digest.SHA256,
		ChunkSize: 10,
	})
	require.NoError(t, err)

	terminal := rec.waitTerminal(t)
	assert.Equal(t, CancelledEvent, terminal.Type)
	assert.Equal(t, id, terminal.Session)

	events := rec.forSession(id)
	require.Len(t, events, 2)
	assert.Equal(t, ProgressEvent, events[0].Type)
	assert.EqualValues(t, 10, events[0].Progress.CursorOffset)
	for _, e := range events {
		assert.NotEqual(t, CompletedEvent, e.Type)
	}

	assert.EqualValues(t, 1, backend.closed.Load())

	_, busy := c.Active()
	assert.False(t, busy)

	second, err := c.StartDigest(context.Background(), blocksources.NewByteSource([]byte("abc")), digest.Request{
		Algorithm: digest.SHA256,
	})
	require.NoError(t, err)

	terminal = rec.waitTerminal(t)
	require.Equal(t, CompletedEvent, terminal.Type)
	assert.Equal(t, second, terminal.Session)
	assert.Equal(t, "BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD", terminal.Completed.DigestHex)
	assert.EqualValues(t, 2, backend.closed.Load())
}

func TestCancelWithoutSession(t *testing.T) {
	c := New(nil, nil)
	defer c.Close()

	assert.False(t, c.Cancel())
	assert.False(t, c.Reset())
}

func TestResetDetachesSession(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)
	defer c.Close()

	source := newGatedSource(readers.Uniform(0, 1000))
	old, err := c.StartDigest(context.Background(), source, digest.Request{Algorithm: digest.BLAKE3, ChunkSize: 10})
	require.NoError(t, err)
	source.waitForRead(t)

	require.True(t, c.Reset())

	_, ok := c.Active()
	assert.False(t, ok)

	id, err := c.StartPatternScan(context.Background(), blocksources.NewByteSource([]byte("abc")), search.Request{Pattern: []byte("b")})
	require.NoError(t, err)

	terminal := rec.waitTerminal(t)
	assert.Equal(t, id, terminal.Session)

	// the reset session was blocked in its first read, and emits nothing after being detached
	require.NoError(t, c.Close())
	assert.Empty(t, rec.forSession(old))
}

func TestSlotFreeBeforeTerminalEvent(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)
	defer c.Close()

	var (
		mu           sync.Mutex
		activeAtEnd  = true
		restartError error
	)

	rec.onEmit = func(e Event) {
		if !e.Type.Terminal() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_, activeAtEnd = c.Active()
		if e.Type == NotFoundEvent {
			_, restartError = c.StartPatternScan(context.Background(), blocksources.NewByteSource([]byte("ab")), search.Request{Pattern: []byte("a")})
		}
	}

	_, err := c.StartPatternScan(context.Background(), blocksources.NewByteSource([]byte("abc")), search.Request{Pattern: []byte("z")})
	require.NoError(t, err)

	// the restarted session can finish before the first terminal event reaches the channel
	outcomes := []EventType{rec.waitTerminal(t).Type, rec.waitTerminal(t).Type}
	assert.ElementsMatch(t, []EventType{NotFoundEvent, FoundEvent}, outcomes)

	mu.Lock()
	defer mu.Unlock()
	assert.NoError(t, restartError)
	assert.False(t, activeAtEnd)
}

type brokenReads struct {
	blocksources.ChunkSource
}

func (brokenReads) ReadRange(ctx context.Context, offset int64, maxLength int) ([]byte, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestReadFailureEvent(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)
	defer c.Close()

	_, err := c.StartPatternScan(context.Background(), brokenReads{blocksources.NewByteSource(make([]byte, 100))}, search.Request{
		Pattern:     DEADBEEF,
		StartOffset: 20,
	})
	require.NoError(t, err)

	terminal := rec.waitTerminal(t)
	require.Equal(t, ErrorEvent, terminal.Type)
	assert.Equal(t, CodeRead, terminal.Error.Code)
	require.NotNil(t, terminal.Error.Offset)
	assert.EqualValues(t, 20, *terminal.Error.Offset)
	assert.Contains(t, terminal.Error.Message, "offset 20")
}

func TestMalformedStartRequests(t *testing.T) {
	c := New(nil, nil)
	defer c.Close()
	source := blocksources.NewByteSource(make([]byte, 10))

	_, err := c.StartPatternScan(context.Background(), source, search.Request{})
	assert.Equal(t, search.ErrEmptyPattern, errors.Cause(err))

	_, err = c.StartPatternScan(context.Background(), source, search.Request{Pattern: []byte("a"), StartOffset: 11})
	assert.Equal(t, search.ErrInvalidOffset, errors.Cause(err))

	_, err = c.StartDigest(context.Background(), source, digest.Request{Algorithm: "CRC32"})
	assert.Equal(t, digest.ErrUnsupportedAlgorithm, errors.Cause(err))

	_, ok := c.Active()
	assert.False(t, ok)
}

func TestInlineAllowedDuringSession(t *testing.T) {
	c := New(nil, newRecorder())
	defer c.Close()

	source := newGatedSource(readers.Uniform(0, 100))
	_, err := c.StartPatternScan(context.Background(), source, search.Request{Pattern: DEADBEEF})
	require.NoError(t, err)
	source.waitForRead(t)

	result, err := c.HashInline(context.Background(), digest.SHA256, nil, true)
	require.NoError(t, err)
	assert.Equal(t, "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855", result.Hex())

	source.open()
}

func TestCloseCancelsActiveSession(t *testing.T) {
	rec := newRecorder()
	c := New(nil, rec)

	source := newGatedSource(readers.Uniform(0, 100))
	_, err := c.StartPatternScan(context.Background(), source, search.Request{Pattern: DEADBEEF})
	require.NoError(t, err)
	source.waitForRead(t)

	require.NoError(t, c.Close())
	assert.Equal(t, CancelledEvent, rec.waitTerminal(t).Type)

	_, err = c.StartPatternScan(context.Background(), source, search.Request{Pattern: DEADBEEF})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	c := New(nil, nil, WithPreferAccelerated(false))
	defer c.Close()

	d := c.Describe()
	assert.Equal(t, "portable", d.Mode)
	assert.Contains(t, d.SupportedAlgorithms, "SHA-256")
	assert.Contains(t, d.SupportedAlgorithms, "MD5")
	assert.Len(t, d.SupportedAlgorithms, len(digest.KnownAlgorithms()))
}
