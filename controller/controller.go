/*
Package controller owns the single active scan of a process and sits at the message boundary.

Requests start a pattern scan or a streaming digest, hash a short value inline, cancel or reset.
Only one session can be active at a time: a second start is rejected with ErrBusy rather than queued.
Each session runs on its own goroutine and reports through an EventSink: progress events in cursor order,
then exactly one terminal event.
*/
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Redundancy/go-scan/blocksources"
	"github.com/Redundancy/go-scan/digest"
	"github.com/Redundancy/go-scan/progress"
	"github.com/Redundancy/go-scan/search"
	"github.com/Redundancy/go-scan/telemetry"
)

// ErrBusy is returned for a start request while another session is active
var ErrBusy = errors.New("a session is already active")

// ActiveSession identifies the session holding the controller
type ActiveSession struct {
	ID   string
	Kind string
}

// slot is the controller's record of the active session
type slot struct {
	ActiveSession

	// sets the session's cancellation flag
	cancelSession func()
	// cancels the session's context, aborting a read in progress
	cancel context.CancelFunc

	emitMu   sync.Mutex
	detached bool
}

// emit delivers e, carrying the session's trace from ctx, unless the session has been detached by Reset
func (s *slot) emit(ctx context.Context, sink EventSink, e Event) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if s.detached {
		return
	}

	e.Session = s.ID
	e.Kind = s.Kind
	sink.Emit(e.WithContext(ctx))
}

// detach stops all further events, waiting for one in progress to be delivered
func (s *slot) detach() {
	s.emitMu.Lock()
	s.detached = true
	s.emitMu.Unlock()
}

// outcome is what a finished session reports
type outcome struct {
	event   Event
	bytes   int64
	elapsed time.Duration
	err     error
}

type Controller struct {
	log          hclog.Logger
	registry     *digest.Registry
	ownsRegistry bool
	sink         EventSink
	opener       Opener
	instruments  *telemetry.Instruments
	tracer       trace.Tracer

	preferAccelerated bool
	searchChunkSize   int
	digestChunkSize   int
	readAhead         int

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	active *slot
}

// New creates a controller reporting to sink. A nil registry is replaced by one serving the builtin backends,
// which the controller then closes in Close.
func New(registry *digest.Registry, sink EventSink, options ...Option) *Controller {
	ctx, stop := context.WithCancel(context.Background())

	c := &Controller{
		log:               hclog.NewNullLogger(),
		registry:          registry,
		sink:              sink,
		opener:            HTTPOpener(nil),
		tracer:            telemetry.Tracer(),
		preferAccelerated: true,
		ctx:               ctx,
		stop:              stop,
	}

	for _, o := range options {
		o(c)
	}

	c.log = c.log.Named("controller")

	if c.sink == nil {
		c.sink = Discard
	}

	if c.registry == nil {
		c.registry = digest.NewRegistry(c.log)
		c.ownsRegistry = true
	}

	if c.instruments == nil {
		instruments, err := telemetry.NewInstruments(nil)
		if err != nil {
			c.log.Warn("session metrics disabled", "error", err)
		}
		c.instruments = instruments
	}

	return c
}

// Registry is the digest backend registry the controller uses
func (c *Controller) Registry() *digest.Registry {
	return c.registry
}

// Active reports the session holding the controller, if there is one
func (c *Controller) Active() (ActiveSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return ActiveSession{}, false
	}
	return c.active.ActiveSession, true
}

// StartPatternScan starts looking for the first occurrence of request.Pattern in source, returning the session ID.
// Malformed requests and ErrBusy are returned before anything is read.
func (c *Controller) StartPatternScan(ctx context.Context, source blocksources.ChunkSource, request search.Request) (string, error) {
	return c.startPatternScan(ctx, source, request, nil)
}

func (c *Controller) startPatternScan(
	ctx context.Context,
	source blocksources.ChunkSource,
	request search.Request,
	release func(),
) (string, error) {
	if request.ChunkSize == 0 {
		request.ChunkSize = c.searchChunkSize
	}

	id := uuid.NewString()
	log := c.log.With("session", id)

	session, err := search.NewSession(source, request, search.WithLogger(log.Named("search")))
	if err != nil {
		c.rejected(ctx, CodeMalformed)
		return "", err
	}

	s := &slot{
		ActiveSession: ActiveSession{ID: id, Kind: SearchKind},
		cancelSession: session.Cancel,
	}

	err = c.launch(ctx, s, release, func(ctx context.Context) outcome {
		result := session.Run(ctx, func(snapshot progress.Snapshot) {
			s.emit(ctx, c.sink, Event{Type: ProgressEvent, Progress: progressPayload(snapshot)})
		})

		o := outcome{
			bytes:   result.BytesScanned,
			elapsed: result.Elapsed,
			err:     result.Err,
		}

		switch result.State {
		case search.Found:
			o.event = Event{
				Type: FoundEvent,
				Found: &FoundPayload{
					AbsoluteOffset: result.Offset,
					ElapsedMs:      milliseconds(result.Elapsed),
				},
			}
		case search.NotFound:
			o.event = Event{Type: NotFoundEvent}
		case search.Cancelled:
			o.event = Event{Type: CancelledEvent}
		default:
			o.event = errorEvent(result.Err, CodeSource)
		}

		return o
	})

	if err != nil {
		return "", err
	}

	log.Info("pattern scan started", "pattern_length", len(request.Pattern), "start", request.StartOffset)
	return id, nil
}

// StartDigest starts digesting the whole of source, returning the session ID.
// Unsupported algorithms and ErrBusy are returned before anything is read.
func (c *Controller) StartDigest(ctx context.Context, source blocksources.ChunkSource, request digest.Request) (string, error) {
	return c.startDigest(ctx, source, request, nil)
}

func (c *Controller) startDigest(
	ctx context.Context,
	source blocksources.ChunkSource,
	request digest.Request,
	release func(),
) (string, error) {
	if request.ChunkSize == 0 {
		request.ChunkSize = c.digestChunkSize
	}

	id := uuid.NewString()
	log := c.log.With("session", id)

	session, err := digest.NewSession(source, c.registry, request, digest.WithLogger(log.Named("digest")))
	if err != nil {
		c.rejected(ctx, CodeMalformed)
		return "", err
	}

	s := &slot{
		ActiveSession: ActiveSession{ID: id, Kind: DigestKind},
		cancelSession: session.Cancel,
	}

	err = c.launch(ctx, s, release, func(ctx context.Context) outcome {
		result := session.Run(ctx, func(snapshot progress.Snapshot) {
			s.emit(ctx, c.sink, Event{Type: ProgressEvent, Progress: progressPayload(snapshot)})
		})

		o := outcome{
			bytes:   result.TotalBytes,
			elapsed: result.Elapsed,
			err:     result.Err,
		}

		switch result.State {
		case digest.Completed:
			o.event = Event{
				Type: CompletedEvent,
				Completed: &CompletedPayload{
					Algorithm:      result.Algorithm.String(),
					DigestHex:      result.Hex(),
					TotalBytes:     result.TotalBytes,
					ElapsedMs:      milliseconds(result.Elapsed),
					Backend:        result.Class.String(),
					Implementation: result.Backend,
				},
			}
		case digest.Cancelled:
			o.event = Event{Type: CancelledEvent}
		default:
			o.event = errorEvent(result.Err, CodeBackend)
		}

		return o
	})

	if err != nil {
		return "", err
	}

	log.Info("digest started", "algorithm", request.Algorithm, "prefer_accelerated", request.PreferAccelerated)
	return id, nil
}

// launch claims the active slot for s and runs work on a new goroutine.
// The slot is released before the terminal event is emitted, so a new session can be started from the sink.
func (c *Controller) launch(parent context.Context, s *slot, release func(), work func(context.Context) outcome) error {
	// keep the caller's trace, but not its deadline or cancellation
	ctx := trace.ContextWithSpanContext(c.ctx, trace.SpanContextFromContext(parent))
	ctx, s.cancel = context.WithCancel(ctx)

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		s.cancel()
		return errors.New("controller is closed")
	}
	if c.active != nil {
		busy := c.active.ActiveSession
		c.mu.Unlock()
		s.cancel()
		c.rejected(parent, CodeBusy)
		return errors.Wrapf(ErrBusy, "%v session %v", busy.Kind, busy.ID)
	}
	c.active = s
	c.wg.Add(1)
	c.mu.Unlock()

	if c.instruments != nil {
		c.instruments.SessionStarted(ctx, s.Kind)
	}

	go func() {
		defer c.wg.Done()
		defer s.cancel()
		if release != nil {
			defer release()
		}

		ctx, span := c.tracer.Start(ctx, "goscan."+s.Kind, trace.WithAttributes(
			attribute.String("session", s.ID),
		))
		defer span.End()

		o := work(ctx)

		outcomeName := string(o.event.Type)
		if o.err != nil {
			span.RecordError(o.err)
			span.SetStatus(codes.Error, o.err.Error())
		}
		span.SetAttributes(
			attribute.String("outcome", outcomeName),
			attribute.Int64("bytes", o.bytes),
		)

		c.vacate(s)
		s.emit(ctx, c.sink, o.event)

		if c.instruments != nil {
			c.instruments.SessionFinished(ctx, s.Kind, outcomeName, o.bytes, o.elapsed)
		}

		c.log.Info("session finished",
			"session", s.ID,
			"kind", s.Kind,
			"outcome", outcomeName,
			"bytes", o.bytes,
			"elapsed", o.elapsed,
		)
	}()

	return nil
}

// vacate clears the active slot if s still holds it
func (c *Controller) vacate(s *slot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == s {
		c.active = nil
	}
}

// Cancel sets the active session's cancellation flag and returns without waiting.
// The session stops before its next chunk and emits a cancelled event. It returns false if there is no session.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()

	if s == nil {
		return false
	}

	s.cancelSession()
	c.log.Debug("cancel requested", "session", s.ID)
	return true
}

// Reset returns the controller to idle whatever state the active session is in.
// The session is detached, so it emits nothing further, and is stopped; its resources are released
// as its goroutine exits. It returns false if there was no session.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()

	if s == nil {
		return false
	}

	s.detach()
	s.cancelSession()
	s.cancel()

	c.log.Info("session reset", "session", s.ID, "kind", s.Kind)
	return true
}

// HashInline digests a short value without starting a session. It may be called while a session is active.
func (c *Controller) HashInline(ctx context.Context, algorithm digest.Algorithm, data []byte, preferAccelerated bool) (*digest.InlineResult, error) {
	_, span := c.tracer.Start(ctx, "goscan.inline", trace.WithAttributes(
		attribute.String("algorithm", algorithm.String()),
		attribute.Int("length", len(data)),
	))
	defer span.End()

	result, err := c.registry.HashInline(algorithm, data, preferAccelerated)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("backend", result.Class.String()))
	return result, nil
}

// Describe reports the algorithms on offer and the backend preference
func (c *Controller) Describe() InitializedPayload {
	algorithms := c.registry.Algorithms()

	names := make([]string, len(algorithms))
	for i, a := range algorithms {
		names[i] = a.String()
	}

	mode := digest.Portable.String()
	if c.preferAccelerated {
		mode = digest.Accelerated.String()
	}

	return InitializedPayload{
		SupportedAlgorithms: names,
		Mode:                mode,
	}
}

// Close cancels the active session, waits for it to emit its terminal event and releases the registry if
// the controller created it. Start requests fail afterwards.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.stop()
	c.mu.Unlock()

	c.wg.Wait()

	if c.ownsRegistry {
		return c.registry.Close()
	}
	return nil
}

func (c *Controller) rejected(ctx context.Context, code string) {
	if c.instruments != nil {
		c.instruments.Rejected(ctx, code)
	}
}

func errorEvent(err error, code string) Event {
	if err == nil {
		err = errors.New("session failed")
	}

	payload := &ErrorPayload{
		Message: err.Error(),
		Code:    code,
	}

	var readErr *blocksources.ReadError
	if errors.As(err, &readErr) {
		offset := readErr.Offset
		payload.Code = CodeRead
		payload.Offset = &offset
	}

	return Event{Type: ErrorEvent, Error: payload}
}
