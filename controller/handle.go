package controller

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Redundancy/go-scan/blocksources"
	"github.com/Redundancy/go-scan/chunks"
	"github.com/Redundancy/go-scan/digest"
	"github.com/Redundancy/go-scan/search"
)

// Input types reported for inline digests
const (
	InputBytes = "bytes"
	InputText  = "text"
)

/*
Handle carries out one request received at the message boundary.

Start requests name their source, which is opened with the controller's Opener and closed when the session ends.
Every failure, including a rejected request, is reported to the sink as an error event as well as being returned.
Inline digests and describe requests report their result to the sink immediately.
*/
func (c *Controller) Handle(ctx context.Context, request Request) error {
	var (
		code string
		err  error
	)

	switch request.Type {
	case StartPatternScan:
		code, err = c.handlePatternScan(ctx, request)
	case StartDigest:
		code, err = c.handleDigest(ctx, request)
	case CalculateDigestInline:
		code, err = c.handleInline(ctx, request)
	case CancelRequest, StopRequest:
		if !c.Cancel() {
			c.log.Debug("cancel with no active session")
		}
	case ResetRequest:
		c.Reset()
	case DescribeRequest:
		described := c.Describe()
		c.sink.Emit(Event{Type: InitializedEvent, Initialized: &described}.WithContext(ctx))
	default:
		code, err = CodeMalformed, errors.Wrapf(ErrUnknownRequest, "%q", request.Type)
		c.rejected(ctx, code)
	}

	if err != nil {
		c.log.Warn("request failed", "type", request.Type, "code", code, "error", err)
		c.sink.Emit(errorEvent(err, code).WithContext(ctx))
	}

	return err
}

func (c *Controller) preference(request Request) bool {
	if request.PreferAccelerated != nil {
		return *request.PreferAccelerated
	}
	return c.preferAccelerated
}

func (c *Controller) handlePatternScan(ctx context.Context, request Request) (string, error) {
	// rejected before the source is touched
	if len(request.PatternBytes) == 0 {
		c.rejected(ctx, CodeMalformed)
		return CodeMalformed, search.ErrEmptyPattern
	}

	if err := c.checkIdle(ctx); err != nil {
		return CodeBusy, err
	}

	source, release, err := c.open(ctx, request.Source)
	if err != nil {
		return CodeSource, err
	}

	_, err = c.startPatternScan(ctx, source, search.Request{
		Pattern:     request.PatternBytes,
		StartOffset: request.StartOffset,
		ChunkSize:   request.ChunkSize,
	}, release)

	if err != nil {
		release()
		return startErrorCode(err), err
	}

	return "", nil
}

func (c *Controller) handleDigest(ctx context.Context, request Request) (string, error) {
	algorithm, err := c.parseAlgorithm(ctx, request.Algorithm)
	if err != nil {
		return CodeMalformed, err
	}

	if err := c.checkIdle(ctx); err != nil {
		return CodeBusy, err
	}

	source, release, err := c.open(ctx, request.Source)
	if err != nil {
		return CodeSource, err
	}

	_, err = c.startDigest(ctx, source, digest.Request{
		Algorithm:         algorithm,
		PreferAccelerated: c.preference(request),
		ChunkSize:         request.ChunkSize,
	}, release)

	if err != nil {
		release()
		return startErrorCode(err), err
	}

	return "", nil
}

func (c *Controller) handleInline(ctx context.Context, request Request) (string, error) {
	algorithm, err := c.parseAlgorithm(ctx, request.Algorithm)
	if err != nil {
		return CodeMalformed, err
	}

	data, inputType := []byte(request.Bytes), InputBytes
	if len(data) == 0 && request.Text != "" {
		data, inputType = []byte(request.Text), InputText
	}

	result, err := c.HashInline(ctx, algorithm, data, c.preference(request))
	if err != nil {
		return CodeBackend, err
	}

	// counted in bytes, for text as well
	length := len(data)
	c.sink.Emit(Event{
		Type:    CompletedEvent,
		Session: uuid.NewString(),
		Kind:    InlineKind,
		Completed: &CompletedPayload{
			Algorithm:      algorithm.String(),
			DigestHex:      result.Hex(),
			TotalBytes:     int64(length),
			Backend:        result.Class.String(),
			Implementation: result.Backend,
			InputType:      inputType,
			InputLength:    &length,
		},
	}.WithContext(ctx))

	return "", nil
}

// checkIdle saves opening a source for a start request that would be rejected anyway
func (c *Controller) checkIdle(ctx context.Context) error {
	if active, busy := c.Active(); busy {
		c.rejected(ctx, CodeBusy)
		return errors.Wrapf(ErrBusy, "%v session %v", active.Kind, active.ID)
	}
	return nil
}

func (c *Controller) parseAlgorithm(ctx context.Context, name string) (digest.Algorithm, error) {
	algorithm, err := digest.ParseAlgorithm(name)
	if err == nil && !c.registry.Supports(algorithm) {
		err = errors.Wrapf(digest.ErrUnsupportedAlgorithm, "%q", name)
	}

	if err != nil {
		c.rejected(ctx, CodeMalformed)
		return "", err
	}

	return algorithm, nil
}

// open resolves a source name, wrapping it for read-ahead if configured.
// The returned release function closes everything that was opened.
func (c *Controller) open(ctx context.Context, name string) (blocksources.ChunkSource, func(), error) {
	if name == "" {
		c.rejected(ctx, CodeMalformed)
		return nil, nil, errors.New("request does not name a source")
	}

	source, closer, err := c.opener(ctx, name)
	if err != nil {
		c.rejected(ctx, CodeSource)
		return nil, nil, errors.Wrapf(err, "opening %v", name)
	}

	closers := []io.Closer{closer}

	if c.readAhead > 0 {
		ra := blocksources.NewReadAhead(source, c.readAhead, c.log)
		source = ra
		closers = []io.Closer{ra, closer}
	}

	release := func() {
		for _, cl := range closers {
			if cl == nil {
				continue
			}
			if err := cl.Close(); err != nil {
				c.log.Warn("closing source failed", "source", name, "error", err)
			}
		}
	}

	return source, release, nil
}

func startErrorCode(err error) string {
	switch errors.Cause(err) {
	case ErrBusy:
		return CodeBusy
	case search.ErrEmptyPattern, search.ErrInvalidOffset, chunks.ErrInvalidChunkSize, digest.ErrUnsupportedAlgorithm:
		return CodeMalformed
	}
	return CodeSource
}
