package blocksources

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/petar/GoLLRB/llrb"
)

// NewReadAhead wraps source so that, after each range is read, the next depth ranges of the same length
// are requested in the background. A sequential scan then spends less time waiting on slow sources
// (typically HTTP), while the data it sees is unchanged: a prefetched range is only handed out when
// its offset and length are exactly what is asked for next.
//
// Memory is bounded by depth prefetches of the requested length.
func NewReadAhead(source ChunkSource, depth int, logger hclog.Logger) *ReadAhead {
	if depth < 1 {
		depth = 1
	}

	ctx, stop := context.WithCancel(context.Background())

	return &ReadAhead{
		source:  source,
		depth:   depth,
		log:     loggerOrNull(logger).Named("readahead"),
		ctx:     ctx,
		stop:    stop,
		pending: llrb.New(),
	}
}

// ReadAhead is a ChunkSource that prefetches.
// Pending requests, both in flight and completed, are kept ordered by offset so that
// the next one can be found and stale ones discarded from the low end.
type ReadAhead struct {
	source ChunkSource
	depth  int
	log    hclog.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu      sync.Mutex
	pending *llrb.LLRB

	hits   atomic.Int64
	misses atomic.Int64
}

type prefetch struct {
	offset int64
	length int

	done   chan struct{}
	data   []byte
	err    error
	cancel context.CancelFunc
}

// Less orders prefetches by offset
func (p *prefetch) Less(than llrb.Item) bool {
	return p.offset < than.(*prefetch).offset
}

func (r *ReadAhead) Size() int64 {
	return r.source.Size()
}

func (r *ReadAhead) ReadRange(ctx context.Context, offset int64, maxLength int) ([]byte, error) {
	r.mu.Lock()
	p := r.take(offset, maxLength)
	r.mu.Unlock()

	var (
		data []byte
		err  error
	)

	if p != nil {
		r.hits.Add(1)
		select {
		case <-p.done:
			data, err = p.data, p.err
			p.cancel()
		case <-ctx.Done():
			p.cancel()
			return nil, ctx.Err()
		}
	} else {
		r.misses.Add(1)
		data, err = r.source.ReadRange(ctx, offset, maxLength)
	}

	if err == nil && maxLength > 0 {
		r.mu.Lock()
		r.schedule(offset+int64(len(data)), maxLength)
		r.mu.Unlock()
	}

	return data, err
}

// take removes and returns the prefetch matching the request, if any, and discards any
// prefetches that start before the end of the request since nothing will ask for them now
func (r *ReadAhead) take(offset int64, length int) *prefetch {
	var match *prefetch

	if item := r.pending.Get(&prefetch{offset: offset}); item != nil {
		if p := item.(*prefetch); p.length == length {
			r.pending.Delete(p)
			match = p
		}
	}

	end := offset + int64(length)
	for r.pending.Len() > 0 {
		lowest := r.pending.Min().(*prefetch)
		if lowest.offset >= end {
			break
		}
		r.pending.DeleteMin()
		lowest.cancel()
	}

	return match
}

// schedule starts prefetches for the ranges following next, up to depth of them
func (r *ReadAhead) schedule(next int64, length int) {
	if r.ctx.Err() != nil {
		return
	}

	size := r.source.Size()

	for i := 0; i < r.depth; i++ {
		offset := next + int64(i*length)
		if offset >= size {
			break
		}

		if r.pending.Get(&prefetch{offset: offset}) != nil {
			continue
		}

		n := length
		if remaining := size - offset; remaining < int64(n) {
			n = int(remaining)
		}

		ctx, cancel := context.WithCancel(r.ctx)
		p := &prefetch{
			offset: offset,
			length: n,
			done:   make(chan struct{}),
			cancel: cancel,
		}

		r.pending.ReplaceOrInsert(p)
		go r.fetch(ctx, p)
	}

	// Requests that skipped around can leave prefetches beyond the window
	for r.pending.Len() > r.depth {
		r.pending.DeleteMax().(*prefetch).cancel()
	}
}

func (r *ReadAhead) fetch(ctx context.Context, p *prefetch) {
	defer close(p.done)
	p.data, p.err = r.source.ReadRange(ctx, p.offset, p.length)

	if p.err != nil && ctx.Err() == nil {
		r.log.Debug("prefetch failed", "offset", p.offset, "length", p.length, "error", p.err)
	}
}

// Stats reports how many reads were served from a prefetch, and how many went to the source directly
func (r *ReadAhead) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

// Close cancels outstanding prefetches. It does not close the wrapped source.
func (r *ReadAhead) Close() error {
	r.stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.pending.Len() > 0 {
		r.pending.DeleteMin().(*prefetch).cancel()
	}

	r.log.Trace("closed", "hits", r.hits.Load(), "misses", r.misses.Load())
	return nil
}
