package digest

import (
	"hash"
	"io"

	"github.com/pkg/errors"
)

// Class separates accelerated backends from portable ones.
// It is fixed when an implementation is registered, and reported with every result.
type Class int

const (
	Accelerated Class = iota
	Portable
)

func (c Class) String() string {
	switch c {
	case Accelerated:
		return "accelerated"
	case Portable:
		return "portable"
	}
	return "unknown"
}

// Accumulator is the running state of one digest computation.
// It can only move forwards: there is no way to remove bytes once written.
type Accumulator interface {
	io.Writer

	// Sum returns the digest of everything written so far
	Sum() []byte

	// Size of the digest in bytes
	Size() int

	// Close releases the accumulator. It must not be used afterwards.
	Close() error
}

// Backend creates accumulators for one algorithm.
// A backend may hold expensive shared state, such as worker goroutines, which Close releases.
type Backend interface {
	NewAccumulator() (Accumulator, error)
	Close() error
}

// Factory constructs a Backend. It may fail, for instance when the CPU lacks the instructions it needs.
type Factory func() (Backend, error)

// Implementation registers a Factory for an algorithm with a given class
type Implementation struct {
	Algorithm Algorithm
	Class     Class
	// Name of the library, reported alongside the class
	Name    string
	Factory Factory
}

// BackendHandle is a constructed backend together with what it is
type BackendHandle struct {
	Algorithm Algorithm
	Class     Class
	Name      string

	backend Backend
}

// NewAccumulator starts a new digest computation
func (h *BackendHandle) NewAccumulator() (Accumulator, error) {
	acc, err := h.backend.NewAccumulator()
	if err != nil {
		return nil, errors.Wrapf(err, "%v backend %v", h.Class, h.Name)
	}
	return acc, nil
}

func (h *BackendHandle) close() error {
	return h.backend.Close()
}

// hashBackend adapts a hash.Hash constructor
type hashBackend struct {
	newHash func() (hash.Hash, error)
	release func()
}

func newHashBackend(newHash func() (hash.Hash, error)) *hashBackend {
	return &hashBackend{newHash: newHash}
}

func (b *hashBackend) NewAccumulator() (Accumulator, error) {
	h, err := b.newHash()
	if err != nil {
		return nil, err
	}
	return &hashAccumulator{Hash: h}, nil
}

func (b *hashBackend) Close() error {
	if b.release != nil {
		b.release()
	}
	return nil
}

type hashAccumulator struct {
	hash.Hash
	closed bool
}

func (a *hashAccumulator) Write(p []byte) (int, error) {
	if a.closed {
		return 0, errors.New("accumulator is closed")
	}
	return a.Hash.Write(p)
}

func (a *hashAccumulator) Sum() []byte {
	return a.Hash.Sum(nil)
}

func (a *hashAccumulator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.Hash.Reset()

	// md5-simd hashers hand their lane back to the server
	if c, ok := a.Hash.(interface{ Close() }); ok {
		c.Close()
	}

	return nil
}
