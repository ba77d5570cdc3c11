package digest

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// ErrNoBackend is returned when no implementation of a supported algorithm could produce a result
var ErrNoBackend = errors.New("no digest backend available")

type registryKey struct {
	algorithm Algorithm
	class     Class
}

/*
Registry resolves an algorithm to a constructed backend.

The first successful construction of each (algorithm, class) pair is cached and shared by every later
request. A failed construction is not cached, so the next request tries again.
A Registry is safe for concurrent use.
*/
type Registry struct {
	log       hclog.Logger
	factories map[registryKey]Implementation

	mu    sync.Mutex
	cache map[registryKey]*BackendHandle
}

// NewRegistry creates a registry serving the given implementations, or Builtin() if there are none.
// A later implementation replaces an earlier one with the same algorithm and class.
func NewRegistry(logger hclog.Logger, implementations ...Implementation) *Registry {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	if len(implementations) == 0 {
		implementations = Builtin()
	}

	r := &Registry{
		log:       logger.Named("digest"),
		factories: make(map[registryKey]Implementation, len(implementations)),
		cache:     make(map[registryKey]*BackendHandle),
	}

	for _, impl := range implementations {
		r.factories[registryKey{impl.Algorithm, impl.Class}] = impl
	}

	return r
}

// Algorithms lists the algorithms with at least one implementation
func (r *Registry) Algorithms() []Algorithm {
	var result []Algorithm

	for _, a := range knownAlgorithms {
		if r.Supports(a) {
			result = append(result, a)
		}
	}

	return result
}

// Supports is true if algorithm has any implementation
func (r *Registry) Supports(algorithm Algorithm) bool {
	return len(r.Classes(algorithm, true)) > 0
}

// Classes returns the classes available for algorithm, in the order they should be tried
func (r *Registry) Classes(algorithm Algorithm, preferAccelerated bool) []Class {
	order := []Class{Accelerated, Portable}
	if !preferAccelerated {
		order = []Class{Portable, Accelerated}
	}

	var result []Class
	for _, c := range order {
		if _, ok := r.factories[registryKey{algorithm, c}]; ok {
			result = append(result, c)
		}
	}

	return result
}

// Resolve returns the backend for algorithm, choosing the preferred class when it is available
// and the other one when it is not. A construction failure is returned as is: it does not cause the
// other class to be tried.
func (r *Registry) Resolve(algorithm Algorithm, preferAccelerated bool) (*BackendHandle, error) {
	classes := r.Classes(algorithm, preferAccelerated)
	if len(classes) == 0 {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "%q", algorithm)
	}

	return r.ResolveClass(algorithm, classes[0])
}

// ResolveClass returns the backend of the given class for algorithm, constructing it if necessary
func (r *Registry) ResolveClass(algorithm Algorithm, class Class) (*BackendHandle, error) {
	key := registryKey{algorithm, class}

	impl, ok := r.factories[key]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "no %v implementation of %q", class, algorithm)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, cached := r.cache[key]; cached {
		return handle, nil
	}

	backend, err := impl.Factory()
	if err != nil {
		r.log.Warn("backend construction failed",
			"algorithm", algorithm,
			"class", class,
			"backend", impl.Name,
			"error", err,
		)
		return nil, errors.Wrapf(err, "constructing %v backend %v for %v", class, impl.Name, algorithm)
	}

	handle := &BackendHandle{
		Algorithm: algorithm,
		Class:     class,
		Name:      impl.Name,
		backend:   backend,
	}

	r.cache[key] = handle
	r.log.Debug("backend constructed", "algorithm", algorithm, "class", class, "backend", impl.Name)

	return handle, nil
}

// Cached is the number of constructed backends held by the registry
func (r *Registry) Cached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// Close releases every cached backend. The registry can still be used; backends will be constructed again.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for key, handle := range r.cache {
		if err := handle.close(); err != nil && first == nil {
			first = errors.Wrapf(err, "closing %v backend for %v", key.class, key.algorithm)
		}
		delete(r.cache, key)
	}

	return first
}
