package digest

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// InlineResult is the digest of a single in-memory value
type InlineResult struct {
	Algorithm Algorithm
	Sum       []byte
	Class     Class
	Backend   string
}

// Hex is the digest in upper case hexadecimal
func (r *InlineResult) Hex() string {
	return FormatHex(r.Sum)
}

// FormatHex renders a digest as upper case hexadecimal
func FormatHex(sum []byte) string {
	return strings.ToUpper(hex.EncodeToString(sum))
}

// HashInline digests data in one call, without chunking.
// Unlike Resolve, any failure of one backend (construction or hashing) falls back to the next class available
// for the algorithm. ErrNoBackend is returned if none of them succeed.
func (r *Registry) HashInline(algorithm Algorithm, data []byte, preferAccelerated bool) (*InlineResult, error) {
	classes := r.Classes(algorithm, preferAccelerated)
	if len(classes) == 0 {
		return nil, errors.Wrapf(ErrUnsupportedAlgorithm, "%q", algorithm)
	}

	var lastErr error

	for i, class := range classes {
		sum, name, err := r.hashWith(algorithm, class, data)
		if err == nil {
			if i > 0 {
				r.log.Info("inline digest used fallback backend", "algorithm", algorithm, "class", class)
			}

			return &InlineResult{
				Algorithm: algorithm,
				Sum:       sum,
				Class:     class,
				Backend:   name,
			}, nil
		}

		r.log.Warn("inline digest failed", "algorithm", algorithm, "class", class, "error", err)
		lastErr = err
	}

	return nil, errors.Wrapf(ErrNoBackend, "%v: %v", algorithm, lastErr)
}

func (r *Registry) hashWith(algorithm Algorithm, class Class, data []byte) ([]byte, string, error) {
	handle, err := r.ResolveClass(algorithm, class)
	if err != nil {
		return nil, "", err
	}

	acc, err := handle.NewAccumulator()
	if err != nil {
		return nil, handle.Name, err
	}
	defer acc.Close()

	if _, err := acc.Write(data); err != nil {
		return nil, handle.Name, errors.Wrap(err, "hashing")
	}

	return acc.Sum(), handle.Name, nil
}
