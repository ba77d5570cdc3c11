/*
Package readers builds deterministic test sources: non-repeating byte sequences, uniform runs and
payloads with a known pattern injected at a known offset.
*/
package readers

import (
	"encoding/binary"
	"io"
)

const nonRepeatingModulo = 87178291199
const nonRepeatingIncrement = 17180131327

// *should* produce a non-repeating sequence of bytes in a deterministic fashion
// use io.LimitReader to limit it to a specific length
type nonRepeatingSequenceReader struct {
	value int
}

func NewNonRepeatingSequence(i int) io.Reader {
	return &nonRepeatingSequenceReader{i}
}

func (r *nonRepeatingSequenceReader) Read(p []byte) (n int, err error) {
	b := make([]byte, 4)

	for i := range p {
		binary.LittleEndian.PutUint32(b, uint32(r.value))
		p[i] = b[0]
		r.value = (r.value + nonRepeatingIncrement) % nonRepeatingModulo
	}

	return len(p), nil
}

// NonRepeatingBytes returns size bytes of the sequence started from seed
func NonRepeatingBytes(seed int, size int) []byte {
	result := make([]byte, size)
	io.ReadFull(NewNonRepeatingSequence(seed), result)
	return result
}
