package chunks

// FixedSizeResolver works out the range to read at each step of a scan over a
// source of a known size, using the same chunk size for every step except the last.
type FixedSizeResolver struct {
	ChunkSize int
	Size      int64
}

// Next returns the offset and length of the read that starts at cursor.
// want is min(ChunkSize, Size-cursor), and 0 once the cursor reaches the end.
func (r *FixedSizeResolver) Next(cursor int64) (offset int64, want int) {
	remaining := r.Size - cursor

	if remaining <= 0 || r.ChunkSize <= 0 {
		return cursor, 0
	}

	if remaining < int64(r.ChunkSize) {
		return cursor, int(remaining)
	}

	return cursor, r.ChunkSize
}

// Count is the number of reads that a scan starting at start will make
func (r *FixedSizeResolver) Count(start int64) int64 {
	remaining := r.Size - start

	if remaining <= 0 || r.ChunkSize <= 0 {
		return 0
	}

	size := int64(r.ChunkSize)
	return (remaining + size - 1) / size
}

// Ranges splits [start, Size) into the sequence of reads that Next would produce
func (r *FixedSizeResolver) Ranges(start int64) []Range {
	result := make([]Range, 0, r.Count(start))

	for cursor := start; ; {
		offset, want := r.Next(cursor)
		if want == 0 {
			return result
		}
		result = append(result, Range{Offset: offset, Length: want})
		cursor += int64(want)
	}
}

// Range is a single read request
type Range struct {
	Offset int64
	Length int
}

// End is the absolute offset one past the last byte of the range
func (r Range) End() int64 {
	return r.Offset + int64(r.Length)
}
