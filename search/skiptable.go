package search

// SkipTable is the bad character table for a pattern: for every byte value, how far the candidate
// end position can move when that byte is aligned with the last byte of the pattern and the candidate fails.
type SkipTable [256]int

// BuildSkipTable makes the table for pattern.
// Bytes that do not appear in the pattern (ignoring its last position) skip the whole pattern length;
// the others skip to line up with their last occurrence.
func BuildSkipTable(pattern []byte) *SkipTable {
	table := new(SkipTable)
	n := len(pattern)

	for i := range table {
		table[i] = n
	}

	for i := 0; i < n-1; i++ {
		table[pattern[i]] = n - 1 - i
	}

	return table
}

// Find returns the offset of the first occurrence of pattern in buffer at or after startPos.
// The pattern is compared right to left from each candidate end position.
// An empty pattern, or one longer than the buffer, never matches.
func (t *SkipTable) Find(buffer, pattern []byte, startPos int) (int, bool) {
	n := len(pattern)
	if n == 0 || n > len(buffer) {
		return 0, false
	}

	if startPos < 0 {
		startPos = 0
	}

	for end := startPos + n - 1; end < len(buffer); end += t[buffer[end]] {
		i, j := end, n-1

		for j >= 0 && buffer[i] == pattern[j] {
			i--
			j--
		}

		if j < 0 {
			return i + 1, true
		}
	}

	return 0, false
}
