/*
Package search finds the first occurrence of a byte pattern in a source too large to hold in memory.

The source is consumed a chunk at a time. The last len(pattern)-1 bytes seen are carried over and prepended
to the next chunk, so a match that straddles a chunk boundary is found exactly once, at the right absolute offset.

Two stateless matchers are provided: a Boyer-Moore-Horspool style skip table search, and a brute force
search that is used for one and two byte patterns where building the table costs more than it saves.
*/
package search

// BruteForceMaxPatternLength is the longest pattern that NewMatcher will search for without a skip table
const BruteForceMaxPatternLength = 2

// Matcher finds the first occurrence of its pattern in a buffer
type Matcher interface {
	// Find returns the offset of the first match in buffer, and false if there is none
	Find(buffer []byte) (int, bool)
}

// NewMatcher picks the strategy suited to the length of the pattern.
// The pattern is not copied and must not be modified while the matcher is in use.
func NewMatcher(pattern []byte) Matcher {
	if len(pattern) <= BruteForceMaxPatternLength {
		return &bruteMatcher{pattern: pattern}
	}

	return &skipTableMatcher{
		pattern: pattern,
		table:   BuildSkipTable(pattern),
	}
}

type bruteMatcher struct {
	pattern []byte
}

func (m *bruteMatcher) Find(buffer []byte) (int, bool) {
	return BruteFind(buffer, m.pattern, 0)
}

type skipTableMatcher struct {
	pattern []byte
	table   *SkipTable
}

func (m *skipTableMatcher) Find(buffer []byte) (int, bool) {
	return m.table.Find(buffer, m.pattern, 0)
}
