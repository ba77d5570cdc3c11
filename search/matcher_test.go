package search

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchersAgreeWithBytesIndex(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	// a small alphabet makes partial matches common
	randomBytes := func(n int) []byte {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte('a' + rng.Intn(3))
		}
		return b
	}

	for i := 0; i < 2000; i++ {
		buffer := randomBytes(rng.Intn(64))
		pattern := randomBytes(1 + rng.Intn(6))

		expected := bytes.Index(buffer, pattern)

		offset, found := NewMatcher(pattern).Find(buffer)
		bruteOffset, bruteFound := BruteFind(buffer, pattern, 0)
		tableOffset, tableFound := BuildSkipTable(pattern).Find(buffer, pattern, 0)

		if expected < 0 {
			require.False(t, found, "buffer %q pattern %q", buffer, pattern)
			require.False(t, bruteFound)
			require.False(t, tableFound)
			continue
		}

		require.True(t, found, "buffer %q pattern %q", buffer, pattern)
		require.Equal(t, expected, offset)
		require.True(t, bruteFound)
		require.Equal(t, expected, bruteOffset)
		require.True(t, tableFound)
		require.Equal(t, expected, tableOffset)
	}
}

func TestMatcherSelection(t *testing.T) {
	assert.IsType(t, &bruteMatcher{}, NewMatcher([]byte{1}))
	assert.IsType(t, &bruteMatcher{}, NewMatcher([]byte{1, 2}))
	assert.IsType(t, &skipTableMatcher{}, NewMatcher([]byte{1, 2, 3}))
}

func TestSkipTable(t *testing.T) {
	table := BuildSkipTable([]byte("abcab"))

	assert.Equal(t, 1, table['a'])
	assert.Equal(t, 2, table['c'])
	// the last position is ignored, so b skips to its earlier occurrence
	assert.Equal(t, 3, table['b'])
	assert.Equal(t, 5, table['z'])
}

func TestFindEdgeCases(t *testing.T) {
	cases := []struct {
		name     string
		buffer   string
		pattern  string
		startPos int
		offset   int
		found    bool
	}{
		{"empty pattern", "abc", "", 0, 0, false},
		{"empty buffer", "", "a", 0, 0, false},
		{"pattern longer than buffer", "ab", "abc", 0, 0, false},
		{"whole buffer", "abc", "abc", 0, 0, true},
		{"at end", "xxxabc", "abc", 0, 3, true},
		{"first of several", "abcabc", "abc", 0, 0, true},
		{"start position skips a match", "abcabc", "abc", 1, 3, true},
		{"start position past all matches", "abcabc", "abc", 4, 0, false},
		{"overlapping occurrences", "aaaa", "aaa", 0, 0, true},
		{"negative start position", "xabc", "abc", -3, 1, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buffer, pattern := []byte(c.buffer), []byte(c.pattern)

			offset, found := BruteFind(buffer, pattern, c.startPos)
			assert.Equal(t, c.found, found, "brute force")
			if c.found {
				assert.Equal(t, c.offset, offset, "brute force")
			}

			offset, found = BuildSkipTable(pattern).Find(buffer, pattern, c.startPos)
			assert.Equal(t, c.found, found, "skip table")
			if c.found {
				assert.Equal(t, c.offset, offset, "skip table")
			}
		})
	}
}

func BenchmarkSkipTable(b *testing.B) {
	buffer := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 1<<14)
	pattern := []byte("lazy cat")
	table := BuildSkipTable(pattern)

	b.SetBytes(int64(len(buffer)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		table.Find(buffer, pattern, 0)
	}
}

func BenchmarkBruteForce(b *testing.B) {
	buffer := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 1<<14)
	pattern := []byte("lazy cat")

	b.SetBytes(int64(len(buffer)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		BruteFind(buffer, pattern, 0)
	}
}
