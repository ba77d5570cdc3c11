package search

// BruteFind compares pattern at every candidate position of buffer from startPos onwards, left to right,
// moving on at the first mismatching byte.
// An empty pattern, or one longer than the buffer, never matches.
func BruteFind(buffer, pattern []byte, startPos int) (int, bool) {
	if len(pattern) == 0 || len(pattern) > len(buffer) {
		return 0, false
	}

	if startPos < 0 {
		startPos = 0
	}

	last := len(buffer) - len(pattern)

Candidates:
	for i := startPos; i <= last; i++ {
		for j := range pattern {
			if buffer[i+j] != pattern[j] {
				continue Candidates
			}
		}
		return i, true
	}

	return 0, false
}
