package readers

// Inject returns a copy of base with inject written over it, starting at offset.
// base is extended if inject runs past its end.
func Inject(base []byte, offset int, inject []byte) []byte {
	size := len(base)
	if end := offset + len(inject); end > size {
		size = end
	}

	result := make([]byte, size)
	copy(result, base)
	copy(result[offset:], inject)

	return result
}

// Scrub returns a copy of data in which every byte that appears in forbidden has been replaced by
// one that does not, so that a pattern built from forbidden bytes can only occur where it is injected.
func Scrub(data []byte, forbidden []byte) []byte {
	var banned [256]bool
	for _, b := range forbidden {
		banned[b] = true
	}

	replacement := byte(0)
	for banned[replacement] {
		replacement++
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if banned[b] {
			b = replacement
		}
		result[i] = b
	}

	return result
}
