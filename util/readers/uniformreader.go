package readers

// Uniform returns size bytes that all have the same value
func Uniform(value byte, size int) []byte {
	result := make([]byte, size)

	if value != 0 {
		for i := range result {
			result[i] = value
		}
	}

	return result
}
