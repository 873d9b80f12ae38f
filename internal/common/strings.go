package common

// TruncateRunes shortens s to at most n runes. Cutting on rune
// boundaries keeps truncated model input and persisted content valid
// UTF-8; a byte slice could split a multi-byte sequence.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
