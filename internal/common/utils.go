package common

// LastN returns a copy of the last n elements of s (all of s when shorter).
func LastN[T any](s []T, n int) []T {
	if n <= 0 {
		return []T{}
	}
	if n > len(s) {
		n = len(s)
	}
	out := make([]T, n)
	copy(out, s[len(s)-n:])
	return out
}
