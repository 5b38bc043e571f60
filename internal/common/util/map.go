package util

// MergeMaps returns a new map with the entries of b laid over those of a.
func MergeMaps[K comparable, V any](a map[K]V, b map[K]V) map[K]V {
	result := make(map[K]V, len(a)+len(b))
	for k, v := range a {
		result[k] = v
	}
	for k, v := range b {
		result[k] = v
	}
	return result
}
