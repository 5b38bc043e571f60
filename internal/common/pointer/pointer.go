package pointer

import "time"

// Pointer returns a pointer to a copy of v, e.g. for optional limits such as a cluster's job cap.
func Pointer[T any](v T) *T {
	return &v
}

// Time returns a pointer to a copy of t.
func Time(t time.Time) *time.Time {
	return &t
}
