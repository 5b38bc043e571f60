package logging

import "github.com/pkg/errors"

// TopmostWithCause follows err's chain through both Cause() and Unwrap() and returns the error directly
// preceding the root, which is the one wrapping the root error with a stack trace when pkg/errors was used.
// An error that wraps nothing is returned as is.
func TopmostWithCause(err error) error {
	for {
		next := unwrapOnce(err)
		if next == nil || unwrapOnce(next) == nil {
			return err
		}
		err = next
	}
}

func unwrapOnce(err error) error {
	if c, ok := err.(interface{ Cause() error }); ok {
		return c.Cause()
	}
	return errors.Unwrap(err)
}
