package templating

import "fmt"

// ErrUnknownVariable is returned when a ${MAP}[key] lookup names a map or key variable that was never declared.
type ErrUnknownVariable struct {
	Name string
	Text string
}

func (err *ErrUnknownVariable) Error() string {
	return fmt.Sprintf("map lookup references undeclared variable %q in %q", err.Name, err.Text)
}
