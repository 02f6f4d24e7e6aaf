package digester

import (
	"errors"
	"fmt"
)

// ErrStackUnderflow is returned when a rule needs an object that was never
// pushed, usually because a create rule is missing from the table.
var ErrStackUnderflow = errors.New("digester: object stack underflow")

// StackTypeError reports a rule that found an object of the wrong type on top
// of the stack.
type StackTypeError struct {
	Want string
	Got  string
}

func (e *StackTypeError) Error() string {
	return fmt.Sprintf("digester: stack top is %s, want %s", e.Got, e.Want)
}

// FieldError is a recovered failure to bind one element. The field it would
// have set is left unchanged and binding continues.
type FieldError struct {
	Path string // element path
	Text string // offending text
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: invalid value %q: %v", e.Path, e.Text, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
