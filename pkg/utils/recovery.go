package utils

import (
	"fmt"
	"runtime/debug"
)

// PanicError wraps a panic value as an error
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverWithCallback recovers from a panic and passes it to callback as a
// *PanicError. It must be deferred directly.
func RecoverWithCallback(callback func(error)) {
	if r := recover(); r != nil {
		err := &PanicError{Value: r, StackTrace: string(debug.Stack())}
		if callback != nil {
			callback(err)
		}
	}
}
