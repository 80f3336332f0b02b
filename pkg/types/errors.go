package types

import "fmt"

// ConfigurationError reports a malformed request or configuration. It is
// always raised before any backend call.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Is implements errors.Is support for ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// NewConfigurationError creates a configuration error for the given field.
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// BackendResponseError reports a backend answer whose shape does not match
// the request for one chunk. It aborts the scoring call and is never retried.
type BackendResponseError struct {
	Chunk    int
	Expected int
	Actual   int
	Message  string
}

func (e *BackendResponseError) Error() string {
	msg := fmt.Sprintf("backend response error: chunk %d: expected %d scores, got %d", e.Chunk, e.Expected, e.Actual)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is implements errors.Is support for BackendResponseError.
func (e *BackendResponseError) Is(target error) bool {
	_, ok := target.(*BackendResponseError)
	return ok
}

// DegenerateGroupError reports a group whose score slice is empty while the
// aggregation function needs at least one element.
type DegenerateGroupError struct {
	Group  string
	Method string
	Size   int
}

func (e *DegenerateGroupError) Error() string {
	return fmt.Sprintf("degenerate group %q: %d candidates, aggregation %q needs a non-empty slice", e.Group, e.Size, e.Method)
}

// Is implements errors.Is support for DegenerateGroupError.
func (e *DegenerateGroupError) Is(target error) bool {
	_, ok := target.(*DegenerateGroupError)
	return ok
}

// NormalizationError reports a zero or non-finite sum of group scores.
type NormalizationError struct {
	Sum    float64
	Groups map[string]float64
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("cannot normalize group scores: sum is %v (groups: %v)", e.Sum, e.Groups)
}

// Is implements errors.Is support for NormalizationError.
func (e *NormalizationError) Is(target error) bool {
	_, ok := target.(*NormalizationError)
	return ok
}
