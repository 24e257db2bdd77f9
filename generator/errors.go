package generator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput reports empty or malformed caller-supplied data. It is
// never worth retrying.
var ErrInvalidInput = errors.New("invalid input")

// SynthesisError reports model output that could not be used at all.
type SynthesisError struct {
	Reason string
	// Snippet is a prefix of the raw model output.
	Snippet string
	Err     error
}

func (e *SynthesisError) Error() string {
	msg := "synthesis: " + e.Reason
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (raw=%q)", e.Snippet)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// MissingFieldError reports a required key absent from the model output.
type MissingFieldError struct {
	Field   string
	Closest []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("synthesis: missing key %q in model output%s", e.Field, closestSuffix(e.Closest))
}

// FieldTooLongError reports a field exceeding its character limit.
type FieldTooLongError struct {
	Field   string
	Length  int
	Limit   int
	Closest []string
}

func (e *FieldTooLongError) Error() string {
	return fmt.Sprintf("synthesis: %s too long; got %d chars, limit %d%s", e.Field, e.Length, e.Limit, closestSuffix(e.Closest))
}

// EmptyFieldError reports a field that must carry content but is blank.
type EmptyFieldError struct {
	Field string
}

func (e *EmptyFieldError) Error() string {
	return fmt.Sprintf("synthesis: %s is empty", e.Field)
}

// MalformedFieldError reports a field whose value does not have the required
// shape, such as a slug that is not lowercase kebab-case.
type MalformedFieldError struct {
	Field string
	Value string
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("synthesis: %s %q is malformed", e.Field, e.Value)
}

// IsOutputError reports whether err means the model produced unusable or
// non-conforming output. Callers may retry the whole synthesis call on these.
func IsOutputError(err error) bool {
	var (
		synthErr   *SynthesisError
		missingErr *MissingFieldError
		longErr    *FieldTooLongError
		emptyErr   *EmptyFieldError
		shapeErr   *MalformedFieldError
	)
	return errors.As(err, &synthErr) ||
		errors.As(err, &missingErr) ||
		errors.As(err, &longErr) ||
		errors.As(err, &emptyErr) ||
		errors.As(err, &shapeErr)
}

func closestSuffix(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	return fmt.Sprintf("; closest keys: [%s]", strings.Join(keys, ", "))
}
