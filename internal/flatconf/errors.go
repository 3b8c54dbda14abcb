package flatconf

import (
	"errors"
	"fmt"
)

// Domain errors for the flat encoding.
var (
	// ErrInvalidShape is returned for any tree that cannot be encoded:
	// bad or duplicate keys, null values, unsupported Go types.
	ErrInvalidShape = errors.New("invalid configuration shape")

	// ErrMalformedLine is returned by Parse for a line without a payload.
	ErrMalformedLine = errors.New("malformed encoded line")

	// ErrPathNotFound is returned by Document lookups for unknown paths.
	ErrPathNotFound = errors.New("path not found")
)

// ShapeError identifies where in the tree a shape problem was found.
// It matches ErrInvalidShape with errors.Is.
type ShapeError struct {
	Path   string // flat path of the offending node, "/" for the root
	Key    string // offending key, empty when the problem is a value
	Line   int    // source line when known (YAML input), otherwise 0
	Reason string
}

func (e *ShapeError) Error() string {
	msg := fmt.Sprintf("%s at %s", ErrInvalidShape, displayPath(e.Path))
	if e.Key != "" {
		msg += fmt.Sprintf(": key %q", e.Key)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	return msg + ": " + e.Reason
}

// Unwrap lets errors.Is(err, ErrInvalidShape) match.
func (e *ShapeError) Unwrap() error {
	return ErrInvalidShape
}

func displayPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
