package appconfig

import "errors"

// Field errors. Both are reported together with flatconf.ErrInvalidShape so
// callers can treat every shape problem the same way.
var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidField = errors.New("invalid field")
)
