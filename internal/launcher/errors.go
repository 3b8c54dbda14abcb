package launcher

import "errors"

// ErrInterrupted is returned when an interrupt arrives after every setup
// step succeeded but before the application started.
var ErrInterrupted = errors.New("launcher: interrupted before the application started")
