package sandbox

import "errors"

// Staging and lifecycle errors. Execution outcomes are reported through
// Status, never through these.
var (
	ErrInvalidRequest  = errors.New("invalid sandbox request")
	ErrPathConflict    = errors.New("workspace path already in use")
	ErrIO              = errors.New("sandbox io failure")
	ErrNotPrepared     = errors.New("sandbox not prepared")
	ErrAlreadyPrepared = errors.New("sandbox already prepared")
	ErrAlreadyTerminal = errors.New("sandbox already in a terminal state")
)
