package mailbox

import "errors"

var (
	// ErrDataDirUnavailable is returned when the application data directory
	// cannot be resolved.
	ErrDataDirUnavailable = errors.New("mailbox: data directory unavailable")

	// ErrIO is returned when creating the directory or writing the record fails.
	ErrIO = errors.New("mailbox: i/o failure")
)
