package storage

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("storage: not found")
