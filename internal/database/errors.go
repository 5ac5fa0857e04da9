package database

import "errors"

// ErrNotFound is returned by every backend when a session or email index
// entry does not exist. Callers match it with errors.Is.
var ErrNotFound = errors.New("record not found")
