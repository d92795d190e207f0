package settings

import "errors"

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("settings: key not found")
