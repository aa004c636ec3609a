package graph

import "errors"

// ErrNotFound is returned by Repository lookups when no row matches.
var ErrNotFound = errors.New("not found")
