package auction

import "errors"

// ErrNoChange is returned by an ApplyUpdate mutation callback to abort the
// write cleanly: the store rolls back, persists nothing, and surfaces this
// sentinel so the caller knows the record was left untouched.
var ErrNoChange = errors.New("auction: no change")
