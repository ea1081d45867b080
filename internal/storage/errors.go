package storage

import "errors"

// ErrNoActiveSession is returned when an operation requires an active
// session and none is recorded
var ErrNoActiveSession = errors.New("no active session")
