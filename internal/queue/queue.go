// Package queue holds errors shared by the queue implementations.
package queue

import "errors"

// ErrClosed is returned once a queue has been shut down.
var ErrClosed = errors.New("queue closed")
