package pool

import "errors"

var (
	// ErrPoolClosed is returned by Submit after Release.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrPoolOverload is returned by a nonblocking pool when no worker is
	// available and the waiting queue is full.
	ErrPoolOverload = errors.New("worker pool is overloaded")
)
