// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import "errors"

var (
	// ErrWouldBlock indicates that a non-blocking operation cannot complete
	// without waiting: no data to read, no room to write, or no pending
	// connection to accept. It is not a failure and leaves the status unchanged.
	ErrWouldBlock = errors.New("fdsock: operation would block")

	// ErrInvalidAddress indicates that a textual address could not be
	// converted to the requested family.
	ErrInvalidAddress = errors.New("fdsock: invalid address")

	// ErrInvalidHandle indicates an attempt to wrap a negative descriptor.
	ErrInvalidHandle = errors.New("fdsock: invalid handle")
)

// OpError is the error returned when a socket operation fails.
//
// Constructors return an *OpError when acquiring the socket resource
// fails, in which case no socket is returned. Runtime operations return
// an *OpError alongside the corresponding status transition.
type OpError struct {
	// Op is the failed operation (e.g., "socket", "bind", "connect", "send").
	Op string

	// Addr is the endpoint involved, if any.
	Addr string

	// Err is the underlying error, usually a [golang.org/x/sys/unix.Errno].
	Err error
}

// Error implements error.
func (e *OpError) Error() string {
	msg := "fdsock: " + e.Op
	if e.Addr != "" {
		msg += " " + e.Addr
	}
	return msg + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}
