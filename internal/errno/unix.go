//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/unix.go
//

// Package errno maps socket system call failures to the few conditions
// that drive socket status transitions.
package errno

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	errEAGAIN      = unix.EAGAIN
	errEWOULDBLOCK = unix.EWOULDBLOCK
	errEINPROGRESS = unix.EINPROGRESS
	errEINTR       = unix.EINTR
	errEMSGSIZE    = unix.EMSGSIZE
	errEPIPE       = unix.EPIPE
)

// IsWouldBlock reports whether err means the operation cannot complete
// without waiting. EAGAIN and EWOULDBLOCK share a value on most systems
// but POSIX allows them to differ.
func IsWouldBlock(err error) bool {
	return errors.Is(err, errEAGAIN) || errors.Is(err, errEWOULDBLOCK)
}

// IsBrokenPipe reports whether a write failed because the peer has
// already closed its end of the connection.
func IsBrokenPipe(err error) bool {
	return errors.Is(err, errEPIPE)
}

// IsMessageTooLong reports whether a write was rejected because the
// payload exceeds the transport's maximum single-write size.
func IsMessageTooLong(err error) bool {
	return errors.Is(err, errEMSGSIZE)
}

// IsInterrupted reports whether a system call was interrupted by a signal.
func IsInterrupted(err error) bool {
	return errors.Is(err, errEINTR)
}

// IsInProgress reports whether a connect is still completing in the background.
func IsInProgress(err error) bool {
	return errors.Is(err, errEINPROGRESS)
}
