// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import "fmt"

// Status is the lifecycle state of a socket.
//
// A socket starts in [StatusInit] and leaves it when construction succeeds.
// [StatusError] and [StatusInvalid] are terminal: nothing but building a new
// socket gets out of them.
type Status uint8

const (
	// StatusInit is the state before construction completes.
	StatusInit Status = iota

	// StatusOK is a freshly created socket that is neither connected nor listening.
	StatusOK

	// StatusError follows an unexpected I/O failure.
	StatusError

	// StatusConnected is an established connection.
	StatusConnected

	// StatusDisconnected follows an orderly peer close, a broken pipe, or Close.
	StatusDisconnected

	// StatusListening is a bound socket accepting connections.
	StatusListening

	// StatusInvalid follows Close on a socket without a handle, including
	// a socket whose handle was moved elsewhere.
	StatusInvalid
)

// String implements [fmt.Stringer].
func (s Status) String() string {
	switch s {
	case StatusInit:
		return "INIT"
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusListening:
		return "LISTENING"
	case StatusInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}
