// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 representing a span.
//
// A span is a sequence of operations sharing one lifetime, for example
// everything that happens on a connection between accept and close.
// Attach it to the logger passed to a constructor:
//
//	logger := slog.Default().With("spanID", fdsock.NewSpanID())
//
// This function panics if the system random number generator fails,
// which should only happen under extraordinary circumstances.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
