//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"net"
	"os"
	"time"
)

// Config holds common configuration for sockets.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// FileConn converts an open file into a [net.Conn] for [*Conn.NetConn].
	//
	// Set by [NewConfig] to [net.FileConn].
	FileConn func(f *os.File) (net.Conn, error)

	// Syscalls performs the socket system calls.
	//
	// Set by [NewConfig] to [UnixSyscalls].
	Syscalls Syscalls

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		ErrClassifier: DefaultErrClassifier,
		FileConn:      net.FileConn,
		Syscalls:      UnixSyscalls{},
		TimeNow:       time.Now,
	}
}
