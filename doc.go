// SPDX-License-Identifier: GPL-3.0-or-later

// Package fdsock provides owned wrappers around POSIX TCP socket descriptors.
//
// # Core Abstraction
//
// Each wrapper exclusively owns one OS descriptor and a [Status]:
//
//   - [Socket]: the descriptor resource, with address family and protocol
//     introspection, blocking mode control, and close discipline
//   - [Conn]: a connection-oriented socket with chunked send, drain-style
//     receive, readiness check, and half-close detection
//   - [Listener]: a passive-open socket with bind, listen, and accept
//
// [Conn] and [Listener] embed a [*Socket], so the operations shared by all
// three (close, status, addresses, blocking mode) form the [Handle] interface.
//
// # Ownership
//
// A descriptor is released exactly once. [*Socket.Close] releases it and
// sets [StatusDisconnected]; calling Close again does not touch the OS and
// sets [StatusInvalid]. The Move methods transfer the descriptor to a new
// wrapper and leave the source without a descriptor in [StatusInvalid].
// If a wrapper becomes unreachable while still owning its descriptor, the
// descriptor is closed by a [runtime.AddCleanup] safety net; do not rely on
// it for timely release.
//
// # Errors
//
// Constructors ([NewSocket], [WrapSocket], [NewConn], [WrapConn],
// [NewListener]) either return a usable wrapper or an [*OpError] naming the
// failed step, never a half-constructed value.
//
// Runtime operations never panic. They report outcomes through their return
// values and through status transitions:
//
//   - [ErrWouldBlock]: the non-blocking operation cannot complete yet (no
//     status change)
//   - [io.EOF] from [*Conn.Recv], or true from [*Conn.QueryConnectionClosed]:
//     the peer performed an orderly close ([StatusDisconnected])
//   - an [*OpError] wrapping EPIPE from [*Conn.Send]: broken pipe
//     ([StatusDisconnected])
//   - any other [*OpError]: unexpected failure ([StatusError])
//
// Check [*Socket.IsOpen] after each operation and stop using a wrapper once
// it returns false. Only a new wrapper recovers from [StatusError] or
// [StatusInvalid].
//
// # Concurrency
//
// Wrappers are not safe for concurrent use; distinct wrappers over distinct
// descriptors are independent. Operations on a blocking socket block the
// calling goroutine's OS thread and cannot be cancelled. Callers needing
// cancellable I/O should use non-blocking mode and poll with
// [*Conn.HasData] and [*Listener.Accept], or hand the connection to the Go
// runtime poller with [*Conn.NetConn].
//
// # Observability
//
// All wrappers support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Lifecycle events (socket,
// connect, listen, accept, close) are emitted at [slog.LevelInfo] as
// *Start/*Done pairs; per-I/O events (send, recv, peek, poll) at
// [slog.LevelDebug]. Completion events include t0, t, err, and errClass,
// where errClass comes from the configured [ErrClassifier].
//
// Use [NewSpanID] to tag all events of a connection with a shared spanID.
//
// # Design Boundaries
//
// The wrappers expose raw byte-stream semantics. Protocol framing, I/O
// multiplexing, TLS, connection pooling, and retry logic are out of scope.
package fdsock
