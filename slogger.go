// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

// SLogger is the structured logger that sockets report their events to.
//
// Each [*Socket], [*Conn], and [*Listener] holds one in its Logger field,
// so replacing it redirects the events of that socket alone. Pass a
// [*slog.Logger] carrying a spanID attribute (see [NewSpanID]) to tell
// the events of distinct connections apart.
//
// Events about the descriptor lifetime (socketStart, connectDone,
// listenDone, acceptDone, closeDone, netConnDone) go to Info. Events
// emitted on every send, recv, peek, poll, or blocking mode change go
// to Debug, so a logger at Info level sees only the lifetime.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// DefaultSLogger returns an [SLogger] dropping every event.
//
// Constructors never log unless the caller passes a real logger.
func DefaultSLogger() SLogger {
	return discardSLogger{}
}

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

func (discardSLogger) Debug(msg string, args ...any) {}

func (discardSLogger) Info(msg string, args ...any) {}
