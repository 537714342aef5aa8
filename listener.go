//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/bassosimone/fdsock/internal/errno"
	"golang.org/x/sys/unix"
)

// Listener is a passive-open stream socket accepting inbound connections.
//
// A Listener stays in [StatusListening] until closed: accepting never
// changes its status, and each accepted [*Conn] is independently owned.
type Listener struct {
	*Socket
}

var _ Handle = &Listener{}

// NewListener binds to the given address and port and starts listening.
//
// The cfg argument contains the common configuration for sockets.
//
// The family argument selects IPv4 or IPv6; address must be a literal of
// that family (e.g., "0.0.0.0" or "::"). A zero port selects an ephemeral
// port, which [*Socket.Port] reports once constructed.
//
// SO_REUSEADDR and SO_REUSEPORT are enabled before binding and the backlog
// is the platform maximum. When blocking is false, [*Listener.Accept]
// never waits.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// Returns either a [*Listener] or an [*OpError] naming the address, never both.
func NewListener(cfg *Config, family Family, address string, port uint16, blocking bool, logger SLogger) (*Listener, error) {
	addr, err := parseAddr(family, address)
	if err != nil {
		return nil, &OpError{Op: "bind", Addr: net.JoinHostPort(address, strconv.Itoa(int(port))), Err: err}
	}
	endpoint := netip.AddrPortFrom(addr, port)

	s := newSocket(cfg, logger)
	if err := s.open(family, Stream); err != nil {
		return nil, err
	}

	t0 := s.TimeNow()
	s.logListenStart(endpoint, t0)
	err = s.listen(endpoint, blocking)
	s.logListenDone(endpoint, t0, err)

	if err != nil {
		s.Close()
		return nil, err
	}
	s.status = StatusListening
	return &Listener{s}, nil
}

// listen enables address reuse, binds, listens, and applies the blocking mode.
func (s *Socket) listen(endpoint netip.AddrPort, blocking bool) error {
	options := []struct {
		name  string
		value int
	}{
		{"SO_REUSEADDR", unix.SO_REUSEADDR},
		{"SO_REUSEPORT", unix.SO_REUSEPORT},
	}
	for _, option := range options {
		if err := s.sys.SetsockoptInt(s.fd, unix.SOL_SOCKET, option.value, 1); err != nil {
			return &OpError{Op: "setsockopt " + option.name, Addr: endpoint.String(), Err: err}
		}
	}
	if err := s.sys.Bind(s.fd, toSockaddr(endpoint)); err != nil {
		return &OpError{Op: "bind", Addr: endpoint.String(), Err: err}
	}
	if err := s.sys.Listen(s.fd, unix.SOMAXCONN); err != nil {
		return &OpError{Op: "listen", Addr: endpoint.String(), Err: err}
	}
	if !blocking {
		if err := s.SetBlocking(false); err != nil {
			return err
		}
	}
	return s.refreshSockInfo(false)
}

// Move transfers ownership of the descriptor to the returned [*Listener].
//
// Afterwards l has no descriptor and is in [StatusInvalid].
func (l *Listener) Move() *Listener {
	return &Listener{l.Socket.transfer()}
}

// Accept accepts one pending connection.
//
// On success it returns a new [*Conn] in [StatusConnected] with its
// addresses resolved. The accepted connection shares the listener's
// logger and configuration but not its blocking mode, which is read
// from the new descriptor.
//
// On a non-blocking listener without pending connections it returns
// [ErrWouldBlock]. Any other failure is returned as an [*OpError].
// In all cases the listener's status is unchanged.
func (l *Listener) Accept() (*Conn, error) {
	if l.fd == -1 {
		return nil, &OpError{Op: "accept", Err: net.ErrClosed}
	}

	t0 := l.TimeNow()
	fd, err := l.sys.Accept(l.fd)
	if err != nil {
		l.logAcceptDone(t0, nil, err)
		if errno.IsWouldBlock(err) {
			return nil, ErrWouldBlock
		}
		return nil, &OpError{Op: "accept", Addr: addrString(l.laddr), Err: err}
	}

	conn, err := wrapConn(l.derive(), fd)
	l.logAcceptDone(t0, conn, err)
	return conn, err
}

func (s *Socket) logListenStart(endpoint netip.AddrPort, t0 time.Time) {
	s.Logger.Info(
		"listenStart",
		slog.Int("fd", s.fd),
		slog.String("localAddr", endpoint.String()),
		slog.String("protocol", network(s.family, s.protocol)),
		slog.Time("t", t0),
	)
}

func (s *Socket) logListenDone(endpoint netip.AddrPort, t0 time.Time, err error) {
	laddr := addrString(s.laddr)
	if laddr == "" {
		laddr = endpoint.String()
	}
	s.Logger.Info(
		"listenDone",
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.Int("fd", s.fd),
		slog.String("localAddr", laddr),
		slog.String("protocol", network(s.family, s.protocol)),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
}

func (l *Listener) logAcceptDone(t0 time.Time, conn *Conn, err error) {
	var (
		fd    = -1
		raddr string
	)
	if conn != nil {
		fd, raddr = conn.fd, addrString(conn.raddr)
	}
	l.Logger.Info(
		"acceptDone",
		slog.Any("err", err),
		slog.String("errClass", l.ErrClassifier.Classify(err)),
		slog.Int("fd", fd),
		slog.String("localAddr", addrString(l.laddr)),
		slog.String("protocol", network(l.family, l.protocol)),
		slog.String("remoteAddr", raddr),
		slog.Time("t0", t0),
		slog.Time("t", l.TimeNow()),
	)
}
