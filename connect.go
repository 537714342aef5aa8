//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package fdsock

import (
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"
)

// NewConn connects to the given address and port (active open).
//
// The cfg argument contains the common configuration for sockets.
//
// The family argument selects IPv4 or IPv6; address must be a literal of
// that family in standard textual notation (e.g., "127.0.0.1" or "::1").
//
// The connect itself always blocks. When blocking is false, the connection
// switches to non-blocking mode once established.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// Returns either a [*Conn] in [StatusConnected] or an [*OpError] naming
// the target, never both.
func NewConn(cfg *Config, family Family, address string, port uint16, blocking bool, logger SLogger) (*Conn, error) {
	addr, err := parseAddr(family, address)
	if err != nil {
		return nil, &OpError{Op: "connect", Addr: net.JoinHostPort(address, strconv.Itoa(int(port))), Err: err}
	}
	endpoint := netip.AddrPortFrom(addr, port)

	s := newSocket(cfg, logger)
	if err := s.open(family, Stream); err != nil {
		return nil, err
	}

	t0 := s.TimeNow()
	s.logConnectStart(endpoint, t0)
	err = s.connect(endpoint, blocking)
	s.logConnectDone(endpoint, t0, err)

	if err != nil {
		s.Close()
		return nil, err
	}
	s.status = StatusConnected
	return &Conn{s}, nil
}

// connect connects, applies the blocking mode, and refreshes the addresses.
func (s *Socket) connect(endpoint netip.AddrPort, blocking bool) error {
	if err := s.sys.Connect(s.fd, toSockaddr(endpoint)); err != nil {
		return &OpError{Op: "connect", Addr: endpoint.String(), Err: err}
	}
	if !blocking {
		if err := s.SetBlocking(false); err != nil {
			return err
		}
	}
	return s.refreshSockInfo(true)
}

func (s *Socket) logConnectStart(endpoint netip.AddrPort, t0 time.Time) {
	s.Logger.Info(
		"connectStart",
		slog.Int("fd", s.fd),
		slog.String("protocol", network(s.family, s.protocol)),
		slog.String("remoteAddr", endpoint.String()),
		slog.Time("t", t0),
	)
}

func (s *Socket) logConnectDone(endpoint netip.AddrPort, t0 time.Time, err error) {
	s.Logger.Info(
		"connectDone",
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.Int("fd", s.fd),
		slog.String("localAddr", addrString(s.laddr)),
		slog.String("protocol", network(s.family, s.protocol)),
		slog.String("remoteAddr", endpoint.String()),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)
}
