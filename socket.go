//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"log/slog"
	"net"
	"net/netip"
	"os"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// Handle is the set of operations shared by [*Socket], [*Conn], and [*Listener].
type Handle interface {
	Address() netip.Addr
	Close() error
	Equal(other Handle) bool
	FD() int
	Family() Family
	IsBlocking() bool
	IsError() bool
	IsOpen() bool
	LocalAddr() netip.AddrPort
	PeerAddr() netip.AddrPort
	Port() uint16
	Protocol() Protocol
	SetBlocking(blocking bool) error
	Status() Status
}

// Socket owns exactly one OS socket descriptor and tracks its [Status].
//
// The descriptor is released exactly once: by [*Socket.Close], or, if the
// caller forgets to close it, when the Socket becomes unreachable. Use
// [*Socket.Move] to transfer ownership to a new value.
//
// Accessors return state cached when the socket was created, connected, or
// accepted; they never query the OS.
//
// A Socket is not safe for concurrent use. Distinct sockets are independent.
//
// All exported fields are safe to modify after construction but before
// first use.
type Socket struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by constructors from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by constructors to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time.
	//
	// Set by constructors from [Config.TimeNow].
	TimeNow func() time.Time

	blocking bool
	cleanup  runtime.Cleanup
	family   Family
	fd       int
	fileConn func(f *os.File) (net.Conn, error)
	laddr    netip.AddrPort
	protocol Protocol
	raddr    netip.AddrPort
	status   Status
	sys      Syscalls
}

var _ Handle = &Socket{}

// NewSocket creates a new socket of the given family and protocol.
//
// The cfg argument contains the common configuration for sockets.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// On success the socket is in [StatusOK] and in blocking mode. On failure
// it returns an [*OpError] and no socket.
func NewSocket(cfg *Config, family Family, protocol Protocol, logger SLogger) (*Socket, error) {
	s := newSocket(cfg, logger)
	if err := s.open(family, protocol); err != nil {
		return nil, err
	}
	s.status = StatusOK
	return s, nil
}

// WrapSocket takes ownership of an existing socket descriptor.
//
// The cfg argument contains the common configuration for sockets.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// The family, protocol, blocking mode, and local address are read from the
// descriptor. On failure the descriptor is closed, unless it is negative,
// in which case the error wraps [ErrInvalidHandle].
func WrapSocket(cfg *Config, fd int, logger SLogger) (*Socket, error) {
	s := newSocket(cfg, logger)
	if err := s.adopt(fd, false); err != nil {
		return nil, err
	}
	s.status = StatusOK
	return s, nil
}

// newSocket returns a [*Socket] without a descriptor in [StatusInit].
func newSocket(cfg *Config, logger SLogger) *Socket {
	return &Socket{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
		blocking:      true,
		fd:            -1,
		fileConn:      cfg.FileConn,
		status:        StatusInit,
		sys:           cfg.Syscalls,
	}
}

// derive returns a [*Socket] without a descriptor sharing our dependencies.
func (s *Socket) derive() *Socket {
	return &Socket{
		ErrClassifier: s.ErrClassifier,
		Logger:        s.Logger,
		TimeNow:       s.TimeNow,
		blocking:      true,
		fd:            -1,
		fileConn:      s.fileConn,
		status:        StatusInit,
		sys:           s.sys,
	}
}

// open creates the descriptor.
func (s *Socket) open(family Family, protocol Protocol) error {
	domain, err := family.sysFamily()
	if err != nil {
		return &OpError{Op: "socket", Err: err}
	}
	typ, err := protocol.sysType()
	if err != nil {
		return &OpError{Op: "socket", Err: err}
	}

	t0 := s.TimeNow()
	s.Logger.Info(
		"socketStart",
		slog.String("protocol", network(family, protocol)),
		slog.Time("t", t0),
	)

	fd, err := s.sys.Socket(domain, typ, 0)

	s.Logger.Info(
		"socketDone",
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.Int("fd", fd),
		slog.String("protocol", network(family, protocol)),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)

	if err != nil {
		return &OpError{Op: "socket", Err: err}
	}
	s.own(fd)
	s.family, s.protocol = family, protocol
	return nil
}

// adopt takes ownership of fd and reads its properties, closing fd on failure.
//
// When connected is true, the peer address is also resolved.
func (s *Socket) adopt(fd int, connected bool) error {
	if fd < 0 {
		return &OpError{Op: "wrap", Err: ErrInvalidHandle}
	}
	s.own(fd)
	if err := s.inspect(connected); err != nil {
		s.Close()
		return err
	}
	return nil
}

// inspect reads the protocol, blocking mode, and addresses of the descriptor.
func (s *Socket) inspect(connected bool) error {
	value, err := s.sys.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return &OpError{Op: "getsockopt", Err: err}
	}
	protocol, err := protocolFromSysType(value)
	if err != nil {
		return &OpError{Op: "getsockopt", Err: err}
	}
	nonblocking, err := s.sys.Nonblocking(s.fd)
	if err != nil {
		return &OpError{Op: "fcntl", Err: err}
	}
	s.protocol, s.blocking = protocol, !nonblocking
	return s.refreshSockInfo(connected)
}

// refreshSockInfo snapshots the local and, optionally, the peer address.
func (s *Socket) refreshSockInfo(connected bool) error {
	sa, err := s.sys.Getsockname(s.fd)
	if err != nil {
		return &OpError{Op: "getsockname", Err: err}
	}
	laddr, family, err := fromSockaddr(sa)
	if err != nil {
		return &OpError{Op: "getsockname", Err: err}
	}
	s.laddr, s.family = laddr, family
	if !connected {
		return nil
	}
	sa, err = s.sys.Getpeername(s.fd)
	if err != nil {
		return &OpError{Op: "getpeername", Addr: addrString(laddr), Err: err}
	}
	raddr, _, err := fromSockaddr(sa)
	if err != nil {
		return &OpError{Op: "getpeername", Addr: addrString(laddr), Err: err}
	}
	s.raddr = raddr
	return nil
}

// own records fd and arranges for it to be closed if s is never closed.
func (s *Socket) own(fd int) {
	s.fd = fd
	sys := s.sys
	s.cleanup = runtime.AddCleanup(s, func(fd int) {
		_ = sys.Close(fd)
	}, fd)
}

// transfer moves the descriptor and the cached state to a new [*Socket],
// leaving s without a descriptor and in [StatusInvalid].
func (s *Socket) transfer() *Socket {
	moved := s.derive()
	moved.blocking = s.blocking
	moved.family = s.family
	moved.laddr = s.laddr
	moved.protocol = s.protocol
	moved.raddr = s.raddr
	moved.status = s.status
	if s.fd != -1 {
		s.cleanup.Stop()
		moved.own(s.fd)
	}
	s.cleanup = runtime.Cleanup{}
	s.fd = -1
	s.status = StatusInvalid
	return moved
}

// Move transfers ownership of the descriptor to the returned [*Socket].
//
// Afterwards s has no descriptor and is in [StatusInvalid]. Calling Close
// on s does not touch the OS.
func (s *Socket) Move() *Socket {
	return s.transfer()
}

// Close releases the descriptor and sets [StatusDisconnected].
//
// Calling Close on a socket without a descriptor, because it was already
// closed or moved, does not touch the OS and sets [StatusInvalid].
//
// The descriptor is released even when the OS reports an error; the error
// is returned for information only.
func (s *Socket) Close() error {
	if s.fd == -1 {
		s.status = StatusInvalid
		return nil
	}

	fd := s.fd
	t0 := s.TimeNow()
	s.Logger.Info(
		"closeStart",
		slog.Int("fd", fd),
		slog.String("localAddr", addrString(s.laddr)),
		slog.String("protocol", network(s.family, s.protocol)),
		slog.String("remoteAddr", addrString(s.raddr)),
		slog.Time("t", t0),
	)

	s.cleanup.Stop()
	s.cleanup = runtime.Cleanup{}
	err := s.sys.Close(fd)
	s.fd = -1
	s.status = StatusDisconnected

	s.Logger.Info(
		"closeDone",
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.Int("fd", fd),
		slog.String("localAddr", addrString(s.laddr)),
		slog.String("protocol", network(s.family, s.protocol)),
		slog.String("remoteAddr", addrString(s.raddr)),
		slog.Time("t0", t0),
		slog.Time("t", s.TimeNow()),
	)

	if err != nil {
		return &OpError{Op: "close", Addr: addrString(s.laddr), Err: err}
	}
	return nil
}

// SetBlocking switches the descriptor between blocking and non-blocking mode.
func (s *Socket) SetBlocking(blocking bool) error {
	if s.fd == -1 {
		return &OpError{Op: "fcntl", Err: net.ErrClosed}
	}

	err := s.sys.SetNonblock(s.fd, !blocking)

	s.Logger.Debug(
		"setBlocking",
		slog.Bool("blocking", blocking),
		slog.Any("err", err),
		slog.String("errClass", s.ErrClassifier.Classify(err)),
		slog.Int("fd", s.fd),
		slog.String("localAddr", addrString(s.laddr)),
		slog.String("protocol", network(s.family, s.protocol)),
		slog.String("remoteAddr", addrString(s.raddr)),
		slog.Time("t", s.TimeNow()),
	)

	if err != nil {
		return &OpError{Op: "fcntl", Addr: addrString(s.laddr), Err: err}
	}
	s.blocking = blocking
	return nil
}

// IsBlocking reports whether the descriptor is in blocking mode.
func (s *Socket) IsBlocking() bool {
	return s.blocking
}

// Status returns the current [Status].
func (s *Socket) Status() Status {
	return s.status
}

// FD returns the descriptor, or -1 if the socket no longer owns one.
//
// The descriptor remains owned by s: do not close it.
func (s *Socket) FD() int {
	return s.fd
}

// Family returns the address family.
func (s *Socket) Family() Family {
	return s.family
}

// Protocol returns the socket type.
func (s *Socket) Protocol() Protocol {
	return s.protocol
}

// LocalAddr returns the local endpoint snapshot.
func (s *Socket) LocalAddr() netip.AddrPort {
	return s.laddr
}

// PeerAddr returns the peer endpoint snapshot, which is the zero value
// unless the socket is a connection.
func (s *Socket) PeerAddr() netip.AddrPort {
	return s.raddr
}

// Address returns the local address.
func (s *Socket) Address() netip.Addr {
	return s.laddr.Addr()
}

// Port returns the local port.
func (s *Socket) Port() uint16 {
	return s.laddr.Port()
}

// IsOpen reports whether the status is [StatusConnected] or [StatusListening].
func (s *Socket) IsOpen() bool {
	return s.status == StatusConnected || s.status == StatusListening
}

// IsError reports whether the status is [StatusError].
func (s *Socket) IsError() bool {
	return s.status == StatusError
}

// Equal reports whether other refers to the same descriptor value.
//
// A nil other, including a typed nil, is never equal.
func (s *Socket) Equal(other Handle) bool {
	if isNilHandle(other) {
		return false
	}
	return s.fd == other.FD()
}

// isNilHandle reports whether h is nil or wraps a nil [*Socket].
func isNilHandle(h Handle) bool {
	switch v := h.(type) {
	case nil:
		return true
	case *Socket:
		return v == nil
	case *Conn:
		return v == nil || v.Socket == nil
	case *Listener:
		return v == nil || v.Socket == nil
	default:
		return false
	}
}

// String returns the local endpoint as "addr:port".
func (s *Socket) String() string {
	return addrString(s.laddr)
}

// addrString is like [netip.AddrPort.String] but returns an empty string
// for the zero value.
func addrString(endpoint netip.AddrPort) string {
	if !endpoint.IsValid() {
		return ""
	}
	return endpoint.String()
}
