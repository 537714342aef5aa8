//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"

	"github.com/bassosimone/fdsock/internal/errno"
	"github.com/bassosimone/safeconn"
	"golang.org/x/sys/unix"
)

const (
	// sendChunkSize is the write size used once the transport rejects a
	// payload as too large for a single write.
	sendChunkSize = 1024

	// recvChunkSize is the size of each read performed by [*Conn.Recv].
	recvChunkSize = 1024
)

// Conn is a connection-oriented socket exchanging a raw byte stream.
//
// Create one with [NewConn] (active open), [*Listener.Accept] (passive
// open), or [WrapConn]. The connection starts in [StatusConnected].
//
// Runtime failures never panic. Each operation reports its outcome
// through its return values and through the [Status]:
//
//   - would block: [ErrWouldBlock], status unchanged
//   - orderly peer close: [io.EOF] from Recv, [StatusDisconnected]
//   - broken pipe on send: [*OpError], [StatusDisconnected]
//   - anything else: [*OpError], [StatusError]
//
// Stop using a Conn once [*Socket.IsOpen] returns false.
type Conn struct {
	*Socket
}

var _ Handle = &Conn{}

// WrapConn takes ownership of an already-connected stream descriptor.
//
// The cfg argument contains the common configuration for sockets.
//
// The logger argument is the [SLogger] to use for structured logging.
//
// On failure the descriptor is closed, unless it is negative, in which
// case the error wraps [ErrInvalidHandle].
func WrapConn(cfg *Config, fd int, logger SLogger) (*Conn, error) {
	return wrapConn(newSocket(cfg, logger), fd)
}

// wrapConn adopts fd into s and returns the corresponding [*Conn].
func wrapConn(s *Socket, fd int) (*Conn, error) {
	if err := s.adopt(fd, true); err != nil {
		return nil, err
	}
	s.status = StatusConnected
	return &Conn{s}, nil
}

// Move transfers ownership of the descriptor to the returned [*Conn].
//
// Afterwards c has no descriptor and is in [StatusInvalid].
func (c *Conn) Move() *Conn {
	return &Conn{c.Socket.transfer()}
}

// Send writes data with a single write attempt and returns the number of
// bytes the transport accepted, which may be less than len(data).
//
// When the transport rejects the payload as too large for one write, Send
// falls back to sequential writes of at most 1024 bytes and returns the
// cumulative count. The fallback stops at the first failing write.
//
// Callers must compare the returned count with len(data).
func (c *Conn) Send(data []byte) (int, error) {
	if c.fd == -1 {
		return 0, &OpError{Op: "send", Err: net.ErrClosed}
	}
	count, err := c.send(data)
	switch {
	case err == nil:
		return count, nil
	case errno.IsMessageTooLong(err):
		return c.sendChunked(data)
	default:
		return 0, c.sendFailed(err)
	}
}

// sendChunked writes data in chunks of at most sendChunkSize bytes.
func (c *Conn) sendChunked(data []byte) (int, error) {
	var total int
	for total < len(data) && c.IsOpen() {
		chunk := data[total:min(total+sendChunkSize, len(data))]
		count, err := c.send(chunk)
		if err != nil {
			return total, c.sendFailed(err)
		}
		if count <= 0 {
			break
		}
		total += count
	}
	if total < len(data) {
		return total, &OpError{Op: "send", Addr: addrString(c.raddr), Err: io.ErrShortWrite}
	}
	return total, nil
}

// sendFailed updates the status according to a failed write.
func (c *Conn) sendFailed(err error) error {
	switch {
	case errno.IsWouldBlock(err):
		return ErrWouldBlock
	case errno.IsBrokenPipe(err):
		c.status = StatusDisconnected
	default:
		c.status = StatusError
	}
	return &OpError{Op: "send", Addr: addrString(c.raddr), Err: err}
}

// send performs and logs a single write.
func (c *Conn) send(data []byte) (int, error) {
	t0 := c.TimeNow()
	c.Logger.Debug(
		"sendStart",
		slog.Int("fd", c.fd),
		slog.Int("ioBufferSize", len(data)),
		slog.String("localAddr", addrString(c.laddr)),
		slog.String("protocol", network(c.family, c.protocol)),
		slog.String("remoteAddr", addrString(c.raddr)),
		slog.Time("t", t0),
	)

	count, err := c.sys.Send(c.fd, data, 0)
	if err != nil {
		count = 0
	}

	c.Logger.Debug(
		"sendDone",
		slog.Int("fd", c.fd),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("localAddr", addrString(c.laddr)),
		slog.String("protocol", network(c.family, c.protocol)),
		slog.String("remoteAddr", addrString(c.raddr)),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)

	return count, err
}

// QueryConnectionClosed peeks at the receive queue without blocking and
// without consuming data.
//
// It returns true and sets [StatusDisconnected] if the peer performed an
// orderly close, or returns true and sets [StatusError] if the peek fails
// for a reason other than would-block. Otherwise it returns false and
// leaves the status unchanged. A socket without a descriptor is closed.
func (c *Conn) QueryConnectionClosed() bool {
	if c.fd == -1 {
		return true
	}

	var buf [1]byte
	t0 := c.TimeNow()
	count, err := c.sys.Recv(c.fd, buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)

	c.Logger.Debug(
		"peekDone",
		slog.Int("fd", c.fd),
		slog.Int("ioBytesCount", max(count, 0)),
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("localAddr", addrString(c.laddr)),
		slog.String("protocol", network(c.family, c.protocol)),
		slog.String("remoteAddr", addrString(c.raddr)),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)

	switch {
	case err == nil && count == 0:
		c.status = StatusDisconnected
		return true
	case err != nil && !errno.IsWouldBlock(err):
		c.status = StatusError
		return true
	default:
		return false
	}
}

// HasData reports whether the descriptor is readable right now.
//
// It never blocks. A pending orderly close also makes the descriptor
// readable. A failing readiness check sets [StatusError].
func (c *Conn) HasData() bool {
	if c.fd == -1 {
		return false
	}
	revents, err := c.poll()
	if err != nil {
		c.status = StatusError
		return false
	}
	return revents != 0
}

// poll performs and logs a zero-timeout readiness check.
func (c *Conn) poll() (int16, error) {
	t0 := c.TimeNow()
	revents, err := c.sys.Poll(c.fd, unix.POLLIN, 0)

	c.Logger.Debug(
		"pollDone",
		slog.Int("fd", c.fd),
		slog.Bool("readable", revents != 0),
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("localAddr", addrString(c.laddr)),
		slog.String("protocol", network(c.family, c.protocol)),
		slog.String("remoteAddr", addrString(c.raddr)),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)

	return revents, err
}

// Recv returns the bytes currently available on the connection.
//
// Reads happen 1024 bytes at a time. In blocking mode, Recv waits for the
// first read and keeps reading while more data is immediately available.
// In non-blocking mode, Recv performs exactly one read.
//
// The result is one of:
//
//   - (data, nil) with len(data) > 0
//   - (nil, [ErrWouldBlock]) when no data is available yet
//   - (data, [io.EOF]) after an orderly peer close, which sets
//     [StatusDisconnected]; data holds the bytes read before the close
//     and may be nil
//   - (data, [*OpError]) on any other failure, which sets [StatusError]
//
// A non-nil error never comes with an empty but non-nil slice.
func (c *Conn) Recv() ([]byte, error) {
	if c.fd == -1 {
		return nil, &OpError{Op: "recv", Err: net.ErrClosed}
	}

	var data []byte
	buf := make([]byte, recvChunkSize)
	for {
		count, err := c.recv(buf)
		switch {
		case err != nil && errno.IsWouldBlock(err):
			if len(data) == 0 {
				return nil, ErrWouldBlock
			}
			return data, nil

		case err != nil:
			c.status = StatusError
			return data, &OpError{Op: "recv", Addr: addrString(c.raddr), Err: err}

		case count == 0:
			c.status = StatusDisconnected
			return data, io.EOF
		}

		data = append(data, buf[:count]...)
		if !c.blocking || !c.readable() {
			return data, nil
		}
	}
}

// readable is like [*Conn.HasData] but leaves the status alone.
func (c *Conn) readable() bool {
	revents, err := c.poll()
	return err == nil && revents != 0
}

// recv performs and logs a single read.
func (c *Conn) recv(buf []byte) (int, error) {
	t0 := c.TimeNow()
	c.Logger.Debug(
		"recvStart",
		slog.Int("fd", c.fd),
		slog.Int("ioBufferSize", len(buf)),
		slog.String("localAddr", addrString(c.laddr)),
		slog.String("protocol", network(c.family, c.protocol)),
		slog.String("remoteAddr", addrString(c.raddr)),
		slog.Time("t", t0),
	)

	count, err := c.sys.Recv(c.fd, buf, 0)
	if err != nil {
		count = 0
	}

	c.Logger.Debug(
		"recvDone",
		slog.Int("fd", c.fd),
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.String("localAddr", addrString(c.laddr)),
		slog.String("protocol", network(c.family, c.protocol)),
		slog.String("remoteAddr", addrString(c.raddr)),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)

	return count, err
}

// NetConn hands the connection over to the Go runtime network poller.
//
// On success the returned [net.Conn] owns the connection and c is left
// without a descriptor in [StatusInvalid], as after [*Conn.Move]. The
// returned conn is always non-blocking internally and supports deadlines.
//
// On failure c is unchanged.
func (c *Conn) NetConn() (net.Conn, error) {
	if c.fd == -1 {
		return nil, &OpError{Op: "netconn", Err: net.ErrClosed}
	}

	t0 := c.TimeNow()
	conn, err := c.netConn()

	c.Logger.Info(
		"netConnDone",
		slog.Any("err", err),
		slog.String("errClass", c.ErrClassifier.Classify(err)),
		slog.Int("fd", c.fd),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", safeconn.Network(conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(conn)),
		slog.Time("t0", t0),
		slog.Time("t", c.TimeNow()),
	)

	if err != nil {
		// the conversion may have flipped O_NONBLOCK on the shared file description
		if nonblocking, err := c.sys.Nonblocking(c.fd); err == nil {
			c.blocking = !nonblocking
		}
		return nil, &OpError{Op: "netconn", Addr: addrString(c.raddr), Err: err}
	}

	c.cleanup.Stop()
	c.cleanup = runtime.Cleanup{}
	_ = c.sys.Close(c.fd)
	c.fd = -1
	c.status = StatusInvalid
	return conn, nil
}

// netConn converts a duplicate of our descriptor using fileConn.
func (c *Conn) netConn() (net.Conn, error) {
	fd, err := c.sys.Dup(c.fd)
	if err != nil {
		return nil, err
	}
	file := os.NewFile(uintptr(fd), "fdsock:"+addrString(c.laddr))
	defer file.Close()
	return c.fileConn(file)
}
