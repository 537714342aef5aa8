//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
	"golang.org/x/sys/unix"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// messages returns the message of each captured record.
func messages(records []slog.Record) []string {
	var out []string
	for _, record := range records {
		out = append(out, record.Message)
	}
	return out
}

// funcSyscalls is a [Syscalls] whose methods call the corresponding
// XxxFunc field when set and the embedded Syscalls otherwise.
type funcSyscalls struct {
	Syscalls

	AcceptFunc        func(fd int) (int, error)
	BindFunc          func(fd int, sa unix.Sockaddr) error
	CloseFunc         func(fd int) error
	DupFunc           func(fd int) (int, error)
	ListenFunc        func(fd, backlog int) error
	PollFunc          func(fd int, events int16, timeout int) (int16, error)
	RecvFunc          func(fd int, buf []byte, flags int) (int, error)
	SendFunc          func(fd int, data []byte, flags int) (int, error)
	SetNonblockFunc   func(fd int, nonblocking bool) error
	SetsockoptIntFunc func(fd, level, opt, value int) error
	SocketFunc        func(domain, typ, proto int) (int, error)
}

// newFuncSyscalls returns a [*funcSyscalls] falling back to [UnixSyscalls].
func newFuncSyscalls() *funcSyscalls {
	return &funcSyscalls{Syscalls: UnixSyscalls{}}
}

var _ Syscalls = &funcSyscalls{}

func (s *funcSyscalls) Accept(fd int) (int, error) {
	if s.AcceptFunc != nil {
		return s.AcceptFunc(fd)
	}
	return s.Syscalls.Accept(fd)
}

func (s *funcSyscalls) Bind(fd int, sa unix.Sockaddr) error {
	if s.BindFunc != nil {
		return s.BindFunc(fd, sa)
	}
	return s.Syscalls.Bind(fd, sa)
}

func (s *funcSyscalls) Close(fd int) error {
	if s.CloseFunc != nil {
		return s.CloseFunc(fd)
	}
	return s.Syscalls.Close(fd)
}

func (s *funcSyscalls) Dup(fd int) (int, error) {
	if s.DupFunc != nil {
		return s.DupFunc(fd)
	}
	return s.Syscalls.Dup(fd)
}

func (s *funcSyscalls) Listen(fd, backlog int) error {
	if s.ListenFunc != nil {
		return s.ListenFunc(fd, backlog)
	}
	return s.Syscalls.Listen(fd, backlog)
}

func (s *funcSyscalls) Poll(fd int, events int16, timeout int) (int16, error) {
	if s.PollFunc != nil {
		return s.PollFunc(fd, events, timeout)
	}
	return s.Syscalls.Poll(fd, events, timeout)
}

func (s *funcSyscalls) Recv(fd int, buf []byte, flags int) (int, error) {
	if s.RecvFunc != nil {
		return s.RecvFunc(fd, buf, flags)
	}
	return s.Syscalls.Recv(fd, buf, flags)
}

func (s *funcSyscalls) Send(fd int, data []byte, flags int) (int, error) {
	if s.SendFunc != nil {
		return s.SendFunc(fd, data, flags)
	}
	return s.Syscalls.Send(fd, data, flags)
}

func (s *funcSyscalls) SetNonblock(fd int, nonblocking bool) error {
	if s.SetNonblockFunc != nil {
		return s.SetNonblockFunc(fd, nonblocking)
	}
	return s.Syscalls.SetNonblock(fd, nonblocking)
}

func (s *funcSyscalls) SetsockoptInt(fd, level, opt, value int) error {
	if s.SetsockoptIntFunc != nil {
		return s.SetsockoptIntFunc(fd, level, opt, value)
	}
	return s.Syscalls.SetsockoptInt(fd, level, opt, value)
}

func (s *funcSyscalls) Socket(domain, typ, proto int) (int, error) {
	if s.SocketFunc != nil {
		return s.SocketFunc(domain, typ, proto)
	}
	return s.Syscalls.Socket(domain, typ, proto)
}

// countCloses makes sys count the descriptors it closes, still closing them.
func countCloses(sys *funcSyscalls) *[]int {
	var closed []int
	sys.CloseFunc = func(fd int) error {
		closed = append(closed, fd)
		return UnixSyscalls{}.Close(fd)
	}
	return &closed
}

// loopback returns the loopback address of the given family, skipping
// the test when the family is not usable on this host.
func loopback(t *testing.T, family Family) string {
	t.Helper()
	if family == IPv6 {
		if !nettest.SupportsIPv6() {
			t.Skip("IPv6 is not supported on this host")
		}
		return "::1"
	}
	return "127.0.0.1"
}

// newConnPair returns a connected pair of [*Conn] over loopback. The
// client uses cfg and the given blocking mode; the server is blocking.
// Both are closed when the test ends.
func newConnPair(t *testing.T, cfg *Config, family Family, clientBlocking bool) (client, server *Conn) {
	t.Helper()
	address := loopback(t, family)

	listener, err := NewListener(NewConfig(), family, address, 0, true, DefaultSLogger())
	require.NoError(t, err)
	defer listener.Close()

	client, err = NewConn(cfg, family, address, listener.Port(), clientBlocking, DefaultSLogger())
	require.NoError(t, err)

	server, err = listener.Accept()
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// recvAtLeast calls Recv until at least size bytes are read or the
// deadline expires, tolerating would-block results.
func recvAtLeast(t *testing.T, conn *Conn, size int) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < size && time.Now().Before(deadline) {
		data, err := conn.Recv()
		if errors.Is(err, ErrWouldBlock) {
			time.Sleep(time.Millisecond)
			continue
		}
		require.NoError(t, err)
		got = append(got, data...)
	}
	return got
}

// newStubNetConn returns a [*netstub.FuncConn] reporting TCP loopback
// addresses, suitable as the product of [Config.FileConn].
func newStubNetConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		CloseFunc: func() error { return nil },
		LocalAddrFunc: func() net.Addr {
			return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
		},
		RemoteAddrFunc: func() net.Addr {
			return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4444}
		},
	}
}
