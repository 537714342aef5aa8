//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// NewConn and Accept yield a pair whose peer addresses mirror each other.
func TestNewConnAndAccept(t *testing.T) {
	for _, family := range []Family{IPv4, IPv6} {
		t.Run(family.String(), func(t *testing.T) {
			client, server := newConnPair(t, NewConfig(), family, true)

			assert.Equal(t, StatusConnected, client.Status())
			assert.Equal(t, StatusConnected, server.Status())
			assert.True(t, client.IsOpen())
			assert.True(t, server.IsOpen())
			assert.Equal(t, family, client.Family())
			assert.Equal(t, family, server.Family())
			assert.Equal(t, Stream, client.Protocol())
			assert.Equal(t, Stream, server.Protocol())

			assert.Equal(t, server.LocalAddr(), client.PeerAddr())
			assert.Equal(t, client.LocalAddr(), server.PeerAddr())
			assert.Equal(t, client.LocalAddr().Addr(), client.Address())
			assert.Equal(t, client.LocalAddr().Port(), client.Port())
			assert.Equal(t, client.LocalAddr().String(), client.String())
			assert.False(t, client.Equal(server))
		})
	}
}

// NewConn switches to non-blocking mode after connecting when asked to.
func TestNewConnNonBlocking(t *testing.T) {
	client, _ := newConnPair(t, NewConfig(), IPv4, false)

	assert.False(t, client.IsBlocking())
	nonblocking, err := UnixSyscalls{}.Nonblocking(client.FD())
	require.NoError(t, err)
	assert.True(t, nonblocking)
}

// NewConn rejects addresses that do not belong to the family before creating a socket.
func TestNewConnInvalidAddress(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// family is the address family to use.
		family Family

		// address is the textual address to connect to.
		address string
	}{
		{name: "not an address", family: IPv4, address: "example.com"},
		{name: "IPv6 literal for IPv4", family: IPv4, address: "::1"},
		{name: "IPv4 literal for IPv6", family: IPv6, address: "127.0.0.1"},
		{name: "zoned IPv6 literal", family: IPv6, address: "fe80::1%eth0"},
		{name: "empty", family: IPv4, address: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := 0
			sys := newFuncSyscalls()
			sys.SocketFunc = func(domain, typ, proto int) (int, error) {
				created++
				return UnixSyscalls{}.Socket(domain, typ, proto)
			}
			cfg := NewConfig()
			cfg.Syscalls = sys

			conn, err := NewConn(cfg, tt.family, tt.address, 4444, true, DefaultSLogger())

			require.Error(t, err)
			assert.Nil(t, conn)
			assert.ErrorIs(t, err, ErrInvalidAddress)
			var opErr *OpError
			require.True(t, errors.As(err, &opErr))
			assert.Equal(t, "connect", opErr.Op)
			assert.Contains(t, err.Error(), tt.address)
			assert.Equal(t, 0, created)
		})
	}
}

// NewConn fails with a message naming the target and closes its socket.
func TestNewConnRefused(t *testing.T) {
	listener, err := NewListener(NewConfig(), IPv4, "127.0.0.1", 0, true, DefaultSLogger())
	require.NoError(t, err)
	port := listener.Port()
	require.NoError(t, listener.Close())

	sys := newFuncSyscalls()
	closed := countCloses(sys)
	cfg := NewConfig()
	cfg.Syscalls = sys

	conn, err := NewConn(cfg, IPv4, "127.0.0.1", port, true, DefaultSLogger())

	require.Error(t, err)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, unix.ECONNREFUSED)
	assert.Contains(t, err.Error(), listener.LocalAddr().String())
	assert.Len(t, *closed, 1)
}

// NewConn emits socket and connect span events.
func TestNewConnLogging(t *testing.T) {
	listener, err := NewListener(NewConfig(), IPv4, "127.0.0.1", 0, true, DefaultSLogger())
	require.NoError(t, err)
	defer listener.Close()

	logger, records := newCapturingLogger()
	conn, err := NewConn(NewConfig(), IPv4, "127.0.0.1", listener.Port(), true, logger)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, []string{"socketStart", "socketDone", "connectStart", "connectDone"}, messages(*records))
}

// WrapConn rejects negative descriptors.
func TestWrapConnInvalidHandle(t *testing.T) {
	conn, err := WrapConn(NewConfig(), -1, DefaultSLogger())

	require.Error(t, err)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

// WrapConn closes an unconnected socket because it has no peer.
func TestWrapConnNotConnected(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)

	sys := newFuncSyscalls()
	closed := countCloses(sys)
	cfg := NewConfig()
	cfg.Syscalls = sys

	conn, err := WrapConn(cfg, fd, DefaultSLogger())

	require.Error(t, err)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, unix.ENOTCONN)
	assert.Equal(t, []int{fd}, *closed)
}
