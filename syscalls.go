//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"github.com/bassosimone/fdsock/internal/errno"
	"golang.org/x/sys/unix"
)

// Syscalls abstracts the socket system calls used by this package.
//
// By making sockets depend on an abstract implementation we allow for
// unit testing failure paths that are hard to trigger on a real kernel
// (e.g., EMSGSIZE on a stream socket).
//
// Implementations must be safe to call from the goroutine that owns the
// socket; no other synchronization is required.
type Syscalls interface {
	Socket(domain, typ, proto int) (int, error)
	Connect(fd int, sa unix.Sockaddr) error
	Bind(fd int, sa unix.Sockaddr) error
	Listen(fd, backlog int) error
	Accept(fd int) (int, error)
	SetsockoptInt(fd, level, opt, value int) error
	GetsockoptInt(fd, level, opt int) (int, error)
	Getsockname(fd int) (unix.Sockaddr, error)
	Getpeername(fd int) (unix.Sockaddr, error)
	Nonblocking(fd int) (bool, error)
	SetNonblock(fd int, nonblocking bool) error
	Send(fd int, data []byte, flags int) (int, error)
	Recv(fd int, buf []byte, flags int) (int, error)
	Poll(fd int, events int16, timeout int) (int16, error)
	Dup(fd int) (int, error)
	Close(fd int) error
}

// UnixSyscalls implements [Syscalls] using [golang.org/x/sys/unix].
//
// Calls interrupted by a signal are restarted, except close.
//
// The zero value is ready to use.
type UnixSyscalls struct{}

var _ Syscalls = UnixSyscalls{}

// Socket implements [Syscalls].
//
// The returned descriptor is marked close-on-exec.
func (UnixSyscalls) Socket(domain, typ, proto int) (int, error) {
	return socketCloexec(domain, typ, proto)
}

// Connect implements [Syscalls].
//
// A connect interrupted by a signal, or started on a non-blocking
// descriptor, keeps completing in the kernel, so we wait for writability
// and collect SO_ERROR instead of calling connect again.
func (s UnixSyscalls) Connect(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if !errno.IsInterrupted(err) && !errno.IsInProgress(err) {
		return err
	}
	if _, err := s.Poll(fd, unix.POLLOUT, -1); err != nil {
		return err
	}
	code, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if code != 0 {
		return unix.Errno(code)
	}
	return nil
}

// Bind implements [Syscalls].
func (UnixSyscalls) Bind(fd int, sa unix.Sockaddr) error {
	return unix.Bind(fd, sa)
}

// Listen implements [Syscalls].
func (UnixSyscalls) Listen(fd, backlog int) error {
	return unix.Listen(fd, backlog)
}

// Accept implements [Syscalls].
//
// The returned descriptor is marked close-on-exec.
func (UnixSyscalls) Accept(fd int) (int, error) {
	return ignoringEINTR2(func() (int, error) {
		return acceptCloexec(fd)
	})
}

// SetsockoptInt implements [Syscalls].
func (UnixSyscalls) SetsockoptInt(fd, level, opt, value int) error {
	return unix.SetsockoptInt(fd, level, opt, value)
}

// GetsockoptInt implements [Syscalls].
func (UnixSyscalls) GetsockoptInt(fd, level, opt int) (int, error) {
	return unix.GetsockoptInt(fd, level, opt)
}

// Getsockname implements [Syscalls].
func (UnixSyscalls) Getsockname(fd int) (unix.Sockaddr, error) {
	return unix.Getsockname(fd)
}

// Getpeername implements [Syscalls].
func (UnixSyscalls) Getpeername(fd int) (unix.Sockaddr, error) {
	return unix.Getpeername(fd)
}

// Nonblocking implements [Syscalls] by reading O_NONBLOCK with F_GETFL.
func (UnixSyscalls) Nonblocking(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return false, err
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

// SetNonblock implements [Syscalls].
func (UnixSyscalls) SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// Send implements [Syscalls].
func (UnixSyscalls) Send(fd int, data []byte, flags int) (int, error) {
	return ignoringEINTR2(func() (int, error) {
		return unix.SendmsgN(fd, data, nil, nil, flags)
	})
}

// Recv implements [Syscalls].
func (UnixSyscalls) Recv(fd int, buf []byte, flags int) (int, error) {
	return ignoringEINTR2(func() (int, error) {
		n, _, err := unix.Recvfrom(fd, buf, flags)
		return n, err
	})
}

// Poll implements [Syscalls] for a single descriptor and returns its revents.
func (UnixSyscalls) Poll(fd int, events int16, timeout int) (int16, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	n, err := ignoringEINTR2(func() (int, error) {
		return unix.Poll(fds, timeout)
	})
	if err != nil || n == 0 {
		return 0, err
	}
	return fds[0].Revents, nil
}

// Dup implements [Syscalls].
//
// The returned descriptor is marked close-on-exec.
func (UnixSyscalls) Dup(fd int) (int, error) {
	return dupCloexec(fd)
}

// Close implements [Syscalls].
//
// Close is never retried: the descriptor is gone even when EINTR is returned.
func (UnixSyscalls) Close(fd int) error {
	return unix.Close(fd)
}

// ignoringEINTR2 calls fn until it returns an error other than EINTR.
func ignoringEINTR2[T any](fn func() (T, error)) (T, error) {
	for {
		value, err := fn()
		if !errno.IsInterrupted(err) {
			return value, err
		}
	}
}
