//go:build unix && !linux

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketCloexec creates a socket and marks it close-on-exec.
//
// Holding syscall.ForkLock keeps a concurrent fork from inheriting the
// descriptor before the flag is set.
func socketCloexec(domain, typ, proto int) (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	fd, err := unix.Socket(domain, typ, proto)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// acceptCloexec accepts a connection and marks it close-on-exec.
func acceptCloexec(fd int) (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	nfd, _, err := unix.Accept(fd)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(nfd)
	return nfd, nil
}

// dupCloexec duplicates fd and marks the copy close-on-exec.
func dupCloexec(fd int) (int, error) {
	syscall.ForkLock.RLock()
	defer syscall.ForkLock.RUnlock()
	nfd, err := unix.Dup(fd)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(nfd)
	return nfd, nil
}
