//go:build linux

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import "golang.org/x/sys/unix"

// socketCloexec creates a socket marked close-on-exec atomically.
func socketCloexec(domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// acceptCloexec accepts a connection marked close-on-exec atomically.
func acceptCloexec(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}

// dupCloexec duplicates fd with F_DUPFD_CLOEXEC.
func dupCloexec(fd int) (int, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}
