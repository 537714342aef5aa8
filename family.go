//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Family is the address family of a socket.
type Family uint8

const (
	// IPv4 selects AF_INET.
	IPv4 Family = iota

	// IPv6 selects AF_INET6.
	IPv6
)

// String implements [fmt.Stringer].
func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("Family(%d)", uint8(f))
	}
}

// sysFamily maps the family to the platform AF_* constant.
func (f Family) sysFamily() (int, error) {
	switch f {
	case IPv4:
		return unix.AF_INET, nil
	case IPv6:
		return unix.AF_INET6, nil
	default:
		return 0, fmt.Errorf("%w: %s", unix.EAFNOSUPPORT, f)
	}
}

// Protocol is the socket type.
type Protocol uint8

const (
	// Stream selects SOCK_STREAM (TCP for the inet families).
	Stream Protocol = iota

	// Datagram selects SOCK_DGRAM (UDP for the inet families).
	Datagram

	// Raw selects SOCK_RAW.
	Raw
)

// String implements [fmt.Stringer].
func (p Protocol) String() string {
	switch p {
	case Stream:
		return "stream"
	case Datagram:
		return "datagram"
	case Raw:
		return "raw"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// sysType maps the protocol to the platform SOCK_* constant.
func (p Protocol) sysType() (int, error) {
	switch p {
	case Stream:
		return unix.SOCK_STREAM, nil
	case Datagram:
		return unix.SOCK_DGRAM, nil
	case Raw:
		return unix.SOCK_RAW, nil
	default:
		return 0, fmt.Errorf("%w: %s", unix.EPROTONOSUPPORT, p)
	}
}

// protocolFromSysType is the inverse of [Protocol.sysType].
func protocolFromSysType(value int) (Protocol, error) {
	switch value {
	case unix.SOCK_STREAM:
		return Stream, nil
	case unix.SOCK_DGRAM:
		return Datagram, nil
	case unix.SOCK_RAW:
		return Raw, nil
	default:
		return 0, fmt.Errorf("%w: socket type %d", unix.EPROTONOSUPPORT, value)
	}
}

// network returns the Go network name used in log events.
func network(family Family, protocol Protocol) string {
	var name string
	switch protocol {
	case Stream:
		name = "tcp"
	case Datagram:
		name = "udp"
	default:
		name = "ip"
	}
	if family == IPv6 {
		name += "6"
	}
	return name
}
