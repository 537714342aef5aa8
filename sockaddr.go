//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package fdsock

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// parseAddr converts a textual address to the [netip.Addr] of the given family.
//
// Like inet_pton, an IPv4 family only accepts dotted-quad notation and an
// IPv6 family only accepts colon-hex notation. Zoned addresses are rejected.
func parseAddr(family Family, address string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	switch {
	case addr.Zone() != "":
		return netip.Addr{}, fmt.Errorf("%w: %q: zones are not supported", ErrInvalidAddress, address)
	case family == IPv4 && !addr.Is4():
		return netip.Addr{}, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidAddress, address)
	case family == IPv6 && !addr.Is6():
		return netip.Addr{}, fmt.Errorf("%w: %q is not an IPv6 address", ErrInvalidAddress, address)
	}
	return addr, nil
}

// toSockaddr converts an endpoint to the corresponding [unix.Sockaddr].
func toSockaddr(endpoint netip.AddrPort) unix.Sockaddr {
	addr := endpoint.Addr()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(endpoint.Port()), Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Port: int(endpoint.Port()), Addr: addr.As16()}
}

// fromSockaddr converts an inet [unix.Sockaddr] to an endpoint and its family.
func fromSockaddr(sa unix.Sockaddr) (netip.AddrPort, Family, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port)), IPv4, nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port)), IPv6, nil
	default:
		return netip.AddrPort{}, 0, fmt.Errorf("%w: %T", unix.EAFNOSUPPORT, sa)
	}
}
