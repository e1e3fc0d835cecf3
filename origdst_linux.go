//go:build linux

package main

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// soOriginalDst is the SOL_IP socket option carrying the destination a
// connection had before an iptables REDIRECT rule rewrote it.
const soOriginalDst = 80

// originalDestination asks the kernel where the intercepted connection was
// originally headed. It fails when the connection was not redirected (or the
// platform lacks the option), in which case there is nothing to relay to.
func originalDestination(conn *net.TCPConn) (string, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return "", err
	}
	var (
		mreq *unix.IPv6Mreq
		gerr error
	)
	if err := raw.Control(func(fd uintptr) {
		// The option fills a sockaddr_in; IPv6Mreq is the conventional
		// 16-byte carrier for it.
		mreq, gerr = unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, soOriginalDst)
	}); err != nil {
		return "", err
	}
	if gerr != nil {
		return "", fmt.Errorf("SO_ORIGINAL_DST: %w", gerr)
	}
	// sockaddr_in layout: family(2), port u16 BE, IPv4 address(4).
	addr := mreq.Multiaddr
	port := int(addr[2])<<8 | int(addr[3])
	ip := net.IPv4(addr[4], addr[5], addr[6], addr[7])
	return net.JoinHostPort(ip.String(), strconv.Itoa(port)), nil
}
