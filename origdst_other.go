//go:build !linux

package main

import (
	"errors"
	"net"
)

// originalDestination requires SO_ORIGINAL_DST, which only Linux provides.
func originalDestination(conn *net.TCPConn) (string, error) {
	return "", errors.New("transparent redirection requires linux (SO_ORIGINAL_DST)")
}
