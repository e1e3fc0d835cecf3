package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"log"
	"net"
	"time"
)

// Keep-alive frame layout: 2-byte magic, u16 BE total length, then a body
// whose shape depends on the message kind. The device sends these to what it
// believes is the cloud heartbeat server; answering them keeps its Wi-Fi up.
const (
	keepAliveMinLen = 32
	// The length field is a u16, so a well-framed frame never exceeds this.
	keepAliveMaxLen = 65535
)

var keepAliveMagic = []byte{0x21, 0x31}

// processKeepAlive validates one keep-alive frame and builds its response.
// nil means the frame is ignored (malformed, or real traffic the emulator
// has no business answering).
func processKeepAlive(data []byte) []byte {
	if len(data) < keepAliveMinLen {
		return nil
	}
	if !bytes.Equal(data[0:2], keepAliveMagic) {
		return nil
	}
	length := binary.BigEndian.Uint16(data[2:4])
	if int(length) != len(data) {
		return nil
	}
	did := binary.BigEndian.Uint32(data[8:12])

	if isKeepAliveHello(data) {
		// Hello reply: the first 32 bytes of the request with the current
		// unix time stamped over bytes 12..16.
		resp := append([]byte(nil), data[:keepAliveMinLen]...)
		binary.BigEndian.PutUint32(resp[12:16], uint32(time.Now().Unix()))
		log.Printf("keepalive: hello from device %d", did)
		return resp
	}
	if length == keepAliveMinLen {
		log.Printf("keepalive: ping from device %d", did)
		return append([]byte(nil), data[:keepAliveMinLen]...)
	}
	log.Printf("keepalive: real traffic from device %d, ignoring", did)
	return nil
}

// isKeepAliveHello reports whether bytes 4..12 are entirely the 0xFF sentinel.
func isKeepAliveHello(data []byte) bool {
	for _, b := range data[4:12] {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// runKeepAlive serves the heartbeat emulator over UDP and TCP on the same
// address. Binding either transport fails the process at startup; nothing
// after that does.
func runKeepAlive(addr string) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		pc.Close()
		return err
	}
	log.Printf("keepalive listening on %s (udp+tcp)", addr)

	go serveKeepAliveUDP(pc)
	return serveKeepAliveTCP(ln)
}

// serveKeepAliveUDP answers datagrams one at a time. Every sender is
// independent; malformed datagrams are dropped silently.
func serveKeepAliveUDP(pc net.PacketConn) {
	buf := make([]byte, keepAliveMaxLen)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			log.Printf("keepalive udp read: %v", err)
			return
		}
		if resp := processKeepAlive(buf[:n]); resp != nil {
			if _, err := pc.WriteTo(resp, addr); err != nil {
				log.Printf("keepalive udp write to %s: %v", addr, err)
			}
		}
	}
}

func serveKeepAliveTCP(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go handleKeepAliveConn(conn)
	}
}

// handleKeepAliveConn reads length-prefixed keep-alive frames off one TCP
// connection. Ignored frames keep the connection open, since the device may
// continue speaking on it; a framing violation ends it.
func handleKeepAliveConn(conn net.Conn) {
	defer conn.Close()
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		if !bytes.Equal(header[0:2], keepAliveMagic) {
			return
		}
		length := int(binary.BigEndian.Uint16(header[2:4]))
		if length < len(header) {
			return
		}
		frame := make([]byte, length)
		copy(frame, header)
		if _, err := io.ReadFull(conn, frame[4:]); err != nil {
			return
		}
		if resp := processKeepAlive(frame); resp != nil {
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}
}
