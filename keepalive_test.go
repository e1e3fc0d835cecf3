package main

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// buildKeepAliveFrame constructs a frame with valid magic and length, did at
// bytes 8..12, and optionally the hello sentinel across bytes 4..12.
func buildKeepAliveFrame(t *testing.T, size int, hello bool) []byte {
	t.Helper()
	require.GreaterOrEqual(t, size, keepAliveMinLen)
	frame := make([]byte, size)
	copy(frame, keepAliveMagic)
	binary.BigEndian.PutUint16(frame[2:4], uint16(size))
	for i := 4; i < size; i++ {
		frame[i] = byte(i * 7)
	}
	if hello {
		for i := 4; i < 12; i++ {
			frame[i] = 0xFF
		}
	} else {
		binary.BigEndian.PutUint32(frame[8:12], 123456789)
	}
	return frame
}

// TestKeepAliveLengthValidation: a declared length that does not match the
// actual byte count never produces a response.
func TestKeepAliveLengthValidation(t *testing.T) {
	frame := buildKeepAliveFrame(t, 32, false)
	binary.BigEndian.PutUint16(frame[2:4], 40)
	require.Nil(t, processKeepAlive(frame))

	// Truncated below the minimum.
	require.Nil(t, processKeepAlive(frame[:16]))
	require.Nil(t, processKeepAlive(nil))
}

// TestKeepAliveBadMagic drops frames whose header magic is wrong.
func TestKeepAliveBadMagic(t *testing.T) {
	frame := buildKeepAliveFrame(t, 32, false)
	frame[0] = 0x22
	require.Nil(t, processKeepAlive(frame))
}

// TestKeepAliveHello answers the 0xFF sentinel frame with the input's first
// 32 bytes carrying a fresh timestamp at bytes 12..16.
func TestKeepAliveHello(t *testing.T) {
	frame := buildKeepAliveFrame(t, 32, true)
	resp := processKeepAlive(frame)
	require.NotNil(t, resp)
	require.Len(t, resp, 32)
	require.Equal(t, frame[:12], resp[:12])
	require.Equal(t, frame[16:32], resp[16:32])

	ts := binary.BigEndian.Uint32(resp[12:16])
	require.InDelta(t, time.Now().Unix(), int64(ts), 5)
}

// TestKeepAlivePingEcho echoes well-formed 32-byte non-hello frames verbatim.
func TestKeepAlivePingEcho(t *testing.T) {
	frame := buildKeepAliveFrame(t, 32, false)
	resp := processKeepAlive(frame)
	require.Equal(t, frame, resp)

	// The response is a copy, not an alias.
	resp[20] ^= 0xFF
	require.NotEqual(t, frame[20], resp[20])
}

// TestKeepAliveIgnoresRealTraffic leaves longer application frames alone.
func TestKeepAliveIgnoresRealTraffic(t *testing.T) {
	frame := buildKeepAliveFrame(t, 64, false)
	require.Nil(t, processKeepAlive(frame))
}

// TestKeepAliveTCPLargeFrameKeepsOpen feeds a well-framed application frame
// larger than any hello or ping; it is ignored without a response and the
// connection keeps answering afterwards.
func TestKeepAliveTCPLargeFrameKeepsOpen(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go handleKeepAliveConn(server)

	large := buildKeepAliveFrame(t, 5000, false)
	_, err := client.Write(large)
	require.NoError(t, err)

	ping := buildKeepAliveFrame(t, 32, false)
	_, err = client.Write(ping)
	require.NoError(t, err)

	echo := make([]byte, 32)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(client, echo)
	require.NoError(t, err)
	require.Equal(t, ping, echo)
}

// TestKeepAliveTCPSession exercises the framed TCP read loop: pings are
// echoed, ignored frames keep the connection open, bad magic ends it.
func TestKeepAliveTCPSession(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	done := make(chan struct{})
	go func() {
		handleKeepAliveConn(server)
		close(done)
	}()

	ping := buildKeepAliveFrame(t, 32, false)
	_, err := client.Write(ping)
	require.NoError(t, err)

	echo := make([]byte, 32)
	_, err = io.ReadFull(client, echo)
	require.NoError(t, err)
	require.Equal(t, ping, echo)

	// Real traffic: no response, connection stays open.
	_, err = client.Write(buildKeepAliveFrame(t, 48, false))
	require.NoError(t, err)

	// The session still answers after an ignored frame.
	_, err = client.Write(ping)
	require.NoError(t, err)
	_, err = io.ReadFull(client, echo)
	require.NoError(t, err)
	require.Equal(t, ping, echo)

	// Bad magic terminates the connection. The write may itself error once
	// the responder stops reading mid-frame.
	bad := buildKeepAliveFrame(t, 32, false)
	bad[1] = 0x30
	_, _ = client.Write(bad)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not closed on bad magic")
	}
}
