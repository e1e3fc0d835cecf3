package main

import (
	"errors"
	"io"
	"log"
	"net"

	"github.com/robomitm/robomitm/protocol"
)

// runProxy accepts kernel-redirected connections and relays each one to the
// device it was originally headed for. A single misbehaving connection never
// takes down the listener.
func runProxy(cfg *proxyConfig) error {
	ln, err := net.Listen("tcp", cfg.listen)
	if err != nil {
		return err
	}
	log.Printf("proxy listening on %s", cfg.listen)
	if cfg.watchReload {
		go watchRulesReload(cfg.rules, cfg.ruleLoader)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("accept error: %v", err)
			continue
		}
		tc, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		go handleProxyConn(tc, cfg)
	}
}

// handleProxyConn resolves the pre-redirection destination, dials the real
// device, and runs the relay until either side goes away.
func handleProxyConn(app *net.TCPConn, cfg *proxyConfig) {
	defer app.Close()

	target, err := originalDestination(app)
	if err != nil {
		log.Printf("no original destination for %s: %v (is the REDIRECT rule installed?)", app.RemoteAddr(), err)
		return
	}
	log.Printf("intercepting %s -> %s", app.RemoteAddr(), target)

	device, err := net.DialTimeout("tcp", target, deviceDialTimeout)
	if err != nil {
		log.Printf("dial device %s: %v", target, err)
		return
	}
	relayPair(app, device, cfg.key.Bytes(), cfg.rules)
}

// relayPair drives both directions of one app/device connection pair. The
// first direction to finish closes both sockets, which unblocks the sibling;
// nothing outlives the shorter-lived side.
func relayPair(app, device net.Conn, key []byte, rules *ruleStore) {
	errCh := make(chan error, 2)
	go func() { errCh <- forwardAppToDevice(app, device, key, rules) }()
	go func() { errCh <- pipeDeviceToApp(device, app) }()

	err := <-errCh
	app.Close()
	device.Close()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		log.Printf("relay %s: %v", app.RemoteAddr(), err)
	}
}

// forwardAppToDevice reads the app-facing direction, decodes frames, and
// either forges replies for intercepted calls or forwards to the device.
func forwardAppToDevice(app, device net.Conn, key []byte, rules *ruleStore) error {
	dec := protocol.NewDecoder(key)
	buf := make([]byte, readChunkSize)
	for {
		n, err := app.Read(buf)
		if n > 0 {
			if werr := relayChunk(buf[:n], dec, app, device, key, rules); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// relayChunk feeds one chunk through the decoder. Decode failures fail open:
// whatever could not be decoded is forwarded raw, in order, because breaking
// the session hurts the physical device more than skipping inspection.
func relayChunk(chunk []byte, dec *protocol.Decoder, app, device net.Conn, key []byte, rules *ruleStore) error {
	msgs, err := dec.Decode(chunk)
	for i := range msgs {
		if werr := relayMessage(&msgs[i], app, device, key, rules); werr != nil {
			return werr
		}
	}
	if err != nil {
		log.Printf("decode error, forwarding raw: %v", err)
		if raw := dec.Drain(); len(raw) > 0 {
			if _, werr := device.Write(raw); werr != nil {
				return werr
			}
		}
	}
	return nil
}

// relayMessage decides the fate of one decoded message: forge a reply back to
// the app, or re-encode and forward to the device.
func relayMessage(msg *protocol.Message, app, device net.Conn, key []byte, rules *ruleStore) error {
	if len(msg.Payload) > 0 {
		// Non-JSON payloads are routine (binary sub-protocols); parse
		// failure is a pass-through signal, not an error.
		if env, perr := protocol.ParsePayload(msg.Payload); perr == nil {
			forged, ferr := intercept(rules.Get(), msg, env)
			if ferr != nil {
				log.Printf("forge %s failed, passing through: %v", env.Method, ferr)
			} else if forged != nil {
				log.Printf("absorbed %s (id %s)", env.Method, env.ID)
				data, eerr := protocol.Encode(*forged, key)
				if eerr != nil {
					return eerr
				}
				_, werr := app.Write(data)
				return werr
			}
		}
	}
	data, err := protocol.Encode(*msg, key)
	if err != nil {
		// A message that decoded but will not re-encode should not kill
		// the pair; drop it and keep the session alive.
		log.Printf("re-encode failed, dropping frame: %v", err)
		return nil
	}
	_, werr := device.Write(data)
	return werr
}

// pipeDeviceToApp relays the device-facing direction byte for byte. No
// decoding: the device's responses must reach the app untouched.
func pipeDeviceToApp(device, app net.Conn) error {
	_, err := io.Copy(app, device)
	return err
}
