package main

import "time"

const (
	// Listening defaults match the device firmware: 58867 is the local
	// protocol port, 8053 the cloud heartbeat port.
	defaultProxyListen     = ":58867"
	defaultKeepAliveListen = ":8053"

	// Forged get_turn_server reply defaults.
	defaultTurnPort = 3478
	defaultTurnUser = "mitm_user"
	defaultTurnPwd  = "mitm_password"

	// interceptedMethod is the one RPC call absorbed by default: the relay
	// server negotiation that would otherwise point the app at the cloud.
	interceptedMethod = "get_turn_server"

	// readChunkSize is the per-read buffer for the app-facing direction.
	readChunkSize = 4096

	// deviceDialTimeout bounds the outbound connect to the real device.
	deviceDialTimeout = 10 * time.Second
)
