package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/robomitm/robomitm/protocol"
	"github.com/stretchr/testify/require"
)

var testRules = ruleSet{
	interceptedMethod: {
		Method: interceptedMethod,
		URL:    "turn:192.168.8.1:3478",
		User:   "mitm_user",
		Pwd:    "mitm_password",
	},
}

func testRPCMessage(payload string) *protocol.Message {
	return &protocol.Message{
		Version:   protocol.Version10,
		Seq:       500,
		Random:    0xBEEF,
		Timestamp: uint32(time.Now().Unix()),
		Protocol:  protocol.ProtocolRPCRequest,
		Payload:   []byte(payload),
	}
}

// TestInterceptTargeting forges a reply for the configured method, keeping
// the request id and carrying the configured relay parameters.
func TestInterceptTargeting(t *testing.T) {
	msg := testRPCMessage(`{"id":42,"method":"get_turn_server"}`)
	env, err := protocol.ParsePayload(msg.Payload)
	require.NoError(t, err)

	forged, err := intercept(testRules, msg, env)
	require.NoError(t, err)
	require.NotNil(t, forged)

	require.Equal(t, msg.Version, forged.Version)
	require.Equal(t, msg.Seq+1, forged.Seq)
	require.Equal(t, msg.Random, forged.Random)
	require.Equal(t, msg.Protocol, forged.Protocol)
	require.InDelta(t, time.Now().Unix(), int64(forged.Timestamp), 5)

	var reply struct {
		ID     int64     `json:"id"`
		Result turnReply `json:"result"`
	}
	require.NoError(t, json.Unmarshal(forged.Payload, &reply))
	require.EqualValues(t, 42, reply.ID)
	require.Equal(t, "turn:192.168.8.1:3478", reply.Result.URL)
	require.Equal(t, "mitm_user", reply.Result.User)
	require.Equal(t, "mitm_password", reply.Result.Pwd)
}

// TestInterceptPassThrough never forges for methods outside the rule set.
func TestInterceptPassThrough(t *testing.T) {
	for _, payload := range []string{
		`{"id":1,"method":"app_start"}`,
		`{"id":2,"method":"get_status"}`,
		`{"id":3,"result":"ok"}`,
	} {
		msg := testRPCMessage(payload)
		env, err := protocol.ParsePayload(msg.Payload)
		require.NoError(t, err)
		forged, err := intercept(testRules, msg, env)
		require.NoError(t, err)
		require.Nil(t, forged, payload)
	}
}

// TestInterceptWrappedFidelity answers a dps-wrapped request with a
// dps-wrapped reply.
func TestInterceptWrappedFidelity(t *testing.T) {
	msg := testRPCMessage(`{"dps":{"101":"{\"id\":11,\"method\":\"get_turn_server\"}"}}`)
	env, err := protocol.ParsePayload(msg.Payload)
	require.NoError(t, err)
	require.True(t, env.Wrapped)

	forged, err := intercept(testRules, msg, env)
	require.NoError(t, err)
	require.NotNil(t, forged)

	var wrapped struct {
		DPS map[string]string `json:"dps"`
		T   int64             `json:"t"`
	}
	require.NoError(t, json.Unmarshal(forged.Payload, &wrapped))
	require.Contains(t, wrapped.DPS, protocol.DefaultReplyKey)

	var reply struct {
		ID     int64     `json:"id"`
		Result turnReply `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(wrapped.DPS[protocol.DefaultReplyKey]), &reply))
	require.EqualValues(t, 11, reply.ID)
	require.Equal(t, "turn:192.168.8.1:3478", reply.Result.URL)
}
