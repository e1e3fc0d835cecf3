package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestParsePayloadFlat decodes a plain JSON-RPC call.
func TestParsePayloadFlat(t *testing.T) {
	env, err := ParsePayload([]byte(`{"id":123,"method":"get_turn_server","params":[]}`))
	require.NoError(t, err)
	require.Equal(t, "get_turn_server", env.Method)
	require.JSONEq(t, `123`, string(env.ID))
	require.False(t, env.Wrapped)
}

// TestParsePayloadWrapped unwraps the dps string-encoded envelope variant.
func TestParsePayloadWrapped(t *testing.T) {
	inner := `{"id":7,"method":"get_turn_server"}`
	payload, err := json.Marshal(map[string]any{
		"dps": map[string]string{"101": inner},
		"t":   1735689600,
	})
	require.NoError(t, err)

	env, err := ParsePayload(payload)
	require.NoError(t, err)
	require.True(t, env.Wrapped)
	require.Equal(t, "101", env.WrappedKey)
	require.Equal(t, "get_turn_server", env.Method)
	require.JSONEq(t, `7`, string(env.ID))
}

// TestParsePayloadWrappedNonCall ignores dps slots that do not hold a nested
// method call.
func TestParsePayloadWrappedNonCall(t *testing.T) {
	env, err := ParsePayload([]byte(`{"dps":{"121":8,"122":"docked"}}`))
	require.NoError(t, err)
	require.False(t, env.Wrapped)
	require.Empty(t, env.Method)
}

// TestParsePayloadBinary reports an error for non-JSON payloads; the caller
// treats that as a pass-through signal.
func TestParsePayloadBinary(t *testing.T) {
	_, err := ParsePayload([]byte{0x00, 0x01, 0x02, 0xFF})
	require.Error(t, err)
}

// TestBuildReplyFlat preserves the request id in a flat reply.
func TestBuildReplyFlat(t *testing.T) {
	env, err := ParsePayload([]byte(`{"id":42,"method":"get_turn_server"}`))
	require.NoError(t, err)

	data, err := BuildReply(env, map[string]string{"url": "turn:192.168.8.1:3478"})
	require.NoError(t, err)

	var reply struct {
		ID     int64             `json:"id"`
		Result map[string]string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &reply))
	require.EqualValues(t, 42, reply.ID)
	require.Equal(t, "turn:192.168.8.1:3478", reply.Result["url"])
}

// TestBuildReplyWrapped re-wraps under the fixed reply slot with a current
// timestamp when the request arrived wrapped.
func TestBuildReplyWrapped(t *testing.T) {
	payload := []byte(`{"dps":{"101":"{\"id\":9,\"method\":\"get_turn_server\"}"}}`)
	env, err := ParsePayload(payload)
	require.NoError(t, err)
	require.True(t, env.Wrapped)

	data, err := BuildReply(env, map[string]string{"url": "turn:192.168.8.1:3478"})
	require.NoError(t, err)

	var wrapped struct {
		DPS map[string]string `json:"dps"`
		T   int64             `json:"t"`
	}
	require.NoError(t, json.Unmarshal(data, &wrapped))
	require.Contains(t, wrapped.DPS, DefaultReplyKey)
	require.InDelta(t, time.Now().Unix(), wrapped.T, 5)

	var reply struct {
		ID     int64             `json:"id"`
		Result map[string]string `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(wrapped.DPS[DefaultReplyKey]), &reply))
	require.EqualValues(t, 9, reply.ID)
	require.Equal(t, "turn:192.168.8.1:3478", reply.Result["url"])
}
