package protocol

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultReplyKey is the dps slot forged replies are wrapped under. The slot
// the app expects cannot always be derived from the request, so outbound
// replies use the RPC-response slot observed in captures.
const DefaultReplyKey = "102"

// Envelope is the JSON-RPC style object carried in a decrypted frame payload.
// ID, Params and Result are kept raw so forwarding and reply building never
// reinterpret values the proxy does not care about.
type Envelope struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`

	// Wrapped records that the envelope arrived as a string value inside a
	// numeric-keyed dps mapping; WrappedKey is the slot it was found under.
	Wrapped    bool   `json:"-"`
	WrappedKey string `json:"-"`
}

// rawPayload matches both the flat and the dps-wrapped payload shapes.
type rawPayload struct {
	ID     json.RawMessage            `json:"id"`
	Method string                     `json:"method"`
	Params json.RawMessage            `json:"params"`
	Result json.RawMessage            `json:"result"`
	DPS    map[string]json.RawMessage `json:"dps"`
}

// ParsePayload decodes an RPC envelope from payload bytes, unwrapping the
// dps convention when present. A parse error just means the payload belongs
// to a binary sub-protocol; callers treat it as a pass-through signal.
func ParsePayload(payload []byte) (*Envelope, error) {
	var raw rawPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	for key, value := range raw.DPS {
		var inner string
		if err := json.Unmarshal(value, &inner); err != nil {
			continue
		}
		if !strings.Contains(inner, "method") {
			continue
		}
		var env Envelope
		if err := json.Unmarshal([]byte(inner), &env); err != nil {
			continue
		}
		env.Wrapped = true
		env.WrappedKey = key
		return &env, nil
	}
	return &Envelope{ID: raw.ID, Method: raw.Method, Params: raw.Params, Result: raw.Result}, nil
}

// BuildReply serializes a reply to req carrying result, preserving the
// request's id and re-wrapping under the dps convention when the request
// arrived wrapped.
func BuildReply(req *Envelope, result any) ([]byte, error) {
	reply := struct {
		ID     json.RawMessage `json:"id"`
		Result any             `json:"result"`
	}{ID: req.ID, Result: result}
	data, err := json.Marshal(reply)
	if err != nil {
		return nil, err
	}
	if !req.Wrapped {
		return data, nil
	}
	wrapped := struct {
		DPS map[string]string `json:"dps"`
		T   int64             `json:"t"`
	}{
		DPS: map[string]string{DefaultReplyKey: string(data)},
		T:   time.Now().Unix(),
	}
	return json.Marshal(wrapped)
}
