package main

import (
	"time"

	"github.com/robomitm/robomitm/protocol"
)

// turnReply is the result object substituted into an intercepted relay
// negotiation, pointing the app at the proxy instead of the cloud.
type turnReply struct {
	URL  string `json:"url"`
	User string `json:"user"`
	Pwd  string `json:"pwd"`
}

// intercept decides whether msg is absorbed. It returns the forged reply to
// write back to the app, or nil for pass-through. The decision is a pure
// function of the current message; no state is kept across calls.
func intercept(rules ruleSet, msg *protocol.Message, env *protocol.Envelope) (*protocol.Message, error) {
	if env.Method == "" {
		return nil, nil
	}
	rule, ok := rules[env.Method]
	if !ok {
		return nil, nil
	}
	payload, err := protocol.BuildReply(env, turnReply{URL: rule.URL, User: rule.User, Pwd: rule.Pwd})
	if err != nil {
		return nil, err
	}
	// Seq advances past the absorbed request; Random is reused so the app's
	// correlation of the reply is undisturbed.
	return &protocol.Message{
		Version:   msg.Version,
		Seq:       msg.Seq + 1,
		Random:    msg.Random,
		Timestamp: uint32(time.Now().Unix()),
		Protocol:  msg.Protocol,
		Payload:   payload,
	}, nil
}
