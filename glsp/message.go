package glsp

import (
	"encoding/json"
	"fmt"
)

// ActionMessage is the envelope exchanged between the protocol server and its
// clients. ClientID names the logical client session the action is addressed
// to (or originated from); the action body is opaque to routing.
type ActionMessage struct {
	ClientID string `json:"clientId"`
	Action   Action `json:"action"`
}

// NewActionMessage builds a validated envelope addressed to clientID.
func NewActionMessage(clientID string, action Action) (*ActionMessage, error) {
	msg := &ActionMessage{ClientID: clientID, Action: action}
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// UnmarshalJSON enforces envelope structure: a message without a client id or
// without an action kind is rejected rather than routed on zero values.
func (m *ActionMessage) UnmarshalJSON(data []byte) error {
	type rawMessage struct {
		ClientID string `json:"clientId"`
		Action   Action `json:"action"`
	}

	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	m.ClientID = raw.ClientID
	m.Action = raw.Action

	return m.validate()
}

func (m *ActionMessage) validate() error {
	if m.ClientID == "" {
		return fmt.Errorf("action message is missing clientId")
	}
	if m.Action.Kind() == "" {
		return fmt.Errorf("action message for client %q has no action kind", m.ClientID)
	}
	return nil
}
