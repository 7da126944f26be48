package glsp

import (
	"encoding/json"
	"fmt"
)

// Well-known action kinds emitted by this module. Kinds produced by
// diagram implementations are open-ended; the router never interprets
// anything beyond the discriminator.
const (
	KindSourceModelChanged = "sourceModelChanged"
)

// Action is the raw JSON representation of a protocol action. The routing
// layer treats it as opaque apart from the "kind" discriminator, so it is
// carried as bytes rather than a decoded structure.
type Action []byte

// kindProbe captures only the discriminator during a peek.
type kindProbe struct {
	Kind string `json:"kind"`
}

// NewAction builds an action of the given kind from params. Fields of params
// are merged with the kind discriminator into a single flat object, matching
// the wire shape diagram clients expect.
func NewAction(kind string, params any) (Action, error) {
	if kind == "" {
		return nil, fmt.Errorf("action kind must not be empty")
	}

	fields := map[string]json.RawMessage{}
	if params != nil {
		paramBytes, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal action params: %w", err)
		}
		if err := json.Unmarshal(paramBytes, &fields); err != nil {
			return nil, fmt.Errorf("action params must encode to a JSON object: %w", err)
		}
	}

	kindBytes, _ := json.Marshal(kind)
	fields["kind"] = kindBytes

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action: %w", err)
	}
	return Action(raw), nil
}

// Kind returns the action's discriminator, or "" when the action is empty or
// structurally invalid.
func (a Action) Kind() string {
	var probe kindProbe
	if err := json.Unmarshal(a, &probe); err != nil {
		return ""
	}
	return probe.Kind
}

// Decode unmarshals the action body into v. The kind field is visible to v
// if it declares it.
func (a Action) Decode(v any) error {
	if len(a) == 0 {
		return fmt.Errorf("cannot decode empty action")
	}
	return json.Unmarshal(a, v)
}

func (a Action) MarshalJSON() ([]byte, error) {
	if len(a) == 0 {
		return []byte("null"), nil
	}
	return a, nil
}

func (a *Action) UnmarshalJSON(data []byte) error {
	*a = append((*a)[:0], data...)
	return nil
}
