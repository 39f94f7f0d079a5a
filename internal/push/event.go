// Package push delivers relationship change events from the server to the
// sync engine. Transports guarantee at-most-once delivery per attempt with no
// ordering or deduplication, so consumers must tolerate duplicates and drops.
package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orbitsocial/backend/internal/relationships"
)

var (
	// ErrUnknownEventType indicates a payload with a type this client does
	// not understand. Callers log and drop it, never surface it.
	ErrUnknownEventType = errors.New("unknown push event type")
)

type wireEvent struct {
	Type string `json:"type"`
	From string `json:"from"`
	To   string `json:"to"`
}

// decodeEvent parses a JSON push payload into the engine's tagged event.
func decodeEvent(data []byte) (relationships.Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return relationships.Event{}, fmt.Errorf("decode push event: %w", err)
	}

	ev := relationships.Event{
		Type: relationships.EventType(wire.Type),
		From: relationships.UserID(wire.From),
		To:   relationships.UserID(wire.To),
	}
	if !ev.Type.Known() {
		return relationships.Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, wire.Type)
	}
	if ev.From == "" || ev.To == "" {
		return relationships.Event{}, fmt.Errorf("push event %q missing participants", wire.Type)
	}
	return ev, nil
}
