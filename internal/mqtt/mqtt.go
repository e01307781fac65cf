// Package mqtt bridges the LED registry to an MQTT broker: LED state is
// published retained per LED, and brightness/blink commands are accepted on
// per-LED command topics.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"
)

// Topic suffixes under the configured prefix.
const (
	suffixSystem     = "system"
	suffixState      = "state"
	suffixBrightness = "brightness"
	suffixBlink      = "blink"
	suffixSet        = "set"
)

// MessageHandler receives an incoming message.
type MessageHandler func(topic string, payload []byte)

// Client is the broker transport used by the Bridge.
type Client interface {
	// Publish sends a message. Implementations may buffer while disconnected.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers handler for messages matching filter. The
	// subscription survives reconnection.
	Subscribe(filter string, qos byte, handler MessageHandler) error

	// Close disconnects from the broker.
	Close() error

	ConnectionStatus
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

// System is the topic for daemon lifecycle events.
func (t Topics) System() string {
	return t.Prefix + "/" + suffixSystem
}

// State is the retained state topic of an LED.
func (t Topics) State(name string) string {
	return t.Prefix + "/" + name + "/" + suffixState
}

// Brightness is the brightness command topic of an LED.
func (t Topics) Brightness(name string) string {
	return t.Prefix + "/" + name + "/" + suffixBrightness + "/" + suffixSet
}

// Blink is the blink command topic of an LED.
func (t Topics) Blink(name string) string {
	return t.Prefix + "/" + name + "/" + suffixBlink + "/" + suffixSet
}

// Commands is the subscription filter matching every command topic.
func (t Topics) Commands() string {
	return t.Prefix + "/+/+/" + suffixSet
}

// parseCommand splits a command topic into LED name and command kind.
func (t Topics) parseCommand(topic string) (name, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", false
	}
	rest, found = strings.CutSuffix(rest, "/"+suffixSet)
	if !found {
		return "", "", false
	}
	name, kind, found = strings.Cut(rest, "/")
	if !found || name == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return name, kind, true
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
