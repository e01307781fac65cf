package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTopics(t *testing.T) {
	tp := Topics{Prefix: "home/leds"}

	tests := []struct{ got, want string }{
		{tp.System(), "home/leds/system"},
		{tp.State("red"), "home/leds/red/state"},
		{tp.Brightness("red"), "home/leds/red/brightness/set"},
		{tp.Blink("red"), "home/leds/red/blink/set"},
		{tp.Commands(), "home/leds/+/+/set"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestParseCommand(t *testing.T) {
	tp := Topics{Prefix: "home/leds"}

	tests := []struct {
		topic      string
		name, kind string
		ok         bool
	}{
		{"home/leds/red/brightness/set", "red", "brightness", true},
		{"home/leds/power/blink/set", "power", "blink", true},
		{"home/leds/red/state", "", "", false},
		{"home/leds/system", "", "", false},
		{"other/red/brightness/set", "", "", false},
		{"home/leds//brightness/set", "", "", false},
		{"home/leds/red/x/y/set", "", "", false},
	}
	for _, tt := range tests {
		name, kind, ok := tp.parseCommand(tt.topic)
		if ok != tt.ok || name != tt.name || kind != tt.kind {
			t.Errorf("parseCommand(%q) = %q, %q, %v; want %q, %q, %v",
				tt.topic, name, kind, ok, tt.name, tt.kind, tt.ok)
		}
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["system"]["reason"]; ok {
		t.Error("reason should be omitted when empty")
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 3, 30, 0, 0, loc),
		Event:     "HEARTBEAT",
	}

	payload, _ := FormatSystemPayload(event)

	var parsed SystemPayload
	json.Unmarshal(payload, &parsed)
	if parsed.System.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/+/+/set", "a/red/blink/set", true},
		{"a/+/+/set", "a/red/set", false},
		{"a/+/+/set", "a/red/blink/set/x", false},
		{"a/#", "a/red/blink/set", true},
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
	}
	for _, tt := range tests {
		if got := topicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("topicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestFakeClient(t *testing.T) {
	f := NewFakeClient()

	f.Publish("a/b", 1, true, []byte("x"))
	f.Publish("a/c", 0, false, []byte("y"))
	f.Publish("a/b", 1, true, []byte("z"))

	if n := len(f.Messages()); n != 3 {
		t.Fatalf("expected 3 messages, got %d", n)
	}
	m, ok := f.Last("a/b")
	if !ok || string(m.Payload) != "z" || !m.Retained || m.QoS != 1 {
		t.Errorf("Last(a/b) = %+v, %v", m, ok)
	}

	f.PublishError = errors.New("broker down")
	if err := f.Publish("a/b", 0, false, nil); err == nil {
		t.Error("expected PublishError")
	}

	f.Reset()
	if len(f.Messages()) != 0 {
		t.Error("Reset should clear messages")
	}

	f.Close()
	if !f.Closed() {
		t.Error("expected Closed=true")
	}
}
