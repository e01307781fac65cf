package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/gpio-leds/internal/gpio"
	"github.com/sweeney/gpio-leds/internal/led"
	"github.com/sweeney/gpio-leds/internal/logging"
	"github.com/sweeney/gpio-leds/internal/status"
	"github.com/sweeney/gpio-leds/internal/workqueue"
)

type bridgeEnv struct {
	client   *FakeClient
	bridge   *Bridge
	registry *led.Registry
	provider *gpio.FakeProvider
}

func newBridgeEnv(t *testing.T) *bridgeEnv {
	t.Helper()
	client := NewFakeClient()
	client.Connected = true
	b := NewBridge(client, "leds", logging.Discard())
	t.Cleanup(b.Close)

	q := workqueue.New(1)
	p := gpio.NewFakeProvider()
	reg, err := led.New([]led.Config{
		{Name: "red", GPIO: 1},
		{Name: "green", GPIO: 2},
		{Name: "power", GPIO: 3, DefaultState: led.DefaultOn},
	}, led.Options{Provider: p, Queue: q, Observer: b, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("led.New: %v", err)
	}
	t.Cleanup(func() {
		reg.Close()
		q.Close()
	})
	if err := b.Start(reg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.Flush()
	return &bridgeEnv{client: client, bridge: b, registry: reg, provider: p}
}

func lastState(t *testing.T, env *bridgeEnv, topic string) status.LEDJSON {
	t.Helper()
	env.bridge.Flush()
	m, ok := env.client.Last(topic)
	if !ok {
		t.Fatalf("nothing published on %s", topic)
	}
	if !m.Retained {
		t.Errorf("%s: state should be retained", topic)
	}
	var s status.LEDJSON
	if err := json.Unmarshal(m.Payload, &s); err != nil {
		t.Fatalf("%s: invalid JSON %q: %v", topic, m.Payload, err)
	}
	return s
}

func TestBridgePublishesInitialState(t *testing.T) {
	env := newBridgeEnv(t)

	if s := lastState(t, env, "leds/power/state"); s.Brightness != 255 {
		t.Errorf("power brightness: got %d, want 255", s.Brightness)
	}
	if s := lastState(t, env, "leds/red/state"); s.Brightness != 0 || s.Role != "red" {
		t.Errorf("red: got %+v", s)
	}
	subs := env.client.Subscriptions()
	if len(subs) != 1 || subs[0] != "leds/+/+/set" {
		t.Errorf("subscriptions: got %v", subs)
	}
}

func TestBridgeBrightnessCommand(t *testing.T) {
	env := newBridgeEnv(t)

	for _, payload := range []string{"255", "on", `{"brightness":1}`} {
		env.registry.SetBrightness("red", led.Off)
		if n := env.client.Deliver("leds/red/brightness/set", []byte(payload)); n != 1 {
			t.Fatalf("delivered to %d handlers, want 1", n)
		}
		if lvl := env.provider.Line(1).Level(); lvl != 1 {
			t.Errorf("payload %s: line level %d, want 1", payload, lvl)
		}
		if s := lastState(t, env, "leds/red/state"); s.Brightness == 0 {
			t.Errorf("payload %s: published brightness 0", payload)
		}
	}

	env.client.Deliver("leds/red/brightness/set", []byte("0"))
	if lvl := env.provider.Line(1).Level(); lvl != 0 {
		t.Errorf("line level after 0: got %d", lvl)
	}
}

func TestBridgeBlinkCommand(t *testing.T) {
	env := newBridgeEnv(t)

	env.client.Deliver("leds/power/blink/set", []byte(`{"blink":1,"on_ms":200,"off_ms":100}`))
	s := lastState(t, env, "leds/power/state")
	if s.Blink != 1 || s.DelayOnMs != 200 || s.DelayOffMs != 100 {
		t.Errorf("after enable: got %+v", s)
	}

	env.client.Deliver("leds/power/blink/set", []byte("0"))
	s = lastState(t, env, "leds/power/state")
	if s.Blink != 0 || s.Brightness != 0 {
		t.Errorf("after disable: got %+v", s)
	}

	env.client.Deliver("leds/power/blink/set", []byte("1"))
	s = lastState(t, env, "leds/power/state")
	if s.Blink != 1 || s.DelayOnMs != led.DefaultBlinkOn.Milliseconds() {
		t.Errorf("bare 1 should select the default period, got %+v", s)
	}
	env.registry.SetBlink("power", false, 0, 0)
}

func TestBridgeIgnoresBadCommands(t *testing.T) {
	env := newBridgeEnv(t)
	before := len(env.client.Messages())

	env.client.Deliver("leds/red/brightness/set", []byte("bright"))
	env.client.Deliver("leds/red/brightness/set", []byte("999"))
	env.client.Deliver("leds/red/blink/set", []byte(`{"blink":1,"on_ms":-1}`))
	env.client.Deliver("leds/nope/brightness/set", []byte("1"))
	env.client.Deliver("leds/red/colour/set", []byte("1"))

	env.bridge.Flush()
	if after := len(env.client.Messages()); after != before {
		t.Errorf("rejected commands published %d messages", after-before)
	}
	if lvl := env.provider.Line(1).Level(); lvl != 0 {
		t.Errorf("red line changed: level %d", lvl)
	}
}

func TestBridgeUnregisterClearsRetainedState(t *testing.T) {
	env := newBridgeEnv(t)

	if err := env.registry.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	env.bridge.Flush()
	for _, name := range []string{"red", "green", "power"} {
		m, ok := env.client.Last("leds/" + name + "/state")
		if !ok || len(m.Payload) != 0 || !m.Retained {
			t.Errorf("%s: expected empty retained message, got %+v", name, m)
		}
	}
}

func TestBridgePublishSystem(t *testing.T) {
	env := newBridgeEnv(t)

	err := env.bridge.PublishSystem(SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
		Retained:  true,
	})
	if err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}
	m, ok := env.client.Last("leds/system")
	if !ok {
		t.Fatal("nothing on leds/system")
	}
	if !m.Retained || m.QoS != 1 {
		t.Errorf("system message flags: %+v", m)
	}
	want := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(m.Payload) != want {
		t.Errorf("payload:\ngot:  %s\nwant: %s", m.Payload, want)
	}
}

func TestBridgePublishSystemError(t *testing.T) {
	env := newBridgeEnv(t)
	env.client.PublishError = errors.New("broker down")

	if err := env.bridge.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected error")
	}
	// State publish failures are logged, never surfaced.
	env.registry.SetBrightness("red", led.Full)
	env.bridge.Flush()
	env.client.PublishError = nil
}

func TestBridgeStartSubscribeError(t *testing.T) {
	client := NewFakeClient()
	client.SubscribeError = errors.New("denied")
	b := NewBridge(client, "leds", logging.Discard())
	defer b.Close()

	if err := b.Start(nil); err == nil {
		t.Error("expected subscribe error")
	}
}

func TestBridgeIsConnected(t *testing.T) {
	client := NewFakeClient()
	b := NewBridge(client, "leds", nil)
	defer b.Close()
	if b.IsConnected() {
		t.Error("expected disconnected")
	}
	client.Connected = true
	if !b.IsConnected() {
		t.Error("expected connected")
	}
}

// slowClient stands in for a broker that takes a long time to ack.
type slowClient struct {
	*FakeClient
	delay time.Duration
}

func (c *slowClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	time.Sleep(c.delay)
	return c.FakeClient.Publish(topic, qos, retained, payload)
}

func TestBridgeSlowBrokerDoesNotBlockLEDs(t *testing.T) {
	client := &slowClient{FakeClient: NewFakeClient(), delay: 500 * time.Millisecond}
	b := NewBridge(client, "leds", logging.Discard())
	defer b.Close()

	q := workqueue.New(1)
	defer q.Close()
	p := gpio.NewFakeProvider()
	reg, err := led.New([]led.Config{{Name: "red", GPIO: 1}},
		led.Options{Provider: p, Queue: q, Observer: b, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("led.New: %v", err)
	}
	defer reg.Close()
	l, _ := reg.Get("red")

	start := time.Now()
	for _, v := range []led.Brightness{led.Full, led.Off, 7} {
		l.SetBrightness(v)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("SetBrightness took %v behind a slow broker", d)
	}
	if lvl := p.Line(1).Level(); lvl != 1 {
		t.Errorf("line level: got %d, want 1", lvl)
	}

	b.Flush()
	var published int
	for _, m := range client.Messages() {
		if m.Topic == "leds/red/state" {
			published++
		}
	}
	if published >= 4 {
		t.Errorf("expected queued updates to coalesce, got %d publishes", published)
	}
	m, _ := client.Last("leds/red/state")
	var s status.LEDJSON
	if err := json.Unmarshal(m.Payload, &s); err != nil || s.Brightness != 7 {
		t.Errorf("last state: got %+v, %v", s, err)
	}
}

func TestBridgeCloseDrainsAndDrops(t *testing.T) {
	env := newBridgeEnv(t)

	env.registry.SetBrightness("red", led.Full)
	env.bridge.Close()
	if s := lastState(t, env, "leds/red/state"); s.Brightness != 255 {
		t.Errorf("update queued before Close was lost: %+v", s)
	}

	before := len(env.client.Messages())
	env.registry.SetBrightness("red", led.Off)
	env.bridge.Close()
	if after := len(env.client.Messages()); after != before {
		t.Errorf("published %d messages after Close", after-before)
	}
}

func TestParseBrightnessPayload(t *testing.T) {
	tests := []struct {
		in   string
		want led.Brightness
		err  bool
	}{
		{"0", led.Off, false},
		{" 255\n", led.Full, false},
		{"1", 1, false},
		{"ON", led.Full, false},
		{"off", led.Off, false},
		{`{"brightness":128}`, 128, false},
		{`{}`, 0, true},
		{`{"brightness":`, 0, true},
		{"256", 0, true},
		{"-1", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseBrightnessPayload([]byte(tt.in))
		if (err != nil) != tt.err {
			t.Errorf("ParseBrightnessPayload(%q): err = %v, want error %v", tt.in, err, tt.err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("ParseBrightnessPayload(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseBlinkPayload(t *testing.T) {
	cmd, err := ParseBlinkPayload([]byte("1"))
	if err != nil || cmd.Blink != 1 || cmd.OnMs != 0 {
		t.Errorf("bare 1: got %+v, %v", cmd, err)
	}
	cmd, err = ParseBlinkPayload([]byte(`{"blink":1,"on_ms":50,"off_ms":75}`))
	if err != nil || cmd.OnMs != 50 || cmd.OffMs != 75 {
		t.Errorf("json: got %+v, %v", cmd, err)
	}
	if _, err := ParseBlinkPayload([]byte("fast")); !errors.Is(err, ErrBadPayload) {
		t.Errorf("bad payload: got %v", err)
	}
}
