package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/gpio-leds/internal/led"
	"github.com/sweeney/gpio-leds/internal/status"
)

// ErrBadPayload is returned for command payloads that cannot be parsed.
var ErrBadPayload = errors.New("bad payload")

// Controller is the LED surface commands are applied to. *led.Registry
// implements it.
type Controller interface {
	SetBrightness(name string, b led.Brightness) error
	SetBlink(name string, enabled bool, on, off time.Duration) error
}

// Bridge publishes LED state and applies incoming commands. It implements
// led.Observer, so it must be passed to led.New before Start is called.
//
// LED state is published from a single goroutine. Only the latest payload
// per topic is kept while a publish is in flight, so a slow broker delays
// state updates but never the LED request that caused them.
type Bridge struct {
	client Client
	topics Topics
	log    *slog.Logger

	mu   sync.RWMutex
	ctrl Controller

	outMu   sync.Mutex
	outCond *sync.Cond
	pending map[string][]byte
	order   []string
	sending bool
	closed  bool
	done    chan struct{}
}

// NewBridge creates a Bridge publishing under prefix and starts its
// publisher. Call Close once the LEDs are torn down.
func NewBridge(client Client, prefix string, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	b := &Bridge{
		client:  client,
		topics:  Topics{Prefix: prefix},
		log:     log,
		pending: make(map[string][]byte),
		done:    make(chan struct{}),
	}
	b.outCond = sync.NewCond(&b.outMu)
	go b.publishLoop()
	return b
}

// Topics returns the topic layout used by the bridge.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Start subscribes to command topics and routes them to ctrl.
func (b *Bridge) Start(ctrl Controller) error {
	b.mu.Lock()
	b.ctrl = ctrl
	b.mu.Unlock()

	if err := b.client.Subscribe(b.topics.Commands(), 1, b.handleMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.topics.Commands(), err)
	}
	b.log.Info("listening for commands", "filter", b.topics.Commands())
	return nil
}

// Register implements led.Observer. It publishes the initial state.
func (b *Bridge) Register(l *led.LED) error {
	b.Changed(l.State())
	return nil
}

// Changed implements led.Observer. State is published retained so new
// subscribers see the current level. It never blocks on the broker.
func (b *Bridge) Changed(s led.State) {
	b.enqueue(b.topics.State(s.Name), status.FormatLED(s))
}

// Unregister implements led.Observer. It clears the retained state.
func (b *Bridge) Unregister(l *led.LED) {
	b.enqueue(b.topics.State(l.Name()), nil)
}

// enqueue replaces any unsent payload for topic.
func (b *Bridge) enqueue(topic string, payload []byte) {
	b.outMu.Lock()
	defer b.outMu.Unlock()
	if b.closed {
		b.log.Debug("bridge closed, state not published", "topic", topic)
		return
	}
	if _, ok := b.pending[topic]; !ok {
		b.order = append(b.order, topic)
	}
	b.pending[topic] = payload
	b.outCond.Broadcast()
}

func (b *Bridge) publishLoop() {
	defer close(b.done)

	b.outMu.Lock()
	for {
		for len(b.order) == 0 && !b.closed {
			b.outCond.Wait()
		}
		if len(b.order) == 0 {
			b.outMu.Unlock()
			return
		}
		topic := b.order[0]
		b.order = b.order[1:]
		payload := b.pending[topic]
		delete(b.pending, topic)
		b.sending = true
		b.outMu.Unlock()

		if err := b.client.Publish(topic, 1, true, payload); err != nil {
			b.log.Warn("publish LED state failed", "topic", topic, "error", err)
		}

		b.outMu.Lock()
		b.sending = false
		b.outCond.Broadcast()
	}
}

// Flush blocks until every queued state update has been handed to the
// client.
func (b *Bridge) Flush() {
	b.outMu.Lock()
	for len(b.order) > 0 || b.sending {
		b.outCond.Wait()
	}
	b.outMu.Unlock()
}

// Close publishes the remaining state updates and stops the publisher.
// Later updates are dropped. Calling Close again is a no-op.
func (b *Bridge) Close() {
	b.outMu.Lock()
	b.closed = true
	b.outCond.Broadcast()
	b.outMu.Unlock()
	<-b.done
}

// PublishSystem sends a system lifecycle event.
func (b *Bridge) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) - lifecycle events should be delivered
	if err := b.client.Publish(b.topics.System(), 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports the client connection state.
func (b *Bridge) IsConnected() bool {
	return b.client.IsConnected()
}

func (b *Bridge) handleMessage(topic string, payload []byte) {
	name, kind, ok := b.topics.parseCommand(topic)
	if !ok {
		b.log.Debug("ignoring message on unexpected topic", "topic", topic)
		return
	}

	b.mu.RLock()
	ctrl := b.ctrl
	b.mu.RUnlock()
	if ctrl == nil {
		return
	}

	var err error
	switch kind {
	case suffixBrightness:
		var v led.Brightness
		v, err = ParseBrightnessPayload(payload)
		if err == nil {
			err = ctrl.SetBrightness(name, v)
		}
	case suffixBlink:
		var cmd led.BlinkCommand
		cmd, err = ParseBlinkPayload(payload)
		if err == nil {
			err = cmd.Apply(ctrl, name)
		}
	default:
		b.log.Debug("ignoring unknown command", "topic", topic)
		return
	}
	if err != nil {
		b.log.Warn("command rejected", "topic", topic, "payload", string(payload), "error", err)
		return
	}
	b.log.Debug("command applied", "led", name, "command", kind)
}

// ParseBrightnessPayload accepts a bare integer, "on"/"off", or
// {"brightness":N}.
func ParseBrightnessPayload(payload []byte) (led.Brightness, error) {
	s := strings.TrimSpace(string(payload))
	switch strings.ToLower(s) {
	case "on":
		return led.Full, nil
	case "off":
		return led.Off, nil
	}

	if strings.HasPrefix(s, "{") {
		var body struct {
			Brightness *int `json:"brightness"`
		}
		if err := json.Unmarshal([]byte(s), &body); err != nil {
			return led.Off, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if body.Brightness == nil {
			return led.Off, fmt.Errorf("%w: missing brightness", ErrBadPayload)
		}
		return led.ParseBrightness(*body.Brightness)
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return led.Off, fmt.Errorf("%w: %q", ErrBadPayload, s)
	}
	return led.ParseBrightness(v)
}

// ParseBlinkPayload accepts a bare integer (non-zero enables with the
// default period) or a JSON blink command.
func ParseBlinkPayload(payload []byte) (led.BlinkCommand, error) {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, "{") {
		var cmd led.BlinkCommand
		if err := json.Unmarshal([]byte(s), &cmd); err != nil {
			return led.BlinkCommand{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return cmd, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return led.BlinkCommand{}, fmt.Errorf("%w: %q", ErrBadPayload, s)
	}
	return led.BlinkCommand{Blink: v}, nil
}
