package mqtt

import (
	"strings"
	"sync"
)

// Message is a publish recorded by FakeClient.
type Message struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeClient records published messages for test assertions and lets
// tests inject incoming ones.
type FakeClient struct {
	mu sync.Mutex

	messages []Message // everything published, in order

	subs map[string]MessageHandler

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error

	// Connected controls the return value of IsConnected.
	Connected bool

	closed bool
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{subs: make(map[string]MessageHandler)}
}

// Publish records the message.
func (f *FakeClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.messages = append(f.messages, Message{Topic: topic, QoS: qos, Retained: retained, Payload: payload})
	return nil
}

// Subscribe records the handler.
func (f *FakeClient) Subscribe(filter string, qos byte, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.subs[filter] = handler
	return nil
}

// Deliver hands an incoming message to every matching subscription, on the
// caller's goroutine. It returns the number of handlers called.
func (f *FakeClient) Deliver(topic string, payload []byte) int {
	f.mu.Lock()
	var handlers []MessageHandler
	for filter, h := range f.subs {
		if topicMatches(filter, topic) {
			handlers = append(handlers, h)
		}
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return len(handlers)
}

// Messages returns everything published so far.
func (f *FakeClient) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages...)
}

// Last returns the most recent message published to topic.
func (f *FakeClient) Last(topic string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].Topic == topic {
			return f.messages[i], true
		}
	}
	return Message{}, false
}

// Subscriptions returns the subscribed filters.
func (f *FakeClient) Subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for filter := range f.subs {
		out = append(out, filter)
	}
	return out
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeClient) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded messages.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	f.messages = nil
	f.mu.Unlock()
}

// topicMatches reports whether topic matches an MQTT filter with + and #
// wildcards.
func topicMatches(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
