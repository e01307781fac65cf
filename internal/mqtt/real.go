package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultBufferSize is the number of messages held while disconnected.
const DefaultBufferSize = 256

// Options configure a PahoClient.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	CACert     string
	ClientCert string
	ClientKey  string

	// Will is published by the broker if the connection drops uncleanly.
	Will *Will

	// BufferSize bounds the disconnected-publish buffer (default DefaultBufferSize).
	BufferSize int

	// OnReconnect runs after every connection but the first, once
	// subscriptions are restored and buffered messages flushed.
	OnReconnect func()

	Logger *slog.Logger
}

// Will is a last-will message.
type Will struct {
	Topic    string
	Payload  []byte
	Retained bool
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// PahoClient is a Client backed by an actual MQTT broker. Publishes made
// while disconnected are buffered and replayed on reconnection.
type PahoClient struct {
	client      paho.Client
	log         *slog.Logger
	onReconnect func()

	mu        sync.Mutex
	buffer    *ringBuffer
	subs      map[string]subscription
	connected bool // at least one connection has been made
}

// NewPahoClient creates a client and starts connecting. An unreachable broker
// is not an error: the client keeps retrying in the background.
func NewPahoClient(o Options) (*PahoClient, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}

	p := &PahoClient{
		log:         o.Logger,
		onReconnect: o.OnReconnect,
		buffer:      newRingBuffer(o.BufferSize),
		subs:        make(map[string]subscription),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		// Handlers apply LED changes, which publish state and wait on the
		// token; with ordered delivery that wait would stall the router.
		SetOrderMatters(false).
		SetConnectionLostHandler(p.handleConnectionLost).
		SetOnConnectHandler(p.handleConnect)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.CACert != "" || o.ClientCert != "" {
		tlsConfig, err := buildTLSConfig(o)
		if err != nil {
			return nil, fmt.Errorf("build TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}
	if o.Will != nil {
		opts.SetBinaryWill(o.Will.Topic, o.Will.Payload, 1, o.Will.Retained)
	}

	paho.ERROR = slog.NewLogLogger(o.Logger.Handler(), slog.LevelError)
	paho.CRITICAL = slog.NewLogLogger(o.Logger.Handler(), slog.LevelError)
	paho.WARN = slog.NewLogLogger(o.Logger.Handler(), slog.LevelWarn)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn("broker not reachable yet, retrying in background", "broker", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func buildTLSConfig(o Options) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if o.CACert != "" {
		caCert, err := os.ReadFile(o.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", o.CACert)
		}
		tlsConfig.RootCAs = caPool
	}

	if o.ClientCert != "" && o.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(o.ClientCert, o.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// Publish sends a message, or buffers it while the connection is down.
func (p *PahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained}) {
			p.log.Warn("mqtt buffer full, dropping oldest", "capacity", p.buffer.capacity)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.publish(topic, qos, retained, payload)
}

func (p *PahoClient) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for filter, now if connected and again after
// every reconnection.
func (p *PahoClient) Subscribe(filter string, qos byte, handler MessageHandler) error {
	p.mu.Lock()
	p.subs[filter] = subscription{qos: qos, handler: handler}
	open := p.client.IsConnectionOpen()
	p.mu.Unlock()

	if !open {
		return nil
	}
	return p.subscribe(filter, subscription{qos: qos, handler: handler})
}

func (p *PahoClient) subscribe(filter string, s subscription) error {
	token := p.client.Subscribe(filter, s.qos, func(_ paho.Client, msg paho.Message) {
		s.handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

// IsConnected reports whether the connection is currently up.
func (p *PahoClient) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *PahoClient) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *PahoClient) handleConnect(_ paho.Client) {
	p.mu.Lock()
	pending := p.buffer.drainAll()
	subs := make(map[string]subscription, len(p.subs))
	for f, s := range p.subs {
		subs[f] = s
	}
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	p.log.Info("mqtt connected", "buffered", len(pending), "subscriptions", len(subs))

	for f, s := range subs {
		if err := p.subscribe(f, s); err != nil {
			p.log.Warn("resubscribe failed", "error", err)
		}
	}
	var failed []string
	for _, m := range pending {
		if err := p.publish(m.topic, m.qos, m.retained, m.payload); err != nil {
			failed = append(failed, m.topic)
		}
	}
	if len(failed) > 0 {
		p.log.Warn("replay of buffered messages failed", "topics", strings.Join(failed, ","))
	}

	if reconnect && p.onReconnect != nil {
		p.onReconnect()
	}
}

func (p *PahoClient) handleConnectionLost(_ paho.Client, err error) {
	p.log.Warn("mqtt connection lost", "error", err)
}
