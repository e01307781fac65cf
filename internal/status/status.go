// Package status provides a thread-safe status tracker for the gpio-leds daemon.
// It is read by the HTTP handlers and the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/gpio-leds/internal/led"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	Workers     int
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// LEDSource supplies LED snapshots. *led.Registry implements it.
type LEDSource interface {
	States() []led.State
	InterlockFlags() led.Role
}

// Connection reports broker connectivity. *mqtt.Bridge implements it.
type Connection interface {
	IsConnected() bool
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	LEDs          []led.State
	Interlock     led.Role
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	source LEDSource
	conn   Connection
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetSource sets where LED state is read from.
func (t *Tracker) SetSource(src LEDSource) {
	t.mu.Lock()
	t.source = src
	t.mu.Unlock()
}

// SetConnection makes every snapshot read MQTTConnected from conn.
func (t *Tracker) SetConnection(conn Connection) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time and LED state is read from the
// source at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	src := t.source
	conn := t.conn
	t.mu.RUnlock()
	if conn != nil {
		s.MQTTConnected = conn.IsConnected()
	}
	if src != nil {
		s.LEDs = src.States()
		s.Interlock = src.InterlockFlags()
	}
	s.Now = time.Now()
	return s
}
