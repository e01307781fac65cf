package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gpio-leds/internal/led"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	LEDs          []LEDJSON    `json:"leds"`
	Interlock     []string     `json:"interlock"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LEDJSON is the JSON representation of one LED.
type LEDJSON struct {
	Name       string `json:"name"`
	Role       string `json:"role,omitempty"`
	Chip       string `json:"chip"`
	GPIO       int    `json:"gpio"`
	ActiveLow  bool   `json:"active_low"`
	CanSleep   bool   `json:"can_sleep"`
	Retain     bool   `json:"retain_state_suspended"`
	Brightness int    `json:"brightness"`
	Blink      int    `json:"blink"`
	DelayOnMs  int64  `json:"delay_on_ms"`
	DelayOffMs int64  `json:"delay_off_ms"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	Workers     int    `json:"workers"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

// NewLEDJSON converts an LED snapshot.
func NewLEDJSON(s led.State) LEDJSON {
	blink := 0
	if s.BlinkActive {
		blink = 1
	}
	role := ""
	if s.Role != led.RoleNone {
		role = s.Role.String()
	}
	return LEDJSON{
		Name:       s.Name,
		Role:       role,
		Chip:       s.Chip,
		GPIO:       s.GPIO,
		ActiveLow:  s.ActiveLow,
		CanSleep:   s.CanSleep,
		Retain:     s.Retain,
		Brightness: int(s.Brightness),
		Blink:      blink,
		DelayOnMs:  s.DelayOn.Milliseconds(),
		DelayOffMs: s.DelayOff.Milliseconds(),
	}
}

// FormatLED returns the JSON for a single LED, as published on its state topic.
func FormatLED(s led.State) []byte {
	data, _ := json.Marshal(NewLEDJSON(s))
	return data
}

func interlockNames(r led.Role) []string {
	names := []string{}
	for _, role := range []led.Role{led.RoleRed, led.RoleGreen, led.RoleBlue} {
		if r&role != 0 {
			names = append(names, role.String())
		}
	}
	return names
}

func buildInner(snap Snapshot) StatusInner {
	leds := make([]LEDJSON, len(snap.LEDs))
	for i, s := range snap.LEDs {
		leds[i] = NewLEDJSON(s)
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		LEDs:          leds,
		Interlock:     interlockNames(snap.Interlock),
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			Workers:     snap.Config.Workers,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
