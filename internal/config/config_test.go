package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-leds/internal/led"
)

const sample = `
gpio:
  backend: gpiocdev
  chip: gpiochip0
workers: 3
leds:
  - name: red
    gpio: 17
  - name: green
    gpio: 27
    active_low: true
    default_state: keep
  - name: expander
    chip: gpiochip2
    gpio: 4
    can_sleep: true
    retain_state_suspended: true
  - name: spare
    gpio: -1
http:
  listen: ":9090"
mqtt:
  broker: tcp://192.168.1.200:1883
  prefix: home/leds
  heartbeat: 5m
logging:
  level: debug
  format: json
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, ":9090", cfg.HTTP.Listen)
	assert.True(t, cfg.HTTPEnabled())
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, "home/leds", cfg.MQTT.Prefix)
	assert.Equal(t, DefaultClientID, cfg.MQTT.ClientID)
	assert.Equal(t, 5*time.Minute, cfg.MQTT.Heartbeat)
	assert.Equal(t, "json", cfg.Logging.Format)

	leds := cfg.LEDConfigs()
	require.Len(t, leds, 4)

	assert.Equal(t, led.Config{Name: "red", Chip: "gpiochip0", GPIO: 17}, leds[0])
	assert.Equal(t, led.Config{Name: "green", Chip: "gpiochip0", GPIO: 27, ActiveLow: true, DefaultState: led.DefaultKeep}, leds[1])

	assert.Equal(t, "gpiochip2", leds[2].Chip)
	require.NotNil(t, leds[2].CanSleep)
	assert.True(t, *leds[2].CanSleep)
	assert.True(t, leds[2].RetainStateSuspended)

	assert.Equal(t, -1, leds[3].GPIO, "unavailable entries are kept so indices line up")
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("leds:\n  - name: power\n    gpio: 3\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendGPIOCDev, cfg.GPIO.Backend)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, DefaultListen, cfg.HTTP.Listen)
	assert.False(t, cfg.MQTT.Enabled())
	assert.Equal(t, DefaultPrefix, cfg.MQTT.Prefix)
	assert.Equal(t, DefaultHeartbeat, cfg.MQTT.Heartbeat)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestParseHTTPOff(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  listen: \"off\"\nleds:\n  - name: power\n    gpio: 3\n"))
	require.NoError(t, err)
	assert.False(t, cfg.HTTPEnabled())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("leds:\n  - name: power\n    gpio: 3\n    colour: red\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no leds", "workers: 1\n", "at least one LED"},
		{"missing name", "leds:\n  - gpio: 3\n", "leds[0]: missing name"},
		{"missing gpio", "leds:\n  - name: a\n", "leds[0]: missing gpio"},
		{"duplicate", "leds:\n  - name: a\n    gpio: 1\n  - name: a\n    gpio: 2\n", "already used by leds[0]"},
		{"topic chars", "leds:\n  - name: a/b\n    gpio: 1\n", "MQTT topic character"},
		{"default state", "leds:\n  - name: a\n    gpio: 1\n    default_state: blink\n", "invalid default state"},
		{"backend", "gpio:\n  backend: sysfs\nleds:\n  - name: a\n    gpio: 1\n", "unknown backend"},
		{"workers", "workers: -1\nleds:\n  - name: a\n    gpio: 1\n", "workers"},
		{"level", "logging:\n  level: loud\nleds:\n  - name: a\n    gpio: 1\n", "logging.level"},
		{"format", "logging:\n  format: xml\nleds:\n  - name: a\n    gpio: 1\n", "logging.format"},
		{"prefix", "mqtt:\n  broker: tcp://b:1883\n  prefix: a/#\nleds:\n  - name: a\n    gpio: 1\n", "wildcard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	_, err := Parse([]byte("leds:\n  - name: a\n  - gpio: 2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leds[0]: missing gpio")
	assert.Contains(t, err.Error(), "leds[1]: missing name")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.LEDs, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
