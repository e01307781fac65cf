// Package config loads the gpio-leds YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sweeney/gpio-leds/internal/gpio"
	"github.com/sweeney/gpio-leds/internal/led"
	"github.com/sweeney/gpio-leds/internal/logging"
	"github.com/sweeney/gpio-leds/internal/workqueue"
)

// GPIO backends.
const (
	BackendGPIOCDev = "gpiocdev"
	BackendPeriph   = "periph"
)

// Defaults applied to fields left empty.
const (
	DefaultListen    = ":8080"
	DefaultPrefix    = "gpio-leds"
	DefaultClientID  = "gpio-leds"
	DefaultHeartbeat = 15 * time.Minute
)

// Disabled turns off the HTTP server when used as http.listen.
const Disabled = "off"

// Config is the top-level configuration file.
type Config struct {
	// GPIO backend selection
	GPIO GPIO `yaml:"gpio"`

	// LEDs, in construction order
	LEDs []LED `yaml:"leds"`

	// Number of workers running deferred writes
	Workers int `yaml:"workers"`

	HTTP    HTTP    `yaml:"http"`
	MQTT    MQTT    `yaml:"mqtt"`
	Logging Logging `yaml:"logging"`
}

// GPIO selects the line backend and the default chip.
type GPIO struct {
	Backend string `yaml:"backend"` // "gpiocdev" or "periph"
	Chip    string `yaml:"chip"`
}

// LED is one entry of the leds list.
type LED struct {
	Name                 string `yaml:"name"`
	Chip                 string `yaml:"chip"`
	GPIO                 *int   `yaml:"gpio"` // negative marks the LED unavailable
	ActiveLow            bool   `yaml:"active_low"`
	DefaultState         string `yaml:"default_state"` // "off", "on" or "keep"
	RetainStateSuspended bool   `yaml:"retain_state_suspended"`
	CanSleep             *bool  `yaml:"can_sleep"`
}

// HTTP holds the status/API server settings.
type HTTP struct {
	Listen string `yaml:"listen"` // "off" disables
}

// MQTT holds broker connection settings. An empty broker disables MQTT.
type MQTT struct {
	Broker     string        `yaml:"broker"`
	ClientID   string        `yaml:"client_id"`
	Prefix     string        `yaml:"prefix"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	CACert     string        `yaml:"ca_cert"`
	ClientCert string        `yaml:"client_cert"`
	ClientKey  string        `yaml:"client_key"`
	Heartbeat  time.Duration `yaml:"heartbeat"` // 0 keeps the default; negative disables
}

// Enabled reports whether a broker is configured.
func (m MQTT) Enabled() bool {
	return m.Broker != ""
}

// Logging configures the process logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data, applies defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GPIO.Backend == "" {
		c.GPIO.Backend = BackendGPIOCDev
	}
	if c.GPIO.Chip == "" {
		c.GPIO.Chip = gpio.DefaultChip
	}
	if c.Workers == 0 {
		c.Workers = workqueue.DefaultWorkers
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = DefaultListen
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = DefaultPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.MQTT.Heartbeat == 0 {
		c.MQTT.Heartbeat = DefaultHeartbeat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = logging.FormatText
	}
}

// Validate checks the configuration. Every problem found is reported.
func (c *Config) Validate() error {
	var errs []error

	switch c.GPIO.Backend {
	case BackendGPIOCDev, BackendPeriph:
	default:
		errs = append(errs, fmt.Errorf("gpio.backend: unknown backend %q", c.GPIO.Backend))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers: must be at least 1, got %d", c.Workers))
	}
	if len(c.LEDs) == 0 {
		errs = append(errs, errors.New("leds: at least one LED is required"))
	}

	seen := make(map[string]int, len(c.LEDs))
	for i, l := range c.LEDs {
		if l.Name == "" {
			errs = append(errs, fmt.Errorf("leds[%d]: missing name", i))
		} else if j, dup := seen[l.Name]; dup {
			errs = append(errs, fmt.Errorf("leds[%d]: name %q already used by leds[%d]", i, l.Name, j))
		} else {
			seen[l.Name] = i
		}
		if strings.ContainsAny(l.Name, "/+#") {
			errs = append(errs, fmt.Errorf("leds[%d]: name %q contains an MQTT topic character", i, l.Name))
		}
		if l.GPIO == nil {
			errs = append(errs, fmt.Errorf("leds[%d]: missing gpio", i))
		}
		if _, err := led.ParseDefaultState(l.DefaultState); err != nil {
			errs = append(errs, fmt.Errorf("leds[%d]: %w", i, err))
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	if c.MQTT.Enabled() && strings.ContainsAny(c.MQTT.Prefix, "+#") {
		errs = append(errs, fmt.Errorf("mqtt.prefix: %q contains a wildcard", c.MQTT.Prefix))
	}

	return errors.Join(errs...)
}

// LEDConfigs converts the leds list into LED configurations. Entries
// without a chip use gpio.chip. It assumes Validate has passed.
func (c *Config) LEDConfigs() []led.Config {
	out := make([]led.Config, 0, len(c.LEDs))
	for _, l := range c.LEDs {
		chip := l.Chip
		if chip == "" {
			chip = c.GPIO.Chip
		}
		ds, _ := led.ParseDefaultState(l.DefaultState)
		offset := -1
		if l.GPIO != nil {
			offset = *l.GPIO
		}
		out = append(out, led.Config{
			Name:                 l.Name,
			Chip:                 chip,
			GPIO:                 offset,
			ActiveLow:            l.ActiveLow,
			DefaultState:         ds,
			RetainStateSuspended: l.RetainStateSuspended,
			CanSleep:             l.CanSleep,
		})
	}
	return out
}

// HTTPEnabled reports whether the HTTP server should run.
func (c *Config) HTTPEnabled() bool {
	return c.HTTP.Listen != Disabled
}
