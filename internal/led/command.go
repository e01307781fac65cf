package led

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCommand is returned for malformed brightness or blink requests.
var ErrInvalidCommand = errors.New("invalid command")

// ParseBrightness validates an external brightness value (0-255).
func ParseBrightness(v int) (Brightness, error) {
	if v < 0 || v > int(Full) {
		return Off, fmt.Errorf("%w: brightness %d out of range 0-255", ErrInvalidCommand, v)
	}
	return Brightness(v), nil
}

// BlinkCommand is an external blink request. Any non-zero Blink enables
// blinking; the delays are in milliseconds and zero for both selects the
// default period.
type BlinkCommand struct {
	Blink int   `json:"blink"`
	OnMs  int64 `json:"on_ms"`
	OffMs int64 `json:"off_ms"`
}

// MaxBlinkDelay bounds each half of an external blink period.
const MaxBlinkDelay = 24 * time.Hour

// Validate checks the delays.
func (c BlinkCommand) Validate() error {
	if c.OnMs < 0 || c.OffMs < 0 {
		return fmt.Errorf("%w: negative blink delay", ErrInvalidCommand)
	}
	if limit := MaxBlinkDelay.Milliseconds(); c.OnMs > limit || c.OffMs > limit {
		return fmt.Errorf("%w: blink delay above %s", ErrInvalidCommand, MaxBlinkDelay)
	}
	return nil
}

// BlinkSetter is implemented by *Registry.
type BlinkSetter interface {
	SetBlink(name string, enabled bool, on, off time.Duration) error
}

// Apply runs the command against the named LED.
func (c BlinkCommand) Apply(r BlinkSetter, name string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	on := time.Duration(c.OnMs) * time.Millisecond
	off := time.Duration(c.OffMs) * time.Millisecond
	return r.SetBlink(name, c.Blink != 0, on, off)
}
