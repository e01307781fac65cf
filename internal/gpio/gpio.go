// Package gpio provides GPIO output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device, a second
// backend goes through periph.io, and the fake implementation allows
// testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// DefaultChip is the chip used when a request does not name one.
const DefaultChip = "gpiochip0"

// ErrInvalidLine is returned when a request names a line the chip does not have.
var ErrInvalidLine = errors.New("gpio: invalid line")

// Line drives a single GPIO output.
type Line interface {
	// Set drives the line to value (0 or 1) without sleeping.
	// Callers must only use it when CanBlock reports false.
	Set(value int) error

	// SetBlocking drives the line to value from a context that may sleep.
	SetBlocking(value int) error

	// CanBlock reports whether driving the line may sleep, as is the case
	// for lines behind I2C or SPI expanders.
	CanBlock() bool

	// Value returns the current electrical level of the line.
	Value() (int, error)

	// Close releases the line.
	Close() error
}

// Blinker is implemented by lines whose controller can blink autonomously.
// Writing a level through Set or SetBlocking stops the blink.
//
// Neither the character device nor the periph backend blinks in hardware,
// so their lines do not implement Blinker and LEDs on them blink from a
// software timer. A provider for a blinking controller opts in by
// returning lines that do.
type Blinker interface {
	Blink(on, off time.Duration) error
}

// Request describes a line to acquire as an output.
type Request struct {
	Chip     string
	Offset   int
	Consumer string

	// Initial is the electrical level the line is driven to once acquired.
	Initial int

	// Keep leaves the line at its current level instead of Initial.
	Keep bool

	// CanSleep overrides the backend's detection when set.
	CanSleep *bool
}

// Provider acquires output lines.
type Provider interface {
	Request(req Request) (Line, error)
	Close() error
}

// Valid reports whether offset identifies a line at all.
// Negative offsets mark an LED as unavailable on this board.
func Valid(offset int) bool {
	return offset >= 0
}

func chipName(name string) string {
	if name == "" {
		return DefaultChip
	}
	return name
}
