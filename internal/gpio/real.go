//go:build linux

package gpio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// sleepingDrivers lists chip label prefixes of GPIO expanders that sit on a
// bus. Driving their lines goes through I2C/SPI transfers and may sleep.
var sleepingDrivers = []string{"pca953", "pca957", "pcf857", "mcp23", "tca64", "sx150", "max732"}

// ChipProvider acquires lines from Linux GPIO character devices.
type ChipProvider struct {
	mu    sync.Mutex
	chips map[string]*gpiocdev.Chip
}

// NewChipProvider creates a provider. Chips are opened on first use.
func NewChipProvider() *ChipProvider {
	return &ChipProvider{chips: make(map[string]*gpiocdev.Chip)}
}

func (p *ChipProvider) chip(name string) (*gpiocdev.Chip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.chips[name]; ok {
		return c, nil
	}
	c, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	p.chips[name] = c
	return c, nil
}

// Request acquires the line as an output.
func (p *ChipProvider) Request(req Request) (Line, error) {
	name := chipName(req.Chip)
	c, err := p.chip(name)
	if err != nil {
		return nil, err
	}
	if req.Offset < 0 || req.Offset >= c.Lines() {
		return nil, fmt.Errorf("%w: %s offset %d (chip has %d lines)", ErrInvalidLine, name, req.Offset, c.Lines())
	}

	var l *gpiocdev.Line
	if req.Keep {
		// Read the level left by the bootloader before taking the line as output.
		l, err = c.RequestLine(req.Offset, gpiocdev.AsIs, gpiocdev.WithConsumer(req.Consumer))
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, req.Offset, err)
		}
		v, err := l.Value()
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("read %s pin %d: %w", name, req.Offset, err)
		}
		if err := l.Reconfigure(gpiocdev.AsOutput(v)); err != nil {
			l.Close()
			return nil, fmt.Errorf("reconfigure %s pin %d: %w", name, req.Offset, err)
		}
	} else {
		l, err = c.RequestLine(req.Offset, gpiocdev.AsOutput(req.Initial), gpiocdev.WithConsumer(req.Consumer))
		if err != nil {
			return nil, fmt.Errorf("request %s pin %d: %w", name, req.Offset, err)
		}
	}

	canSleep := isSleepingChip(c.Label)
	if req.CanSleep != nil {
		canSleep = *req.CanSleep
	}
	return &cdevLine{line: l, canSleep: canSleep}, nil
}

// Close closes every chip opened by the provider.
func (p *ChipProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for name, c := range p.chips {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip %s: %w", name, err))
		}
		delete(p.chips, name)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func isSleepingChip(label string) bool {
	label = strings.ToLower(label)
	for _, prefix := range sleepingDrivers {
		if strings.HasPrefix(label, prefix) {
			return true
		}
	}
	return false
}

// cdevLine is a single requested character device line.
type cdevLine struct {
	line     *gpiocdev.Line
	canSleep bool
}

func (l *cdevLine) Set(value int) error {
	if err := l.line.SetValue(value); err != nil {
		return fmt.Errorf("set pin %d: %w", l.line.Offset(), err)
	}
	return nil
}

func (l *cdevLine) SetBlocking(value int) error {
	return l.Set(value)
}

func (l *cdevLine) CanBlock() bool {
	return l.canSleep
}

func (l *cdevLine) Value() (int, error) {
	v, err := l.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %w", l.line.Offset(), err)
	}
	return v, nil
}

func (l *cdevLine) Close() error {
	return l.line.Close()
}
