package gpio

import (
	"fmt"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphProvider acquires lines through the periph.io pin registry.
// Offsets are BCM numbers and resolve to pins named "GPIO<offset>";
// the chip name is ignored.
type PeriphProvider struct {
	once    sync.Once
	initErr error
}

// NewPeriphProvider creates a provider. The host drivers are loaded on first use.
func NewPeriphProvider() *PeriphProvider {
	return &PeriphProvider{}
}

// Request acquires the pin as an output.
func (p *PeriphProvider) Request(req Request) (Line, error) {
	p.once.Do(func() {
		if _, err := host.Init(); err != nil {
			p.initErr = fmt.Errorf("init periph host: %w", err)
		}
	})
	if p.initErr != nil {
		return nil, p.initErr
	}

	name := fmt.Sprintf("GPIO%d", req.Offset)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLine, name)
	}

	level := pgpio.Level(req.Initial != 0)
	if req.Keep {
		level = pin.Read()
	}
	if err := pin.Out(level); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", name, err)
	}

	var canSleep bool
	if req.CanSleep != nil {
		canSleep = *req.CanSleep
	}
	return &periphLine{pin: pin, canSleep: canSleep}, nil
}

// Close is a no-op; periph keeps no per-provider state.
func (p *PeriphProvider) Close() error {
	return nil
}

type periphLine struct {
	pin      pgpio.PinIO
	canSleep bool
}

func (l *periphLine) Set(value int) error {
	if err := l.pin.Out(pgpio.Level(value != 0)); err != nil {
		return fmt.Errorf("set %s: %w", l.pin.Name(), err)
	}
	return nil
}

func (l *periphLine) SetBlocking(value int) error {
	return l.Set(value)
}

func (l *periphLine) CanBlock() bool {
	return l.canSleep
}

func (l *periphLine) Value() (int, error) {
	if l.pin.Read() == pgpio.High {
		return 1, nil
	}
	return 0, nil
}

func (l *periphLine) Close() error {
	return l.pin.Halt()
}
