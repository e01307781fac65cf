package led

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/gpio-leds/internal/gpio"
	"github.com/sweeney/gpio-leds/internal/workqueue"
)

// Options are the collaborators a Registry is built with.
type Options struct {
	Provider gpio.Provider    // required
	Queue    *workqueue.Queue // required; runs deferred writes
	Observer Observer
	Recorder Recorder
	Logger   *slog.Logger
}

// Registry owns the LEDs of one device. Its set of LEDs is fixed at
// construction.
type Registry struct {
	interlock *Interlock
	log       *slog.Logger

	mu     sync.RWMutex
	leds   []*LED
	byName map[string]*LED
}

// New builds one LED per configuration entry, in order. Entries whose GPIO
// is unavailable are skipped. If an entry fails, the LEDs already built are
// torn down in reverse order and a *ConfigurationError naming the entry is
// returned.
func New(configs []Config, opts Options) (*Registry, error) {
	if opts.Provider == nil {
		return nil, errors.New("led: no gpio provider")
	}
	if opts.Queue == nil {
		return nil, errors.New("led: no work queue")
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Registry{
		interlock: NewInterlock(),
		log:       opts.Logger,
		byName:    make(map[string]*LED, len(configs)),
	}
	d := deps{
		interlock: r.interlock,
		queue:     opts.Queue,
		observer:  opts.Observer,
		rec:       opts.Recorder,
		log:       opts.Logger,
	}

	leds := make([]*LED, 0, len(configs))
	for i, cfg := range configs {
		if !gpio.Valid(cfg.GPIO) {
			r.log.Info("skipping unavailable LED", "index", i, "name", cfg.Name, "gpio", cfg.GPIO)
			continue
		}

		l, err := r.create(cfg, opts, d)
		if err != nil {
			r.rollback(leds)
			return nil, &ConfigurationError{Index: i, Name: cfg.Name, Err: err}
		}
		leds = append(leds, l)
		r.byName[cfg.Name] = l
		r.log.Debug("LED ready", "name", cfg.Name, "gpio", cfg.GPIO, "can_sleep", l.canSleep)
	}
	r.leds = leds
	return r, nil
}

func (r *Registry) create(cfg Config, opts Options, d deps) (*LED, error) {
	if cfg.Name == "" {
		return nil, errors.New("missing name")
	}
	if _, dup := r.byName[cfg.Name]; dup {
		return nil, fmt.Errorf("duplicate name %q", cfg.Name)
	}

	brightness := Off
	if cfg.DefaultState == DefaultOn {
		brightness = Full
	}
	line, err := opts.Provider.Request(gpio.Request{
		Chip:     cfg.Chip,
		Offset:   cfg.GPIO,
		Consumer: cfg.Name,
		Initial:  brightness.level(cfg.ActiveLow),
		Keep:     cfg.DefaultState == DefaultKeep,
		CanSleep: cfg.CanSleep,
	})
	if err != nil {
		return nil, fmt.Errorf("acquire gpio %d: %w", cfg.GPIO, err)
	}

	if cfg.DefaultState == DefaultKeep {
		v, err := line.Value()
		if err != nil {
			line.Close()
			return nil, fmt.Errorf("read gpio %d: %w", cfg.GPIO, err)
		}
		if (v != 0) != cfg.ActiveLow {
			brightness = Full
		}
	}

	l := newLED(cfg, line, brightness, d)
	if err := d.observer.Register(l); err != nil {
		if rerr := l.release(); rerr != nil {
			r.log.Warn("release after failed registration", "name", cfg.Name, "error", rerr)
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	l.mu.Lock()
	l.registered = true
	l.mu.Unlock()
	return l, nil
}

func (r *Registry) rollback(leds []*LED) {
	for i := len(leds) - 1; i >= 0; i-- {
		if err := leds[i].release(); err != nil {
			r.log.Warn("rollback release failed", "name", leds[i].name, "error", err)
		}
	}
}

// Close tears every LED down in order. Calling Close again is a no-op.
func (r *Registry) Close() error {
	r.mu.Lock()
	leds := r.leds
	r.leds = nil
	r.byName = nil
	r.mu.Unlock()

	var errs []error
	for _, l := range leds {
		if err := l.release(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}

// Get returns the named LED.
func (r *Registry) Get(name string) (*LED, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byName[name]
	return l, ok
}

// LEDs returns the live LEDs in construction order.
func (r *Registry) LEDs() []*LED {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*LED(nil), r.leds...)
}

// States returns a snapshot of every live LED in construction order.
func (r *Registry) States() []State {
	leds := r.LEDs()
	states := make([]State, len(leds))
	for i, l := range leds {
		states[i] = l.State()
	}
	return states
}

// State returns a snapshot of the named LED.
func (r *Registry) State(name string) (State, error) {
	l, ok := r.Get(name)
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrUnknownLED, name)
	}
	return l.State(), nil
}

// InterlockFlags returns the roles currently asserted in the interlock.
func (r *Registry) InterlockFlags() Role {
	return r.interlock.Flags()
}

// SetBrightness sets the brightness of the named LED.
func (r *Registry) SetBrightness(name string, b Brightness) error {
	l, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLED, name)
	}
	l.SetBrightness(b)
	return nil
}

// SetBlink turns blink mode of the named LED on or off. Disabling blocks;
// see LED.SetBlink.
func (r *Registry) SetBlink(name string, enabled bool, on, off time.Duration) error {
	l, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLED, name)
	}
	l.SetBlink(enabled, on, off)
	return nil
}
