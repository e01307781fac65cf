// Package led drives GPIO indicator LEDs.
//
// Each LED routes a brightness or blink request either straight to its line
// or, when driving the line may sleep, through a single-slot deferred work
// item. LEDs named "red" and "green" share an interlock: red writes are
// dropped while green is lit.
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

// Default blink period, used when blink is enabled without explicit delays.
const (
	DefaultBlinkOn  = 2000 * time.Millisecond
	DefaultBlinkOff = 1000 * time.Millisecond
)

// Brightness is a logical LED level. Any non-zero value means on.
type Brightness uint8

// Brightness levels.
const (
	Off  Brightness = 0
	Full Brightness = 255
)

// level translates b through the line polarity into an electrical level.
func (b Brightness) level(activeLow bool) int {
	on := b != Off
	if activeLow {
		on = !on
	}
	if on {
		return 1
	}
	return 0
}

// DefaultState is the state an LED takes when its line is acquired.
type DefaultState int

// Default states.
const (
	DefaultOff DefaultState = iota
	DefaultOn
	DefaultKeep // keep whatever level the line already has
)

// ParseDefaultState parses "off", "on" or "keep". Empty means off.
func ParseDefaultState(s string) (DefaultState, error) {
	switch s {
	case "", "off":
		return DefaultOff, nil
	case "on":
		return DefaultOn, nil
	case "keep":
		return DefaultKeep, nil
	}
	return DefaultOff, fmt.Errorf("invalid default state %q", s)
}

func (d DefaultState) String() string {
	switch d {
	case DefaultOn:
		return "on"
	case DefaultKeep:
		return "keep"
	}
	return "off"
}

// Config describes one LED.
type Config struct {
	Name         string
	Chip         string
	GPIO         int // negative marks the LED unavailable; it is skipped
	ActiveLow    bool
	DefaultState DefaultState

	// RetainStateSuspended keeps the LED lit across teardown; otherwise it
	// is switched off before its line is released.
	RetainStateSuspended bool

	// CanSleep overrides the backend's sleep detection when set.
	CanSleep *bool
}

// State is a point-in-time view of an LED.
type State struct {
	Name        string
	Role        Role
	Chip        string
	GPIO        int
	ActiveLow   bool
	CanSleep    bool
	Retain      bool
	Brightness  Brightness
	BlinkActive bool
	DelayOn     time.Duration
	DelayOff    time.Duration
}

// LED is one GPIO-backed indicator.
type LED struct {
	name      string
	role      Role
	chip      string
	gpio      int
	line      gpio.Line
	activeLow bool
	canSleep  bool
	retain    bool

	interlock *Interlock
	work      *workqueue.Work
	soft      *softBlink
	observer  Observer
	rec       Recorder
	log       *slog.Logger

	blinkMu sync.Mutex // serializes SetBlink and teardown

	mu             sync.Mutex
	brightness     Brightness
	blinkActive    bool
	blinkRequested bool // a hardware blink is waiting for the deferred slot
	levelPending   bool
	pendingLevel   int
	delayOn        time.Duration
	delayOff       time.Duration
	registered     bool
	released       bool
}

type deps struct {
	interlock *Interlock
	queue     *workqueue.Queue
	observer  Observer
	rec       Recorder
	log       *slog.Logger
}

func newLED(cfg Config, line gpio.Line, brightness Brightness, d deps) *LED {
	l := &LED{
		name:       cfg.Name,
		role:       RoleFor(cfg.Name),
		chip:       cfg.Chip,
		gpio:       cfg.GPIO,
		line:       line,
		activeLow:  cfg.ActiveLow,
		canSleep:   line.CanBlock(),
		retain:     cfg.RetainStateSuspended,
		interlock:  d.interlock,
		observer:   d.observer,
		rec:        d.rec,
		log:        d.log.With("led", cfg.Name),
		brightness: brightness,
		delayOn:    DefaultBlinkOn,
		delayOff:   DefaultBlinkOff,
	}
	l.work = d.queue.NewWork(l.runDeferred)
	l.soft = newSoftBlink(l.blinkStep)
	return l
}

// Name returns the LED name.
func (l *LED) Name() string { return l.name }

// Role returns the interlock role resolved from the name.
func (l *LED) Role() Role { return l.role }

// CanSleep reports whether writes go through the deferred slot.
func (l *LED) CanSleep() bool { return l.canSleep }

// Brightness returns the last requested level.
func (l *LED) Brightness() Brightness {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

// BlinkActive reports whether the LED is in blink mode.
func (l *LED) BlinkActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blinkActive
}

// State returns a snapshot of the LED.
func (l *LED) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		Name:        l.name,
		Role:        l.role,
		Chip:        l.chip,
		GPIO:        l.gpio,
		ActiveLow:   l.activeLow,
		CanSleep:    l.canSleep,
		Retain:      l.retain,
		Brightness:  l.brightness,
		BlinkActive: l.blinkActive,
		DelayOn:     l.delayOn,
		DelayOff:    l.delayOff,
	}
}

// SetBrightness sets the logical level of the LED. It never fails and never
// blocks on a line that cannot sleep. While the interlock suppresses this
// LED the request is recorded but the line is left alone.
//
// A request on a blinking LED ends blink mode first. If the interlock then
// suppresses it, the line is switched off rather than left mid-blink.
func (l *LED) SetBrightness(b Brightness) {
	l.mu.Lock()
	wasBlinking := l.blinkActive
	if wasBlinking {
		l.blinkActive = false
		l.blinkRequested = false
		l.soft.disarm()
	}
	l.brightness = b
	l.mu.Unlock()

	l.drive(b, wasBlinking)
	l.observer.Changed(l.State())
}

// drive applies b through the interlock and polarity.
func (l *LED) drive(b Brightness, wasBlinking bool) {
	if l.role != RoleNone && !l.interlock.Set(l.role, b != Off) {
		l.rec.Suppressed(l.name)
		l.log.Debug("write suppressed by interlock", "brightness", b)
		if !wasBlinking {
			return
		}
		b = Off
	}
	l.write(b.level(l.activeLow))
}

// blinkStep writes one soft blink level. It drops the write once blink
// mode has ended, so a tick racing SetBrightness cannot land after it.
func (l *LED) blinkStep(b Brightness) {
	level := b.level(l.activeLow)

	l.mu.Lock()
	if l.released || !l.blinkActive {
		l.mu.Unlock()
		return
	}
	if l.canSleep {
		l.pendingLevel = level
		l.levelPending = true
		l.blinkRequested = false
		l.mu.Unlock()
		l.rec.Dispatched(l.name, true)
		l.work.Schedule()
		return
	}
	defer l.mu.Unlock()
	l.rec.Dispatched(l.name, false)
	if err := l.line.Set(level); err != nil {
		l.dispatchFailed(err)
	}
}

func (l *LED) write(level int) {
	if l.canSleep {
		l.writeDeferred(level)
		return
	}
	l.writeImmediate(level)
}

func (l *LED) writeImmediate(level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.rec.Dispatched(l.name, false)
	if err := l.line.Set(level); err != nil {
		l.dispatchFailed(err)
	}
}

// writeDeferred hands level to the deferred slot. The most recent request
// wins, whether it is a level or a hardware blink.
func (l *LED) writeDeferred(level int) {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.pendingLevel = level
	l.levelPending = true
	l.blinkRequested = false
	l.mu.Unlock()

	l.rec.Dispatched(l.name, true)
	l.work.Schedule()
}

// runDeferred is the body of the deferred slot. It runs on a worker that
// may block.
func (l *LED) runDeferred() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	if l.blinkRequested {
		l.blinkRequested = false
		on, off := l.delayOn, l.delayOff
		l.mu.Unlock()
		if err := l.line.(gpio.Blinker).Blink(on, off); err != nil {
			l.dispatchFailed(err)
		}
		return
	}
	if !l.levelPending {
		l.mu.Unlock()
		return
	}
	level := l.pendingLevel
	l.levelPending = false
	l.mu.Unlock()

	if err := l.line.SetBlocking(level); err != nil {
		l.dispatchFailed(err)
	}
}

func (l *LED) dispatchFailed(err error) {
	l.rec.DispatchFailed(l.name)
	l.log.Warn("gpio write failed", "error", err)
}

// SetBlink turns blink mode on or off. The delays are used only when
// enabling; zero for both selects DefaultBlinkOn/DefaultBlinkOff.
//
// Disabling blocks: it waits for the blink timer and any deferred write to
// be cancelled, so that no stale blink level lands after it returns. Only
// call it from a goroutine that may block.
func (l *LED) SetBlink(enabled bool, on, off time.Duration) {
	l.blinkMu.Lock()
	if enabled {
		l.enableBlink(on, off)
	} else {
		l.disableBlink()
	}
	l.blinkMu.Unlock()

	l.observer.Changed(l.State())
}

func (l *LED) enableBlink(on, off time.Duration) {
	if on == 0 && off == 0 {
		on, off = DefaultBlinkOn, DefaultBlinkOff
	}

	hw, ok := l.line.(gpio.Blinker)

	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.brightness = Full
	l.blinkActive = true
	l.delayOn, l.delayOff = on, off
	if !ok {
		steady, isSteady := l.soft.start(on, off)
		l.mu.Unlock()
		if isSteady {
			l.blinkStep(steady)
		}
		return
	}
	l.mu.Unlock()

	if l.canSleep {
		l.mu.Lock()
		l.blinkRequested = true
		l.levelPending = false
		l.mu.Unlock()
		l.rec.Dispatched(l.name, true)
		l.work.Schedule()
		return
	}

	l.mu.Lock()
	l.blinkRequested = true
	err := hw.Blink(on, off)
	l.blinkRequested = false
	l.mu.Unlock()
	l.rec.Dispatched(l.name, false)
	if err != nil {
		l.dispatchFailed(err)
	}
}

func (l *LED) disableBlink() {
	l.soft.stop()
	l.work.CancelAndWait()

	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.blinkActive = false
	l.blinkRequested = false
	l.levelPending = false
	l.brightness = Off
	l.mu.Unlock()

	l.write(l.role.steadyLevel())
}

// release tears the LED down: stop blinking, cancel and join deferred
// work, unregister, switch off unless retained, release the line.
// Calling it again is a no-op.
func (l *LED) release() error {
	l.blinkMu.Lock()
	defer l.blinkMu.Unlock()

	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	registered := l.registered
	l.mu.Unlock()

	l.soft.stop()
	l.work.CancelAndWait()
	if registered {
		l.observer.Unregister(l)
	}

	var errs []error
	if !l.retain {
		off := Off.level(l.activeLow)
		var err error
		if l.canSleep {
			err = l.line.SetBlocking(off)
		} else {
			err = l.line.Set(off)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("switch off: %w", err))
		}
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release line: %w", err))
	}
	return errors.Join(errs...)
}
