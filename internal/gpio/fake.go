package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// FakeProvider is a test double that hands out in-memory lines.
// Configure its exported fields before the first Request.
type FakeProvider struct {
	mu sync.Mutex

	// Fail maps offsets to the error Request returns for them.
	Fail map[int]error

	// NumLines bounds valid offsets; requests at or above it fail with
	// ErrInvalidLine. Zero means unbounded.
	NumLines int

	// Sleeping lists offsets whose lines report CanBlock.
	Sleeping map[int]bool

	// Levels holds electrical levels present before a request, used with Keep.
	Levels map[int]int

	// HardwareBlink makes requested lines implement Blinker.
	HardwareBlink bool

	lines      map[int]*FakeLine
	blinkLines map[int]*FakeBlinkLine
	requests   []Request
	closed     bool
}

// NewFakeProvider creates a FakeProvider with no failures configured.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// Request hands out a FakeLine (or FakeBlinkLine) for the offset.
func (p *FakeProvider) Request(req Request) (Line, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)

	if err := p.Fail[req.Offset]; err != nil {
		return nil, err
	}
	if req.Offset < 0 || (p.NumLines > 0 && req.Offset >= p.NumLines) {
		return nil, fmt.Errorf("%w: offset %d", ErrInvalidLine, req.Offset)
	}
	if l, ok := p.lines[req.Offset]; ok && !l.Closed() {
		return nil, errors.New("gpio: line busy")
	}

	value := req.Initial
	if req.Keep {
		value = p.Levels[req.Offset]
	}
	canSleep := p.Sleeping[req.Offset]
	if req.CanSleep != nil {
		canSleep = *req.CanSleep
	}

	l := &FakeLine{
		Offset:   req.Offset,
		Consumer: req.Consumer,
		canSleep: canSleep,
		value:    value,
	}
	if p.lines == nil {
		p.lines = make(map[int]*FakeLine)
	}
	p.lines[req.Offset] = l

	if p.HardwareBlink {
		bl := &FakeBlinkLine{FakeLine: l}
		if p.blinkLines == nil {
			p.blinkLines = make(map[int]*FakeBlinkLine)
		}
		p.blinkLines[req.Offset] = bl
		return bl, nil
	}
	return l, nil
}

// Line returns the line most recently handed out for offset, or nil.
func (p *FakeProvider) Line(offset int) *FakeLine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines[offset]
}

// BlinkLine returns the hardware-blink line handed out for offset, or nil.
func (p *FakeProvider) BlinkLine(offset int) *FakeBlinkLine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blinkLines[offset]
}

// Requests returns every request made so far, in order.
func (p *FakeProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

// Close marks the provider as closed.
func (p *FakeProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (p *FakeProvider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Write records a single level change on a FakeLine.
type Write struct {
	Value    int
	Blocking bool
}

// FakeLine is an in-memory line that records writes.
// It panics when driven through the path that does not match CanBlock,
// so tests catch a non-sleeping caller reaching a sleeping primitive.
type FakeLine struct {
	Offset   int
	Consumer string

	// SetError, if set, is returned by Set and SetBlocking.
	SetError error

	// Gate, if set, is received from before SetBlocking applies its value.
	Gate chan struct{}

	mu         sync.Mutex
	canSleep   bool
	value      int
	writes     []Write
	closes     int
	afterClose int
}

// Set records a non-sleeping write.
func (l *FakeLine) Set(value int) error {
	if l.canSleep {
		panic(fmt.Sprintf("gpio: Set on sleeping line %d", l.Offset))
	}
	return l.write(value, false)
}

// SetBlocking records a sleeping write.
func (l *FakeLine) SetBlocking(value int) error {
	if !l.canSleep {
		panic(fmt.Sprintf("gpio: SetBlocking on non-sleeping line %d", l.Offset))
	}
	if l.Gate != nil {
		<-l.Gate
	}
	return l.write(value, true)
}

func (l *FakeLine) write(value int, blocking bool) error {
	if l.SetError != nil {
		return l.SetError
	}
	l.mu.Lock()
	l.value = value
	l.writes = append(l.writes, Write{Value: value, Blocking: blocking})
	if l.closes > 0 {
		l.afterClose++
	}
	l.mu.Unlock()
	return nil
}

// CanBlock reports the configured sleep capability.
func (l *FakeLine) CanBlock() bool {
	return l.canSleep
}

// Value returns the current level.
func (l *FakeLine) Value() (int, error) {
	return l.Level(), nil
}

// Level returns the current level.
func (l *FakeLine) Level() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Writes returns every write applied so far, in order.
func (l *FakeLine) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// Close releases the line.
func (l *FakeLine) Close() error {
	l.mu.Lock()
	l.closes++
	l.mu.Unlock()
	return nil
}

// Closed reports whether the line was released.
func (l *FakeLine) Closed() bool {
	return l.CloseCount() > 0
}

// WritesAfterClose counts writes and blinks that reached the line after
// it was released.
func (l *FakeLine) WritesAfterClose() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.afterClose
}

// CloseCount returns how many times Close was called.
func (l *FakeLine) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// BlinkCall records one call to FakeBlinkLine.Blink.
type BlinkCall struct {
	On, Off time.Duration
}

// FakeBlinkLine is a FakeLine whose controller blinks in hardware.
type FakeBlinkLine struct {
	*FakeLine

	blinkMu  sync.Mutex
	blinks   []BlinkCall
	blinking bool
}

// Blink records the call and starts the simulated hardware blink.
func (l *FakeBlinkLine) Blink(on, off time.Duration) error {
	l.FakeLine.mu.Lock()
	if l.FakeLine.closes > 0 {
		l.FakeLine.afterClose++
	}
	l.FakeLine.mu.Unlock()

	l.blinkMu.Lock()
	defer l.blinkMu.Unlock()
	l.blinks = append(l.blinks, BlinkCall{On: on, Off: off})
	l.blinking = true
	return nil
}

// Set stops the hardware blink and records the write.
func (l *FakeBlinkLine) Set(value int) error {
	l.stopBlink()
	return l.FakeLine.Set(value)
}

// SetBlocking stops the hardware blink and records the write.
func (l *FakeBlinkLine) SetBlocking(value int) error {
	l.stopBlink()
	return l.FakeLine.SetBlocking(value)
}

func (l *FakeBlinkLine) stopBlink() {
	l.blinkMu.Lock()
	l.blinking = false
	l.blinkMu.Unlock()
}

// Blinks returns every Blink call so far.
func (l *FakeBlinkLine) Blinks() []BlinkCall {
	l.blinkMu.Lock()
	defer l.blinkMu.Unlock()
	return append([]BlinkCall(nil), l.blinks...)
}

// Blinking reports whether the simulated hardware blink is running.
func (l *FakeBlinkLine) Blinking() bool {
	l.blinkMu.Lock()
	defer l.blinkMu.Unlock()
	return l.blinking
}
