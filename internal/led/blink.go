package led

import (
	"sync"
	"time"
)

// softBlink toggles an LED from a timer when the line has no hardware blink.
// Ticks run on timer goroutines, which must not assume they may block, so
// apply goes through the LED's normal dispatch rule.
type softBlink struct {
	apply func(Brightness)

	mu       sync.Mutex
	idle     *sync.Cond
	timer    *time.Timer
	gen      uint64
	armed    bool
	inflight int
	lit      bool
	on, off  time.Duration
}

func newSoftBlink(apply func(Brightness)) *softBlink {
	s := &softBlink{apply: apply}
	s.idle = sync.NewCond(&s.mu)
	return s
}

// start (re)starts blinking with the given period. A zero on-time leaves
// the LED off and a zero off-time leaves it on, without a timer; start
// then reports the steady level for the caller to apply.
func (s *softBlink) start(on, off time.Duration) (steady Brightness, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()
	s.gen++
	s.on, s.off = on, off
	s.lit = false

	if on > 0 && off > 0 {
		s.armed = true
		s.arm(0)
		return Off, false
	}
	if on > 0 {
		return Full, true
	}
	return Off, true
}

// arm must be called with s.mu held.
func (s *softBlink) arm(d time.Duration) {
	gen := s.gen
	s.timer = time.AfterFunc(d, func() { s.tick(gen) })
}

func (s *softBlink) tick(gen uint64) {
	s.mu.Lock()
	if !s.armed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.lit = !s.lit
	b, next := Off, s.off
	if s.lit {
		b, next = Full, s.on
	}
	s.inflight++
	s.mu.Unlock()

	s.apply(b)

	s.mu.Lock()
	s.inflight--
	if s.armed && gen == s.gen {
		s.arm(next)
	}
	s.idle.Broadcast()
	s.mu.Unlock()
}

// stop disarms the timer and waits for a tick in progress to return.
// No tick applies a level after stop returns.
func (s *softBlink) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()
	for s.inflight > 0 {
		s.idle.Wait()
	}
}

// disarm stops the timer without waiting for a tick in progress. The
// caller must make that tick's apply a no-op.
func (s *softBlink) disarm() {
	s.mu.Lock()
	s.disarmLocked()
	s.mu.Unlock()
}

func (s *softBlink) disarmLocked() {
	s.armed = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *softBlink) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}
