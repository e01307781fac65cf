package led

// Observer is the external layer that exposes LEDs to the outside world.
// Register is called once an LED is fully built and Unregister during its
// teardown. Changed is called after every brightness or blink request and
// must not block.
type Observer interface {
	Register(l *LED) error
	Changed(s State)
	Unregister(l *LED)
}

// Recorder counts dispatch outcomes. Implementations must not block.
type Recorder interface {
	Dispatched(name string, deferred bool)
	DispatchFailed(name string)
	Suppressed(name string)
}

// Observers fans out to several observers. Registration stops at the first
// failure and unregisters the observers that had already accepted the LED.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

type multiObserver []Observer

func (m multiObserver) Register(l *LED) error {
	for i, o := range m {
		if err := o.Register(l); err != nil {
			for j := i - 1; j >= 0; j-- {
				m[j].Unregister(l)
			}
			return err
		}
	}
	return nil
}

func (m multiObserver) Changed(s State) {
	for _, o := range m {
		o.Changed(s)
	}
}

func (m multiObserver) Unregister(l *LED) {
	for i := len(m) - 1; i >= 0; i-- {
		m[i].Unregister(l)
	}
}

type nopObserver struct{}

func (nopObserver) Register(*LED) error { return nil }
func (nopObserver) Changed(State)       {}
func (nopObserver) Unregister(*LED)     {}

type nopRecorder struct{}

func (nopRecorder) Dispatched(string, bool) {}
func (nopRecorder) DispatchFailed(string)   {}
func (nopRecorder) Suppressed(string)       {}
