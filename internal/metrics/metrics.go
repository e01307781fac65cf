// Package metrics exports LED dispatch counters and state gauges in
// Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/gpio-leds/internal/led"
)

const namespace = "gpioleds"

// Collector records LED activity. It implements led.Recorder and
// led.Observer.
type Collector struct {
	registry *prometheus.Registry

	dispatches  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	suppressed  *prometheus.CounterVec
	brightness  *prometheus.GaugeVec
	blinkActive *prometheus.GaugeVec
	leds        prometheus.Gauge
}

// New creates a Collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Line writes dispatched, by LED and path (immediate or deferred).",
		}, []string{"led", "path"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Line writes that failed, by LED.",
		}, []string{"led"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interlock_suppressed_total",
			Help:      "Writes dropped by the red/green interlock, by LED.",
		}, []string{"led"}),
		brightness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "brightness",
			Help:      "Last requested brightness (0-255).",
		}, []string{"led"}),
		blinkActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blink_active",
			Help:      "1 while the LED is in blink mode.",
		}, []string{"led"}),
		leds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leds",
			Help:      "Number of registered LEDs.",
		}),
	}
	c.registry.MustRegister(
		c.dispatches, c.failures, c.suppressed, c.brightness, c.blinkActive, c.leds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Dispatched implements led.Recorder.
func (c *Collector) Dispatched(name string, deferred bool) {
	path := "immediate"
	if deferred {
		path = "deferred"
	}
	c.dispatches.WithLabelValues(name, path).Inc()
}

// DispatchFailed implements led.Recorder.
func (c *Collector) DispatchFailed(name string) {
	c.failures.WithLabelValues(name).Inc()
}

// Suppressed implements led.Recorder.
func (c *Collector) Suppressed(name string) {
	c.suppressed.WithLabelValues(name).Inc()
}

// Register implements led.Observer.
func (c *Collector) Register(l *led.LED) error {
	c.leds.Inc()
	c.Changed(l.State())
	return nil
}

// Changed implements led.Observer.
func (c *Collector) Changed(s led.State) {
	c.brightness.WithLabelValues(s.Name).Set(float64(s.Brightness))
	blink := 0.0
	if s.BlinkActive {
		blink = 1
	}
	c.blinkActive.WithLabelValues(s.Name).Set(blink)
}

// Unregister implements led.Observer.
func (c *Collector) Unregister(l *led.LED) {
	c.leds.Dec()
	c.brightness.DeleteLabelValues(l.Name())
	c.blinkActive.DeleteLabelValues(l.Name())
}
