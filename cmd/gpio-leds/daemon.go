package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/gpio-leds/internal/config"
	"github.com/sweeney/gpio-leds/internal/gpio"
	"github.com/sweeney/gpio-leds/internal/led"
	"github.com/sweeney/gpio-leds/internal/logging"
	"github.com/sweeney/gpio-leds/internal/metrics"
	"github.com/sweeney/gpio-leds/internal/mqtt"
	"github.com/sweeney/gpio-leds/internal/status"
	"github.com/sweeney/gpio-leds/internal/web"
	"github.com/sweeney/gpio-leds/internal/workqueue"
)

// System event names published on <prefix>/system.
const (
	eventStartup     = "STARTUP"
	eventShutdown    = "SHUTDOWN"
	eventHeartbeat   = "HEARTBEAT"
	eventReconnected = "RECONNECTED"
)

// systemPublisher is the part of the MQTT bridge the event loop needs.
type systemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

func newProvider(backend string) (gpio.Provider, error) {
	switch backend {
	case config.BackendGPIOCDev:
		return gpio.NewChipProvider(), nil
	case config.BackendPeriph:
		return gpio.NewPeriphProvider(), nil
	}
	return nil, fmt.Errorf("unknown gpio backend %q", backend)
}

func run(cfg *config.Config, stderr io.Writer) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	log := logging.New(stderr, level, cfg.Logging.Format)
	slog.SetDefault(log)

	provider, err := newProvider(cfg.GPIO.Backend)
	if err != nil {
		return err
	}
	defer provider.Close()

	queue := workqueue.New(cfg.Workers)
	defer queue.Close()

	collector := metrics.New()
	observers := []led.Observer{collector}

	// reconnected is signalled by the MQTT client after a dropped
	// connection comes back.
	reconnected := make(chan struct{}, 1)

	var bridge *mqtt.Bridge
	if cfg.MQTT.Enabled() {
		mqttLog := logging.Module(log, "mqtt")
		topics := mqtt.Topics{Prefix: cfg.MQTT.Prefix}
		will, err := mqtt.FormatSystemPayload(mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     eventShutdown,
			Reason:    "MQTT_DISCONNECT",
		})
		if err != nil {
			return fmt.Errorf("format will: %w", err)
		}

		client, err := mqtt.NewPahoClient(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			CACert:     cfg.MQTT.CACert,
			ClientCert: cfg.MQTT.ClientCert,
			ClientKey:  cfg.MQTT.ClientKey,
			Will:       &mqtt.Will{Topic: topics.System(), Payload: will, Retained: true},
			OnReconnect: func() {
				select {
				case reconnected <- struct{}{}:
				default:
				}
			},
			Logger: mqttLog,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer client.Close()

		bridge = mqtt.NewBridge(client, cfg.MQTT.Prefix, mqttLog)
		// Runs after the registry teardown so the cleared states go out.
		defer bridge.Close()
		observers = append(observers, bridge)
	}

	registry, err := led.New(cfg.LEDConfigs(), led.Options{
		Provider: provider,
		Queue:    queue,
		Observer: led.Observers(observers...),
		Recorder: collector,
		Logger:   logging.Module(log, "led"),
	})
	if err != nil {
		return fmt.Errorf("init leds: %w", err)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Warn("LED teardown incomplete", "error", err)
		}
	}()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.GPIO.Backend,
		Workers:     cfg.Workers,
		HeartbeatMs: cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Listen,
	})
	tracker.SetSource(registry)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var pub systemPublisher
	var heartbeat <-chan time.Time
	if bridge != nil {
		tracker.SetConnection(bridge)
		pub = bridge
		if err := bridge.Start(registry); err != nil {
			return err
		}
		if cfg.MQTT.Heartbeat > 0 {
			ticker := time.NewTicker(cfg.MQTT.Heartbeat)
			defer ticker.Stop()
			heartbeat = ticker.C
		}
	}

	if err := publishEvent(pub, tracker, time.Now(), eventStartup, ""); err != nil {
		log.Warn("failed to publish startup event", "error", err)
	}

	if cfg.HTTPEnabled() {
		srv := web.New(cfg.HTTP.Listen, web.Options{
			Tracker:    tracker,
			Controller: registry,
			Metrics:    collector.Handler(),
			Logger:     logging.Module(log, "web"),
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info("http server listening", "addr", cfg.HTTP.Listen)
	}

	log.Info("started",
		"leds", len(registry.LEDs()),
		"backend", cfg.GPIO.Backend,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.MQTT.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(pub, tracker, log, time.Now, heartbeat, reconnected, sigCh)
}

// runLoop publishes lifecycle events until a signal arrives. pub may be nil
// when MQTT is disabled.
func runLoop(pub systemPublisher, tracker *status.Tracker, log *slog.Logger, now func() time.Time, heartbeat <-chan time.Time, reconnected <-chan struct{}, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Info("shutting down", "signal", reason)
			if err := publishEvent(pub, tracker, now(), eventShutdown, reason); err != nil {
				log.Warn("failed to publish shutdown event", "error", err)
			}
			return nil

		case <-heartbeat:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil && tracker != nil {
				tracker.SetNetwork(net)
			}
			if err := publishEvent(pub, tracker, now(), eventHeartbeat, ""); err != nil {
				log.Warn("heartbeat publish error", "error", err)
			}

		case <-reconnected:
			log.Info("mqtt reconnected")
			if err := publishEvent(pub, tracker, now(), eventReconnected, ""); err != nil {
				log.Warn("failed to publish reconnect event", "error", err)
			}
		}
	}
}

// publishEvent sends a system event carrying a full status snapshot.
// Everything but heartbeats is retained so it replaces the broker's will.
func publishEvent(pub systemPublisher, tracker *status.Tracker, ts time.Time, event, reason string) error {
	if pub == nil {
		return nil
	}
	e := mqtt.SystemEvent{
		Timestamp: ts,
		Event:     event,
		Reason:    reason,
		Retained:  event != eventHeartbeat,
	}
	if tracker != nil {
		e.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	return pub.PublishSystem(e)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
