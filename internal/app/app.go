// Package app wires the camera, detector, session, transport and observers
// into the running trial service.
package app

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/thumbtrial/internal/capture"
	"github.com/ayusman/thumbtrial/internal/config"
	"github.com/ayusman/thumbtrial/internal/detector"
	"github.com/ayusman/thumbtrial/internal/gesture"
	"github.com/ayusman/thumbtrial/internal/session"
	"github.com/ayusman/thumbtrial/internal/store"
	"github.com/ayusman/thumbtrial/internal/transport"
	"github.com/ayusman/thumbtrial/internal/trial"
)

// Status values reported to observers.
const (
	StatusOK            = "ok"
	StatusCameraError   = "camera-error"
	StatusDetectorError = "detector-error"
)

// snapshotTTL is how long a stream request keeps frame encoding switched on.
const snapshotTTL = 2 * time.Second

// Observer receives every processed frame and status change.
type Observer interface {
	PublishFrame(f session.Frame, stable time.Duration)
	PublishStatus(status string, err error)
}

// Config holds configuration options for the application.
type Config struct {
	Base  *config.Config // file configuration before the settings overlay
	Store *store.Store   // optional; source of persisted settings
	Sinks []transport.Sink
}

// App is the main application that runs the trial pipeline.
type App struct {
	base       *config.Config
	cfg        *config.Config
	store      *store.Store
	camera     capture.Camera
	detector   detector.Detector
	session    *session.Session
	dispatcher *transport.Dispatcher
	mqtt       *transport.MQTTSink
	observers  []Observer
	enabled    bool
	status     string
	mu         sync.RWMutex
	stopCh     chan struct{}
	doneCh     chan struct{}

	snapshot   []byte
	snapshotAt atomic.Int64
}

// New creates a new App. Persisted settings are applied on top of the base
// configuration; a session id is generated when none is configured.
func New(opts Config) *App {
	base := opts.Base
	if base == nil {
		base = defaultConfig()
	}
	base = base.Clone()
	if base.SessionID == "" {
		base.SessionID = uuid.NewString()
		log.Printf("Generated session id %s", base.SessionID)
	}

	a := &App{
		base:    base,
		cfg:     base.Clone(),
		store:   opts.Store,
		enabled: true,
	}

	if a.store != nil {
		settings, err := a.store.Settings().All()
		if err != nil {
			log.Printf("Failed to load settings: %v", err)
		} else if err := a.cfg.ApplySettings(settings); err != nil {
			log.Printf("Ignoring stored settings: %v", err)
			a.cfg = base.Clone()
		}
	}

	a.session = session.New(a.sessionOptions(a.cfg))
	a.camera = capture.NewCamera(capture.Options{
		Device: a.cfg.Video.Device,
		Width:  a.cfg.Video.Width,
		Height: a.cfg.Video.Height,
		FPS:    int(a.cfg.MaxFPS),
	})

	sinks := append([]transport.Sink{}, opts.Sinks...)
	if a.cfg.Backend.LogEndpoint != "" {
		sinks = append(sinks, transport.NewHTTPSink(a.cfg.Backend.LogEndpoint, nil))
		log.Printf("Logging trials to %s", a.cfg.Backend.LogEndpoint)
	}
	if a.cfg.MQTT.Broker != "" {
		a.mqtt = transport.NewMQTTSink(transport.MQTTOptions{
			Broker:   a.cfg.MQTT.Broker,
			Topic:    a.cfg.MQTT.Topic,
			ClientID: a.cfg.MQTT.ClientID,
			QoS:      a.cfg.MQTT.QoS,
		})
		sinks = append(sinks, a.mqtt)
	}
	for _, h := range a.cfg.Hooks {
		sinks = append(sinks, transport.NewExecSink(h.Command, h.Args, h.Timeout()))
		log.Printf("Running hook %s on each trial", h.Command)
	}
	a.dispatcher = transport.NewDispatcher(transport.DefaultQueueSize, sinks...)

	// Try MediaPipe first, fall back to mock detector
	if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
		a.detector = mp
		log.Println("Using MediaPipe gesture recognition")
	} else {
		log.Printf("MediaPipe not available (%v), using mock detector", err)
		a.detector = detector.NewMockDetector()
	}

	return a
}

func defaultConfig() *config.Config {
	cfg := config.Default()
	cfg.Normalize()
	return cfg
}

func (a *App) sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Engine:        cfg.Engine(),
		Gesture:       cfg.Gesture(),
		FeatureWindow: cfg.FeatureWindow(),
		Meta: trial.Meta{
			ParticipantID: cfg.ParticipantID,
			SessionID:     cfg.SessionID,
			ItemID:        cfg.ItemID,
		},
	}
}

// AddObserver registers an observer for frames and status changes.
func (a *App) AddObserver(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, o)
}

// SetEnabled enables or disables frame processing.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether frame processing is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the hand detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// SetCamera sets the camera implementation to use. Call before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// Session returns the trial session.
func (a *App) Session() *session.Session {
	return a.session
}

// Config returns a copy of the effective configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Clone()
}

// ApplySettings rebuilds the effective configuration from the base file
// configuration and the full set of stored settings, then reconfigures the
// running session. Transport sinks keep the endpoints they started with.
func (a *App) ApplySettings(settings map[string]string) error {
	cfg := a.base.Clone()
	if err := cfg.ApplySettings(settings); err != nil {
		return err
	}

	a.mu.Lock()
	a.cfg = cfg
	camera := a.camera
	a.mu.Unlock()

	a.session.Reconfigure(a.sessionOptions(cfg))
	camera.SetFPS(int(cfg.MaxFPS))
	log.Printf("Applied %d stored settings", len(settings))
	return nil
}

// Meta returns the current trial metadata.
func (a *App) Meta() trial.Meta {
	return a.session.Meta()
}

// UpdateMeta applies a trial metadata update stamped with the session clock.
func (a *App) UpdateMeta(u trial.MetaUpdate) trial.Meta {
	return a.session.UpdateMeta(u, a.session.Now())
}

// Simulate commits label immediately, as if it had been held.
func (a *App) Simulate(label gesture.Label) trial.Packet {
	f := a.session.Simulate(label, a.session.Now())
	a.publish(f)
	return *f.Packet
}

// Stats returns the transport delivery counters.
func (a *App) Stats() transport.Stats {
	return a.dispatcher.Stats()
}

// Snapshot returns the most recent camera frame as JPEG. Calling it keeps
// frame encoding switched on for a short while.
func (a *App) Snapshot() ([]byte, error) {
	a.snapshotAt.Store(time.Now().UnixNano())

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snapshot == nil {
		return nil, capture.ErrNoFrame
	}
	return a.snapshot, nil
}

// Start opens the camera, connects optional sinks and begins the pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	if a.mqtt != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.mqtt.Connect(ctx); err != nil {
			log.Printf("MQTT not connected yet: %v", err)
		}
		cancel()
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	log.Println("Trial pipeline started")
	return nil
}

// Stop halts the pipeline and releases the camera and detector. State of an
// in-progress trial is abandoned.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}

	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			log.Printf("Error closing detector: %v", err)
		}
	}

	log.Println("Trial pipeline stopped")
}

// Close stops delivery and disconnects sinks. Queued packets are dropped.
func (a *App) Close() error {
	a.dispatcher.Close()
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	return nil
}
