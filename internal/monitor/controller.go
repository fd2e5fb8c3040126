// Package monitor drives the per-reading simulation loop. A Controller
// is a two-state machine (idle/running) that owns the in-memory session
// buffer: it replays the telemetry source one reading at a time,
// classifies each reading, attaches causal tags, and hands the finished
// buffer to the log store when the session ends. Presentation clients
// observe the stream through subscriber channels and only ever issue
// start/stop commands.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fleet.health/internal/causes"
	"github.com/banshee-data/fleet.health/internal/model"
	"github.com/banshee-data/fleet.health/internal/monitoring"
	"github.com/banshee-data/fleet.health/internal/obd"
	"github.com/banshee-data/fleet.health/internal/timeutil"
)

// State is the controller's lifecycle state.
type State string

const (
	// Idle means no session is active; the buffer is empty unless a
	// flush failed and the caller has not retried yet.
	Idle State = "idle"
	// Running means a session is replaying the telemetry source.
	Running State = "running"
)

var (
	// ErrAlreadyRunning is returned by Start while a session is active.
	ErrAlreadyRunning = errors.New("a monitoring session is already running")
	// ErrNotRunning is returned by Step when no session is active.
	ErrNotRunning = errors.New("no monitoring session is running")
	// ErrUnknownVehicle is returned by Start for an unconfigured vehicle.
	ErrUnknownVehicle = errors.New("unknown vehicle")
	// ErrSessionDone is returned by Step once the session has ended
	// (stop honoured or stream exhausted) and the buffer was flushed.
	ErrSessionDone = errors.New("monitoring session finished")
)

// Notification is the transient per-step event published to
// subscribers. Alert mirrors the live display's warning banner: raised
// when the classifier predicts a breakdown or any causal rule fired.
type Notification struct {
	Record obd.Record `json:"record"`
	Alert  bool       `json:"alert"`
}

// LogStore persists a finished session's records. *logstore.Store is
// the production implementation.
type LogStore interface {
	Persist(vehicleID string, records []obd.Record, stoppedAt time.Time) (string, error)
}

// Options tunes controller behaviour; zero values get sensible defaults.
type Options struct {
	// Clock stamps records and paces Run. Defaults to the real clock.
	Clock timeutil.Clock
	// StepInterval is the pause between Run iterations. Defaults to 1ms.
	StepInterval time.Duration
}

// Controller owns the session lifecycle and buffer.
type Controller struct {
	source   obd.Source
	clf      model.Classifier
	engine   *causes.Engine
	store    LogStore
	vehicles map[string]string // vehicle id → driver
	clock    timeutil.Clock
	interval time.Duration

	mu        sync.Mutex
	state     State
	sessionID string
	vehicleID string
	driver    string
	buffer    []obd.Record
	stopReq   bool
	lastErr   error
	lastLog   string

	subMu       sync.Mutex
	subscribers map[string]chan Notification
}

// NewController wires a controller from its collaborators. vehicles
// maps each selectable vehicle id to its driver.
func NewController(src obd.Source, clf model.Classifier, engine *causes.Engine, store LogStore, vehicles map[string]string, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.StepInterval <= 0 {
		opts.StepInterval = time.Millisecond
	}
	return &Controller{
		source:      src,
		clf:         clf,
		engine:      engine,
		store:       store,
		vehicles:    vehicles,
		clock:       opts.Clock,
		interval:    opts.StepInterval,
		state:       Idle,
		subscribers: make(map[string]chan Notification),
	}
}

// Start begins a session for the given vehicle and returns its session
// id. The buffer is cleared and the telemetry source rewound to its
// first reading: sessions are never resumable. Switching vehicles
// requires stopping first.
func (c *Controller) Start(vehicleID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		return "", ErrAlreadyRunning
	}
	driver, ok := c.vehicles[vehicleID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVehicle, vehicleID)
	}

	c.sessionID = uuid.NewString()
	c.vehicleID = vehicleID
	c.driver = driver
	c.buffer = nil
	c.stopReq = false
	c.lastErr = nil
	c.source.Reset()
	c.state = Running
	monitoring.Logf("session %s started for vehicle %s (driver %s)", c.sessionID, vehicleID, driver)
	return c.sessionID, nil
}

// Stop requests the running session to end. The request is honoured
// cooperatively before the next reading is pulled, never mid-step.
// Stopping an idle controller is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return
	}
	c.stopReq = true
}

// Step processes exactly one reading: pull → classify → evaluate causes
// → append to the buffer → notify subscribers. A pending stop or ctx
// cancellation is honoured before pulling; stream exhaustion and stop
// both finalize the session (flushing a non-empty buffer) and return
// ErrSessionDone. A classifier failure is fatal to the run: the buffer
// is flushed first, then the failure is surfaced.
func (c *Controller) Step(ctx context.Context) (*obd.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Running {
		return nil, ErrNotRunning
	}

	if c.stopReq || ctx.Err() != nil {
		if err := c.finalizeLocked(); err != nil {
			return nil, err
		}
		return nil, ErrSessionDone
	}

	reading, err := c.source.Next()
	if err == io.EOF {
		if err := c.finalizeLocked(); err != nil {
			return nil, err
		}
		return nil, ErrSessionDone
	}
	if err != nil {
		c.lastErr = err
		return nil, errors.Join(fmt.Errorf("telemetry source failed: %w", err), c.finalizeLocked())
	}

	prediction, err := c.clf.Predict(reading.FeatureVector())
	if err != nil {
		return nil, c.classifierFailureLocked(err)
	}
	probability, err := c.clf.PredictProbability(reading.FeatureVector())
	if err != nil {
		return nil, c.classifierFailureLocked(err)
	}

	tags := c.engine.Evaluate(reading)
	rec := obd.Record{
		Reading:      reading,
		VehicleID:    c.vehicleID,
		Driver:       c.driver,
		LoggedAt:     c.clock.Now(),
		Prediction:   prediction,
		Probability:  math.Round(probability*1e4) / 1e4,
		Causes:       tags,
		PrimaryCause: causes.Primary(tags),
	}
	c.buffer = append(c.buffer, rec)

	c.publish(Notification{Record: rec, Alert: prediction == 1 || len(tags) > 0})
	return &rec, nil
}

// classifierFailureLocked treats an inference error as an implicit
// stop: records buffered so far are flushed, never discarded.
func (c *Controller) classifierFailureLocked(cause error) error {
	err := fmt.Errorf("classifier failed: %w", cause)
	c.lastErr = err
	return errors.Join(err, c.finalizeLocked())
}

// finalizeLocked ends the session: flush a non-empty buffer to the
// store and return to idle. An empty buffer writes nothing. On a
// persistence failure the buffer is preserved so the caller can retry
// with Flush.
func (c *Controller) finalizeLocked() error {
	c.state = Idle
	c.stopReq = false
	if len(c.buffer) == 0 {
		monitoring.Logf("session %s finished with no records; nothing persisted", c.sessionID)
		return nil
	}

	path, err := c.store.Persist(c.vehicleID, c.buffer, c.clock.Now())
	if err != nil {
		err = fmt.Errorf("failed to persist session %s: %w", c.sessionID, err)
		c.lastErr = err
		return err
	}
	monitoring.Logf("session %s persisted %d records to %s", c.sessionID, len(c.buffer), path)
	c.lastLog = path
	c.buffer = nil
	return nil
}

// Flush retries persisting a buffer left over from a failed finalize.
// It is a no-op when the buffer is empty and refuses to run mid-session.
func (c *Controller) Flush() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		return "", ErrAlreadyRunning
	}
	if len(c.buffer) == 0 {
		return "", nil
	}

	path, err := c.store.Persist(c.vehicleID, c.buffer, c.clock.Now())
	if err != nil {
		return "", fmt.Errorf("failed to persist session %s: %w", c.sessionID, err)
	}
	c.lastLog = path
	c.buffer = nil
	c.lastErr = nil
	return path, nil
}

// Run steps the session to completion, pacing iterations with the
// configured interval. It returns nil when the session ends normally
// (stop or stream exhaustion) and the first fatal error otherwise.
func (c *Controller) Run(ctx context.Context) error {
	for {
		_, err := c.Step(ctx)
		if errors.Is(err, ErrSessionDone) {
			return nil
		}
		if err != nil {
			return err
		}
		c.clock.Sleep(c.interval)
	}
}

// Status is a point-in-time controller snapshot for the API surface.
type Status struct {
	State       State  `json:"state"`
	SessionID   string `json:"session_id,omitempty"`
	VehicleID   string `json:"vehicle_id,omitempty"`
	Driver      string `json:"driver,omitempty"`
	Records     int    `json:"records"`
	LastLogPath string `json:"last_log_path,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// Status reports the controller's current state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:       c.state,
		SessionID:   c.sessionID,
		VehicleID:   c.vehicleID,
		Driver:      c.driver,
		Records:     len(c.buffer),
		LastLogPath: c.lastLog,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Vehicles returns the configured vehicle → driver mapping.
func (c *Controller) Vehicles() map[string]string {
	out := make(map[string]string, len(c.vehicles))
	for id, driver := range c.vehicles {
		out[id] = driver
	}
	return out
}

// Subscribe creates a channel receiving a Notification per processed
// reading. The returned id identifies the channel for Unsubscribe.
func (c *Controller) Subscribe() (string, chan Notification) {
	id := uuid.NewString()
	ch := make(chan Notification, 16)
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (c *Controller) Unsubscribe(id string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
	}
}

// publish fans a notification out to subscribers. Sends never block: a
// slow consumer drops events rather than stalling the loop.
func (c *Controller) publish(n Notification) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}
