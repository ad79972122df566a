package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/storage"
)

const DefaultStopTimeout = 5 * time.Second

// Controller owns the active session. All methods are safe for concurrent use.
type Controller struct {
	store       Store
	logger      logger.Logger
	now         func() time.Time
	sleep       Sleeper
	afterPoll   func(PollResult)
	stopTimeout time.Duration
	readTimeout time.Duration
	unit        time.Duration

	mu     sync.Mutex
	active *run
}

// run is the in-memory state of the active session. It is discarded on stop.
type run struct {
	id              int64
	intervalSeconds int
	targets         []target

	paused    atomic.Bool
	stopping  atomic.Bool
	pollCount atomic.Int64
	points    atomic.Int64
	lastPoll  atomic.Pointer[time.Time]

	cancel context.CancelFunc
	done   chan struct{}
}

// target is one device with the parameters selected on it, resolved at start.
type target struct {
	binding device.Binding
	params  []string
}

func NewController(store Store, log logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		logger:      log,
		now:         time.Now,
		sleep:       sleepContext,
		stopTimeout: DefaultStopTimeout,
		unit:        time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start persists a new running session and launches its poll loop. It fails
// without touching the store when a session is already active or the
// request selects nothing loggable.
func (c *Controller) Start(ctx context.Context, req Request) (int64, error) {
	errFactory := errors.New()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return 0, errFactory.WithData(ErrAlreadyActive, struct {
			ActiveID int64
		}{
			ActiveID: c.active.id,
		})
	}

	if req.IntervalSeconds <= 0 {
		return 0, errFactory.WithData(ErrInvalidInterval, req.IntervalSeconds)
	}

	if len(req.Devices) == 0 {
		return 0, errFactory.New(ErrNoDevices)
	}

	targets := c.resolve(req)
	if len(targets) == 0 {
		return 0, errFactory.New(ErrNoParameters)
	}

	id, err := c.store.CreateSession(ctx, req.Name, req.IntervalSeconds, req.Metadata)
	if err != nil {
		return 0, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:              id,
		intervalSeconds: req.IntervalSeconds,
		targets:         targets,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	c.active = r

	go c.loop(loopCtx, r)

	c.logger.Info().
		Int64("session_id", id).
		Str("name", req.Name).
		Int("interval", req.IntervalSeconds).
		Int("devices", len(targets)).
		Msg("Logging session started")

	return id, nil
}

// resolve keeps the loggable devices and, on each, the selected parameters
// that its table defines, in selection order.
func (c *Controller) resolve(req Request) []target {
	var targets []target

	for _, b := range req.Devices {
		if !b.Loggable() {
			c.logger.Warn().Str("device", b.Name).Msg("Device is not loggable, skipping")
			continue
		}

		seen := make(map[string]bool)
		table := make(device.Table)
		var params []string
		for _, name := range req.Parameters[b.Name] {
			p, ok := b.Parameters[name]
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			p.Reader = device.WithTimeout(p.Reader, c.readTimeout)
			table[name] = p
			params = append(params, name)
		}

		if len(params) == 0 {
			continue
		}

		b.Parameters = table
		targets = append(targets, target{binding: b, params: params})
	}

	return targets
}

// Stop ends the active session. It waits up to the stop timeout for the
// poll loop without holding the controller lock, then marks the session
// stopped. The session stays active until that write succeeds, so a failed
// Stop can be retried and Start keeps refusing meanwhile. Stopping an idle
// controller is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	r := c.active
	if r == nil {
		c.mu.Unlock()
		return nil
	}
	r.stopping.Store(true)
	r.cancel()
	c.mu.Unlock()

	timer := time.NewTimer(c.stopTimeout)
	select {
	case <-r.done:
		timer.Stop()
	case <-timer.C:
		c.logger.Warn().
			Int64("session_id", r.id).
			Dur("timeout", c.stopTimeout).
			Msg("Poll loop did not exit in time, stopping anyway")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent Stop already finalized this run.
	if c.active != r {
		return nil
	}

	if err := c.store.UpdateSessionStatus(ctx, r.id, storage.StatusStopped); err != nil {
		return errors.New().Wrap(ErrStopFailed, err)
	}
	c.active = nil

	c.logger.Info().
		Int64("session_id", r.id).
		Int64("polls", r.pollCount.Load()).
		Int64("data_points", r.points.Load()).
		Msg("Logging session stopped")

	return nil
}

// Pause suspends collection. It is a no-op unless a session is running and
// not being stopped.
func (c *Controller) Pause(ctx context.Context) error {
	return c.setPaused(ctx, true)
}

// Resume continues a paused session. It is a no-op unless a session is paused.
func (c *Controller) Resume(ctx context.Context) error {
	return c.setPaused(ctx, false)
}

func (c *Controller) setPaused(ctx context.Context, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.active
	if r == nil || r.stopping.Load() || r.paused.Load() == paused {
		return nil
	}

	status := storage.StatusRunning
	if paused {
		status = storage.StatusPaused
	}

	if err := c.store.UpdateSessionStatus(ctx, r.id, status); err != nil {
		return err
	}
	r.paused.Store(paused)

	c.logger.Info().Int64("session_id", r.id).Str("status", string(status)).Msg("Logging session status changed")

	return nil
}

// ActiveID returns the id of the active session, if any.
func (c *Controller) ActiveID() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return 0, false
	}
	return c.active.id, true
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state()
}

func (c *Controller) state() State {
	switch {
	case c.active == nil:
		return Idle
	case c.active.paused.Load():
		return Paused
	default:
		return Running
	}
}

// Status reports the active session. Name, start time and the data point
// count come from the store, so they survive restarts of the collector.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.active
	if r == nil {
		return Status{State: Idle}, nil
	}

	session, err := c.store.GetSession(ctx, r.id)
	if err != nil {
		return Status{}, errors.New().Wrap(ErrStatusFailed, err)
	}

	count, err := c.store.GetDataPointCount(ctx, r.id)
	if err != nil {
		return Status{}, errors.New().Wrap(ErrStatusFailed, err)
	}

	elapsed := c.now().Sub(session.StartTime).Truncate(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	return Status{
		Active:           true,
		State:            c.state(),
		SessionID:        r.id,
		Name:             session.Name,
		StartTime:        session.StartTime,
		Elapsed:          elapsed,
		ElapsedSeconds:   int64(elapsed / time.Second),
		ElapsedFormatted: FormatElapsed(elapsed),
		PollCount:        r.pollCount.Load(),
		DataPoints:       count,
		IntervalSeconds:  r.intervalSeconds,
		LastPoll:         r.lastPoll.Load(),
	}, nil
}

// FormatElapsed renders d as H:MM:SS.
func FormatElapsed(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, total/60%60, total%60)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
