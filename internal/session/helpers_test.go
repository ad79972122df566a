package session_test

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/session"
	"codeberg.org/mutker/benchlog/internal/storage"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newRepo(t testing.TB, clock *testClock) *storage.Repository {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewRepository(storage.Config{
		DBPath:    filepath.Join(dir, "benchlog.db"),
		BackupDir: filepath.Join(dir, "backups"),
	}, logger.Nop(), storage.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

// stepper holds the poll loop between cycles until the test calls step.
type stepper struct {
	ch chan struct{}
}

func newStepper() *stepper {
	return &stepper{ch: make(chan struct{})}
}

func (s *stepper) sleep(ctx context.Context, _ time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.ch:
		return true
	}
}

// step releases one wait. It returns once the loop has taken it, so the
// previous iteration is complete.
func (s *stepper) step(t *testing.T) {
	t.Helper()
	select {
	case s.ch <- struct{}{}:
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop never waited")
	}
}

// harness bundles a controller over a real repository with a stepped loop.
type harness struct {
	clock *testClock
	repo  *storage.Repository
	steps *stepper
	polls chan session.PollResult
	ctrl  *session.Controller
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()
	h := &harness{
		clock: newClock(),
		steps: newStepper(),
		polls: make(chan session.PollResult, 64),
	}
	h.repo = newRepo(t, h.clock)

	base := []session.Option{
		session.WithClock(h.clock.Now),
		session.WithSleeper(h.steps.sleep),
		session.WithAfterPoll(func(p session.PollResult) { h.polls <- p }),
	}
	h.ctrl = session.NewController(h.repo, logger.Nop(), append(base, opts...)...)
	t.Cleanup(func() { h.ctrl.Stop(context.Background()) })
	return h
}

func (h *harness) nextPoll(t *testing.T) session.PollResult {
	t.Helper()
	select {
	case p := <-h.polls:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("no poll cycle completed")
		return session.PollResult{}
	}
}

type failingReader struct{}

func (failingReader) Read(context.Context) (float64, error) {
	return 0, errSensorOffline
}

var errSensorOffline = stderrors.New("sensor offline")

func constant(v float64) device.Readable {
	return device.ReadFunc(func(context.Context) (float64, error) { return v, nil })
}

// stirrer is a device with a working temperature and a failing pressure.
func stirrer() device.Binding {
	return device.Binding{
		Name: "Hotplate",
		Type: "ika_stirrer",
		Parameters: device.Table{
			"temperature": {DisplayName: "Temperature", Unit: "°C", Reader: constant(42.0)},
			"pressure":    {DisplayName: "Pressure", Unit: "bar", Reader: failingReader{}},
		},
		Driver: device.Online{},
	}
}

func run1() session.Request {
	return session.Request{
		Name:            "Run1",
		Devices:         []device.Binding{stirrer()},
		Parameters:      map[string][]string{"Hotplate": {"temperature", "pressure"}},
		IntervalSeconds: 1,
	}
}

type switchable struct {
	mu sync.Mutex
	on bool
}

func (s *switchable) set(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = on
}

func (s *switchable) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}
