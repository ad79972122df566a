// Package session runs the single active logging session: its Idle, Running
// and Paused states, and the background loop that polls the selected device
// parameters and appends their values to the store.
package session

import (
	"context"
	"time"

	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/storage"
)

// Store is the part of the repository the controller writes through.
type Store interface {
	CreateSession(ctx context.Context, name string, intervalSeconds int, metadata map[string]any) (int64, error)
	UpdateSessionStatus(ctx context.Context, id int64, status storage.Status) error
	RecordDataPoint(ctx context.Context, p storage.DataPoint) error
	GetSession(ctx context.Context, id int64) (*storage.Session, error)
	GetDataPointCount(ctx context.Context, id int64) (int, error)
}

// State of the controller.
type State string

const (
	Idle    State = "idle"
	Running State = "running"
	Paused  State = "paused"
)

// Request describes a session to start. Parameters maps a device name to the
// parameters selected on it; names missing from the device's table are ignored.
type Request struct {
	Name            string
	Devices         []device.Binding
	Parameters      map[string][]string
	IntervalSeconds int
	Metadata        map[string]any
}

// Status is the live view of the controller. When idle only Active and State
// are set.
type Status struct {
	Active           bool          `json:"active"`
	State            State         `json:"status"`
	SessionID        int64         `json:"session_id,omitempty"`
	Name             string        `json:"session_name,omitempty"`
	StartTime        time.Time     `json:"start_time,omitempty"`
	Elapsed          time.Duration `json:"-"`
	ElapsedSeconds   int64         `json:"elapsed_seconds,omitempty"`
	ElapsedFormatted string        `json:"elapsed_formatted,omitempty"`
	PollCount        int64         `json:"poll_count"`
	DataPoints       int           `json:"data_points"`
	IntervalSeconds  int           `json:"interval_seconds,omitempty"`
	LastPoll         *time.Time    `json:"last_poll,omitempty"`
}

// Reading is the outcome of one parameter in one cycle. Err is a read error
// from the device or a write error from the store.
type Reading struct {
	Device    string
	Parameter string
	Unit      string
	Value     float64
	Err       error
}

// PollResult is published after every completed cycle.
type PollResult struct {
	SessionID int64
	Cycle     int64
	Time      time.Time
	Readings  []Reading
	Recorded  int
}

// Sleeper waits d or until ctx is done. It returns false when the loop
// should exit.
type Sleeper func(ctx context.Context, d time.Duration) bool

type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithSleeper replaces the wait between cycles.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		c.sleep = s
	}
}

// WithAfterPoll registers fn to receive every completed cycle. fn runs on
// the poll goroutine; it must not block for long or call back into the
// controller.
func WithAfterPoll(fn func(PollResult)) Option {
	return func(c *Controller) {
		c.afterPoll = fn
	}
}

// WithStopTimeout bounds how long Stop waits for the poll loop.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.stopTimeout = d
	}
}

// WithReadTimeout bounds every device read. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.readTimeout = d
	}
}

// WithTimeUnit sets the length of one interval unit. Defaults to a second.
func WithTimeUnit(d time.Duration) Option {
	return func(c *Controller) {
		c.unit = d
	}
}
