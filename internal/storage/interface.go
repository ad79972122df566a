package storage

import "time"

// Status is the lifecycle state stored with a session.
type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Valid reports whether s is one of the stored states.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusPaused, StatusStopped:
		return true
	default:
		return false
	}
}

// ImportedDeviceType replaces device_type on every imported data point.
// The CSV format carries no device type column.
const ImportedDeviceType = "imported"

// Session is one logging run.
type Session struct {
	ID              int64
	Name            string
	StartTime       time.Time
	EndTime         *time.Time
	IntervalSeconds int
	Status          Status
	Metadata        map[string]any
}

// DataPoint is one stored reading. A zero Timestamp is stamped with the
// store's clock on insert.
type DataPoint struct {
	SessionID  int64
	Timestamp  time.Time
	DeviceName string
	DeviceType string
	Parameter  string
	Value      float64
	Unit       string
}

// Row is the query shape of a data point.
type Row struct {
	Timestamp  time.Time
	DeviceName string
	Parameter  string
	Value      float64
	Unit       string
}
