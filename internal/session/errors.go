package session

import "codeberg.org/mutker/benchlog/internal/errors"

const (
	// Start Errors
	ErrNoDevices       = errors.ErrorCode("session_no_devices")
	ErrNoParameters    = errors.ErrorCode("session_no_parameters")
	ErrInvalidInterval = errors.ErrorCode("session_invalid_interval")
	ErrAlreadyActive   = errors.ErrorCode("session_already_active")

	// Lifecycle Errors
	ErrStopFailed   = errors.ErrorCode("session_stop_failed")
	ErrStatusFailed = errors.ErrorCode("session_status_failed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNoDevices:       "No devices selected for logging",
		ErrNoParameters:    "No loggable parameters selected",
		ErrInvalidInterval: "Interval must be a positive number of seconds",
		ErrAlreadyActive:   "A logging session is already active, stop it first",
		ErrStopFailed:      "Failed to finalize session",
		ErrStatusFailed:    "Failed to read session status",
	})
}
