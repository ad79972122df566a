package device

import "codeberg.org/mutker/benchlog/internal/errors"

const (
	// Read Errors
	ErrDriverAbsent = errors.ErrorCode("device_driver_absent")
	ErrNoAccessor   = errors.ErrorCode("device_no_accessor")
	ErrNoValue      = errors.ErrorCode("device_no_value")
	ErrReadFailed   = errors.ErrorCode("device_read_failed")
	ErrReadTimeout  = errors.ErrorCode("device_read_timeout")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrDriverAbsent: "Device driver is not connected",
		ErrNoAccessor:   "Parameter has no accessor",
		ErrNoValue:      "Device returned no value",
		ErrReadFailed:   "Device read failed",
		ErrReadTimeout:  "Device read timed out",
	})
}
