package rig

import "codeberg.org/mutker/benchlog/internal/errors"

const (
	ErrReadRig          = errors.ErrorCode("rig_read_failed")
	ErrParseRig         = errors.ErrorCode("rig_parse_failed")
	ErrInvalidRig       = errors.ErrorCode("rig_invalid")
	ErrUnknownType      = errors.ErrorCode("rig_unknown_device_type")
	ErrDeviceOpenFailed = errors.ErrorCode("rig_device_open_failed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrReadRig:          "Failed to read rig file",
		ErrParseRig:         "Failed to parse rig file",
		ErrInvalidRig:       "Invalid rig file",
		ErrUnknownType:      "Unknown device type",
		ErrDeviceOpenFailed: "Failed to open device",
	})
}
