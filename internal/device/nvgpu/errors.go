package nvgpu

import (
	"codeberg.org/mutker/benchlog/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	// Initialization and Lifecycle Errors
	ErrNotInitialized    = errors.ErrorCode("nvgpu_not_initialized")
	ErrInitFailed        = errors.ErrorCode("nvgpu_init_failed")
	ErrShutdownFailed    = errors.ErrorCode("nvgpu_shutdown_failed")
	ErrDeviceCountFailed = errors.ErrorCode("nvgpu_device_count_failed")
	ErrDeviceNotFound    = errors.ErrorCode("nvgpu_device_not_found")
	ErrFanCountFailed    = errors.ErrorCode("nvgpu_fan_count_failed")

	// Read Errors
	ErrTemperatureReadFailed = errors.ErrorCode("nvgpu_temperature_read_failed")
	ErrFanSpeedReadFailed    = errors.ErrorCode("nvgpu_fan_speed_read_failed")
	ErrPowerUsageReadFailed  = errors.ErrorCode("nvgpu_power_usage_read_failed")
	ErrPowerLimitReadFailed  = errors.ErrorCode("nvgpu_power_limit_read_failed")
	ErrUtilizationReadFailed = errors.ErrorCode("nvgpu_utilization_read_failed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrNotInitialized:        "NVML is not initialized",
		ErrInitFailed:            "Failed to initialize NVML",
		ErrShutdownFailed:        "Failed to shut down NVML",
		ErrDeviceCountFailed:     "Failed to count GPUs",
		ErrDeviceNotFound:        "GPU not found",
		ErrFanCountFailed:        "Failed to count GPU fans",
		ErrTemperatureReadFailed: "Failed to read GPU temperature",
		ErrFanSpeedReadFailed:    "Failed to read GPU fan speed",
		ErrPowerUsageReadFailed:  "Failed to read GPU power usage",
		ErrPowerLimitReadFailed:  "Failed to read GPU power limit",
		ErrUtilizationReadFailed: "Failed to read GPU utilization",
	})
}

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
