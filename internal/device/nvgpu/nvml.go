package nvgpu

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// sensor is the part of nvml.Device the collector reads.
type sensor interface {
	GetName() (string, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetNumFans() (int, nvml.Return)
	GetFanSpeed_v2(int) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetPowerManagementLimit() (uint32, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
}

// library abstracts the NVML entry points for testing
type library interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (sensor, nvml.Return)
}

type nvmlLibrary struct{}

func (nvmlLibrary) Init() nvml.Return {
	return nvml.Init()
}

func (nvmlLibrary) Shutdown() nvml.Return {
	return nvml.Shutdown()
}

func (nvmlLibrary) DeviceGetCount() (int, nvml.Return) {
	return nvml.DeviceGetCount()
}

func (nvmlLibrary) DeviceGetHandleByIndex(index int) (sensor, nvml.Return) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, ret
	}
	return device, ret
}
