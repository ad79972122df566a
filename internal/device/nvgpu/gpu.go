// Package nvgpu exposes an NVIDIA GPU as a loggable device: temperature,
// per-fan speed, power draw, power limit and utilization, read through NVML.
package nvgpu

import (
	"context"
	"fmt"
	"sync"

	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	DeviceType        = "nvgpu"
	milliWattsToWatts = 1000
)

// GPU is one NVML device. It is the Driver of its binding and reports not
// connected after Close or once NVML says the GPU is lost.
type GPU struct {
	lib       library
	dev       sensor
	index     int
	name      string
	fanCount  int
	connected bool
	mu        sync.RWMutex
	logger    logger.Logger
}

// Open initializes NVML and attaches to the GPU at index.
func Open(index int, log logger.Logger) (*GPU, error) {
	return open(nvmlLibrary{}, index, log)
}

func open(lib library, index int, log logger.Logger) (*GPU, error) {
	errFactory := errors.New()

	if ret := lib.Init(); !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	count, ret := lib.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		lib.Shutdown()
		return nil, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}
	if index < 0 || index >= count {
		lib.Shutdown()
		return nil, errFactory.WithData(ErrDeviceNotFound, struct {
			Index int
			Count int
		}{
			Index: index,
			Count: count,
		})
	}

	dev, ret := lib.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		lib.Shutdown()
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	g := &GPU{lib: lib, dev: dev, index: index, connected: true, logger: log}

	if name, ret := dev.GetName(); IsNVMLSuccess(ret) {
		g.name = name
		log.Info().Int("index", index).Str("name", name).Msg("Detected GPU")
	} else {
		log.Warn().Str("error", nvml.ErrorString(ret)).Msg("Failed to get GPU name")
	}

	fans, ret := dev.GetNumFans()
	if !IsNVMLSuccess(ret) {
		lib.Shutdown()
		return nil, errFactory.Wrap(ErrFanCountFailed, newNVMLError(ret))
	}
	g.fanCount = fans
	log.Debug().Int("fans", fans).Msg("Detected fans")

	return g, nil
}

// Connected implements device.Driver.
func (g *GPU) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connected
}

// Name is the model name NVML reports, or empty if it could not be read.
func (g *GPU) Name() string {
	return g.name
}

// Close shuts NVML down. Later reads fail as driver absent.
func (g *GPU) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected {
		return nil
	}
	g.connected = false

	if ret := g.lib.Shutdown(); !IsNVMLSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	return nil
}

// Binding returns the GPU as a device named name. Fans are numbered from zero.
func (g *GPU) Binding(name string) device.Binding {
	table := device.Table{
		"temperature": device.NewParameter("Temperature", "°C", g.temperature, nil),
		"power_usage": device.NewParameter("Power Usage", "W", g.powerUsage, nil),
		"power_limit": device.NewParameter("Power Limit", "W", g.powerLimit, nil),
		"utilization": device.NewParameter("GPU Utilization", "%", g.utilization, nil),
	}
	for i := 0; i < g.fanCount; i++ {
		table[fmt.Sprintf("fan_speed_%d", i)] = device.NewParameter(
			fmt.Sprintf("Fan %d Speed", i), "%", g.fanSpeed, device.Args{"fan": i})
	}

	return device.Binding{
		Name:       name,
		Type:       DeviceType,
		Parameters: table,
		Driver:     g,
	}
}

func (g *GPU) temperature(_ context.Context, _ device.Args) (float64, error) {
	return g.read(ErrTemperatureReadFailed, func() (uint32, nvml.Return) {
		return g.dev.GetTemperature(nvml.TEMPERATURE_GPU)
	})
}

func (g *GPU) fanSpeed(_ context.Context, args device.Args) (float64, error) {
	fan, ok := args["fan"].(int)
	if !ok || fan < 0 || fan >= g.fanCount {
		return 0, errors.New().WithData(errors.ErrInvalidArgument, "fan index out of range")
	}

	return g.read(ErrFanSpeedReadFailed, func() (uint32, nvml.Return) {
		return g.dev.GetFanSpeed_v2(fan)
	})
}

func (g *GPU) powerUsage(_ context.Context, _ device.Args) (float64, error) {
	mw, err := g.read(ErrPowerUsageReadFailed, g.dev.GetPowerUsage)
	return mw / milliWattsToWatts, err
}

func (g *GPU) powerLimit(_ context.Context, _ device.Args) (float64, error) {
	mw, err := g.read(ErrPowerLimitReadFailed, g.dev.GetPowerManagementLimit)
	return mw / milliWattsToWatts, err
}

func (g *GPU) utilization(_ context.Context, _ device.Args) (float64, error) {
	return g.read(ErrUtilizationReadFailed, func() (uint32, nvml.Return) {
		rates, ret := g.dev.GetUtilizationRates()
		return rates.Gpu, ret
	})
}

// read runs one NVML query. Unsupported queries have no value; a lost GPU
// marks the driver disconnected.
func (g *GPU) read(code errors.ErrorCode, query func() (uint32, nvml.Return)) (float64, error) {
	g.mu.RLock()
	connected := g.connected
	g.mu.RUnlock()
	if !connected {
		return 0, errors.New().New(ErrNotInitialized)
	}

	v, ret := query()
	switch ret {
	case nvml.SUCCESS:
		return float64(v), nil
	case nvml.ERROR_NOT_SUPPORTED:
		return 0, device.NoValue()
	case nvml.ERROR_GPU_IS_LOST:
		g.mu.Lock()
		g.connected = false
		g.mu.Unlock()
		g.logger.Error().Int("index", g.index).Msg("GPU is lost")
	}

	return 0, errors.New().Wrap(code, newNVMLError(ret))
}
