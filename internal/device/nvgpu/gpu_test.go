package nvgpu

import (
	"context"
	"testing"

	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensor struct {
	temperature uint32
	fanSpeeds   []uint32
	powerMW     uint32
	limitMW     uint32
	util        uint32
	tempRet     nvml.Return
	powerRet    nvml.Return
}

func (s *fakeSensor) GetName() (string, nvml.Return) { return "RTX Test", nvml.SUCCESS }

func (s *fakeSensor) GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return) {
	return s.temperature, s.tempRet
}

func (s *fakeSensor) GetNumFans() (int, nvml.Return) { return len(s.fanSpeeds), nvml.SUCCESS }

func (s *fakeSensor) GetFanSpeed_v2(i int) (uint32, nvml.Return) { return s.fanSpeeds[i], nvml.SUCCESS }

func (s *fakeSensor) GetPowerUsage() (uint32, nvml.Return) { return s.powerMW, s.powerRet }

func (s *fakeSensor) GetPowerManagementLimit() (uint32, nvml.Return) { return s.limitMW, nvml.SUCCESS }

func (s *fakeSensor) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return nvml.Utilization{Gpu: s.util}, nvml.SUCCESS
}

type fakeLibrary struct {
	initRet   nvml.Return
	sensors   []*fakeSensor
	shutdowns int
}

func (l *fakeLibrary) Init() nvml.Return { return l.initRet }

func (l *fakeLibrary) Shutdown() nvml.Return {
	l.shutdowns++
	return nvml.SUCCESS
}

func (l *fakeLibrary) DeviceGetCount() (int, nvml.Return) { return len(l.sensors), nvml.SUCCESS }

func (l *fakeLibrary) DeviceGetHandleByIndex(i int) (sensor, nvml.Return) {
	return l.sensors[i], nvml.SUCCESS
}

func newFake() (*fakeLibrary, *fakeSensor) {
	s := &fakeSensor{
		temperature: 64,
		fanSpeeds:   []uint32{40, 45},
		powerMW:     182500,
		limitMW:     250000,
		util:        97,
	}
	return &fakeLibrary{sensors: []*fakeSensor{s}}, s
}

func TestBindingReadsSensors(t *testing.T) {
	lib, _ := newFake()
	g, err := open(lib, 0, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "RTX Test", g.Name())

	b := g.Binding("gpu0")
	assert.Equal(t, DeviceType, b.Type)
	assert.True(t, b.Loggable())
	assert.Len(t, b.Parameters, 6)
	assert.Equal(t, device.Args{"fan": 1}, b.Parameters["fan_speed_1"].Args)

	ctx := context.Background()
	want := map[string]float64{
		"temperature": 64,
		"fan_speed_0": 40,
		"fan_speed_1": 45,
		"power_usage": 182.5,
		"power_limit": 250,
		"utilization": 97,
	}
	for name, value := range want {
		res := b.Read(ctx, name)
		require.True(t, res.OK(), "%s: %v", name, res.Err)
		assert.InDelta(t, value, res.Value, 1e-9, name)
	}
}

func TestReadErrors(t *testing.T) {
	lib, s := newFake()
	g, err := open(lib, 0, logger.Nop())
	require.NoError(t, err)
	b := g.Binding("gpu0")
	ctx := context.Background()

	s.powerRet = nvml.ERROR_NOT_SUPPORTED
	res := b.Read(ctx, "power_usage")
	assert.True(t, errors.HasCode(res.Err, device.ErrNoValue))

	s.tempRet = nvml.ERROR_UNKNOWN
	res = b.Read(ctx, "temperature")
	assert.True(t, errors.HasCode(res.Err, device.ErrReadFailed))
	assert.True(t, errors.HasCode(res.Err, ErrTemperatureReadFailed))
	assert.True(t, g.Connected())

	s.tempRet = nvml.ERROR_GPU_IS_LOST
	b.Read(ctx, "temperature")
	assert.False(t, g.Connected())

	res = b.Read(ctx, "fan_speed_0")
	assert.True(t, errors.HasCode(res.Err, device.ErrDriverAbsent))
}

func TestCloseDisconnects(t *testing.T) {
	lib, _ := newFake()
	g, err := open(lib, 0, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, 1, lib.shutdowns)
	assert.False(t, g.Binding("gpu0").Loggable())
}

func TestOpenFailures(t *testing.T) {
	lib, _ := newFake()
	_, err := open(lib, 3, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrDeviceNotFound))
	assert.Equal(t, 1, lib.shutdowns)

	lib.initRet = nvml.ERROR_LIBRARY_NOT_FOUND
	_, err = open(lib, 0, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrInitFailed))
}
