package rig_test

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/rig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const benchYAML = `
name: Hotplate ramp
interval: 2
metadata:
  operator: lab
  flask: 3
devices:
  - name: ambient
    type: fixed
    parameter: temperature
    unit: °C
    value: 21.5
  - name: gpu0
    type: nvgpu
    index: 0
    parameters: [temperature, power_usage]
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, os.WriteFile(path, []byte(benchYAML), 0o600))

	r, err := rig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Hotplate ramp", r.Name)
	assert.Equal(t, 2, r.Interval)
	assert.Equal(t, map[string]any{"operator": "lab", "flask": 3}, r.Metadata)
	require.Len(t, r.Devices, 2)
	assert.Equal(t, "nvgpu", r.Devices[1].Type)
	assert.Equal(t, []string{"temperature", "power_usage"}, r.Devices[1].Parameters)
	assert.InDelta(t, 21.5, r.Devices[0].Value, 0)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":      "name: x\ndevices:\n  - name: a\n    type: fixed\n    colour: red\n",
		"missing name":     "devices:\n  - name: a\n    type: fixed\n",
		"no devices":       "name: x\n",
		"negative":         "name: x\ninterval: -1\ndevices:\n  - name: a\n    type: fixed\n",
		"duplicate device": "name: x\ndevices:\n  - name: a\n    type: fixed\n  - name: a\n    type: fixed\n",
		"unnamed device":   "name: x\ndevices:\n  - type: fixed\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := rig.Parse(strings.NewReader(content))
			require.Error(t, err)
			code := errors.CodeOf(err)
			assert.Contains(t, []errors.ErrorCode{rig.ErrParseRig, rig.ErrInvalidRig}, code)
		})
	}
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func TestOpenBuildsRequest(t *testing.T) {
	r, err := rig.Parse(strings.NewReader(benchYAML))
	require.NoError(t, err)

	gpu := &closeCounter{}
	openers := rig.DefaultOpeners()
	openers["nvgpu"] = func(d rig.Device, _ logger.Logger) (device.Binding, io.Closer, error) {
		b := device.Fixed(d.Name, "temperature", "°C", 60)
		b.Type = "nvgpu"
		return b, gpu, nil
	}

	bench, err := r.Open(openers, 5, logger.Nop())
	require.NoError(t, err)

	req := bench.Request
	assert.Equal(t, "Hotplate ramp", req.Name)
	assert.Equal(t, 2, req.IntervalSeconds)
	require.Len(t, req.Devices, 2)
	assert.Equal(t, []string{"temperature"}, req.Parameters["ambient"])
	assert.Equal(t, []string{"temperature", "power_usage"}, req.Parameters["gpu0"])

	res := req.Devices[0].Read(context.Background(), "temperature")
	require.True(t, res.OK())
	assert.InDelta(t, 21.5, res.Value, 0)

	require.NoError(t, bench.Close())
	assert.Equal(t, 1, gpu.closed)
}

func TestOpenSkipsFailedDevice(t *testing.T) {
	r, err := rig.Parse(strings.NewReader(benchYAML))
	require.NoError(t, err)
	r.Interval = 0

	openers := rig.DefaultOpeners()
	openers["nvgpu"] = func(rig.Device, logger.Logger) (device.Binding, io.Closer, error) {
		return device.Binding{}, nil, stderrors.New("no NVML")
	}

	bench, err := r.Open(openers, 7, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 7, bench.Request.IntervalSeconds)
	require.Len(t, bench.Request.Devices, 1)
	assert.Equal(t, "ambient", bench.Request.Devices[0].Name)

	delete(openers, "fixed")
	_, err = r.Open(openers, 7, logger.Nop())
	assert.True(t, errors.HasCode(err, rig.ErrUnknownType))
}

func TestOpenNothingUsable(t *testing.T) {
	r, err := rig.Parse(strings.NewReader("name: x\ndevices:\n  - name: gpu\n    type: nvgpu\n"))
	require.NoError(t, err)

	openers := map[string]rig.Opener{
		"nvgpu": func(rig.Device, logger.Logger) (device.Binding, io.Closer, error) {
			return device.Binding{}, nil, stderrors.New("no NVML")
		},
	}
	_, err = r.Open(openers, 5, logger.Nop())
	assert.True(t, errors.HasCode(err, rig.ErrDeviceOpenFailed))
}
