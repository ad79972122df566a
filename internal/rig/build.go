package rig

import (
	"io"
	"sort"

	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/device/nvgpu"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/session"
)

// Opener connects one rig device. The returned closer may be nil.
type Opener func(d Device, log logger.Logger) (device.Binding, io.Closer, error)

// DefaultOpeners knows the built-in device types.
func DefaultOpeners() map[string]Opener {
	return map[string]Opener{
		nvgpu.DeviceType: openGPU,
		"fixed":          openFixed,
	}
}

func openGPU(d Device, log logger.Logger) (device.Binding, io.Closer, error) {
	g, err := nvgpu.Open(d.Index, log)
	if err != nil {
		return device.Binding{}, nil, err
	}
	return g.Binding(d.Name), g, nil
}

func openFixed(d Device, _ logger.Logger) (device.Binding, io.Closer, error) {
	param := d.Parameter
	if param == "" {
		param = "value"
	}
	return device.Fixed(d.Name, param, d.Unit, d.Value), nil, nil
}

// Bench is an opened rig, ready to start.
type Bench struct {
	Request session.Request
	closers []io.Closer
}

// Close releases every opened device.
func (b *Bench) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// Open connects every device of r with openers and builds the session
// request. A device with no parameters listed logs all of them. A device
// that fails to open is skipped with a warning so one unplugged instrument
// does not keep the rest of the bench from logging.
func (r *Rig) Open(openers map[string]Opener, defaultInterval int, log logger.Logger) (*Bench, error) {
	errFactory := errors.New()

	interval := r.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	b := &Bench{Request: session.Request{
		Name:            r.Name,
		Parameters:      make(map[string][]string),
		IntervalSeconds: interval,
		Metadata:        r.Metadata,
	}}

	for _, d := range r.Devices {
		open, ok := openers[d.Type]
		if !ok {
			b.Close()
			return nil, errFactory.WithData(ErrUnknownType, struct {
				Device string
				Type   string
			}{
				Device: d.Name,
				Type:   d.Type,
			})
		}

		binding, closer, err := open(d, log.With("device", d.Name))
		if err != nil {
			log.Warn().
				Str("device", d.Name).
				Str("type", d.Type).
				Err(err).
				Msg("Failed to open device, skipping")
			continue
		}
		if closer != nil {
			b.closers = append(b.closers, closer)
		}

		params := d.Parameters
		if len(params) == 0 {
			params = sortedNames(binding.Parameters)
		}

		b.Request.Devices = append(b.Request.Devices, binding)
		b.Request.Parameters[d.Name] = params
	}

	if len(b.Request.Devices) == 0 {
		return nil, errFactory.New(ErrDeviceOpenFailed)
	}

	return b, nil
}

func sortedNames(t device.Table) []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
