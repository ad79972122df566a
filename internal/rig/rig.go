// Package rig reads a bench description from YAML: the session name and
// interval, its metadata, and the devices with the parameters to log.
package rig

import (
	"io"
	"os"

	"codeberg.org/mutker/benchlog/internal/errors"
	"gopkg.in/yaml.v3"
)

// Rig is the parsed rig file.
type Rig struct {
	Name     string         `yaml:"name"`
	Interval int            `yaml:"interval"`
	Metadata map[string]any `yaml:"metadata"`
	Devices  []Device       `yaml:"devices"`
}

// Device is one instrument on the bench. Type selects how it is opened; the
// remaining fields are read by that type.
type Device struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Parameters []string `yaml:"parameters"`

	// nvgpu
	Index int `yaml:"index"`

	// fixed
	Parameter string  `yaml:"parameter"`
	Unit      string  `yaml:"unit"`
	Value     float64 `yaml:"value"`
}

// Load reads and validates the rig file at path.
func Load(path string) (*Rig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New().Wrap(ErrReadRig, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes and validates a rig. Unknown keys are rejected.
func Parse(r io.Reader) (*Rig, error) {
	errFactory := errors.New()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rig Rig
	if err := dec.Decode(&rig); err != nil {
		return nil, errFactory.Wrap(ErrParseRig, err)
	}

	if err := rig.Validate(); err != nil {
		return nil, err
	}

	return &rig, nil
}

// Validate checks the rig. A zero interval is allowed and means the
// configured default.
func (r *Rig) Validate() error {
	errFactory := errors.New()

	if r.Name == "" {
		return errFactory.WithData(ErrInvalidRig, "name is required")
	}
	if r.Interval < 0 {
		return errFactory.WithData(ErrInvalidRig, "interval must not be negative")
	}
	if len(r.Devices) == 0 {
		return errFactory.WithData(ErrInvalidRig, "at least one device is required")
	}

	seen := make(map[string]bool)
	for i, d := range r.Devices {
		if d.Name == "" {
			return errFactory.WithData(ErrInvalidRig, struct {
				Device int
				Error  string
			}{
				Device: i,
				Error:  "device name is required",
			})
		}
		if seen[d.Name] {
			return errFactory.WithData(ErrInvalidRig, struct {
				Device string
				Error  string
			}{
				Device: d.Name,
				Error:  "duplicate device name",
			})
		}
		seen[d.Name] = true
	}

	return nil
}
