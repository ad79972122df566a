// Package device defines how the collector sees an instrument: a driver handle
// that may be present or absent, and a table of named parameters, each bound
// to something that can produce a float64.
package device

import (
	"context"
)

// Readable produces the current value of one parameter.
type Readable interface {
	Read(ctx context.Context) (float64, error)
}

// ReadFunc adapts a function to Readable.
type ReadFunc func(ctx context.Context) (float64, error)

func (f ReadFunc) Read(ctx context.Context) (float64, error) {
	return f(ctx)
}

// Driver is the live handle behind a device. A nil Driver, or one that
// reports not connected, makes every read fail with ErrDriverAbsent.
type Driver interface {
	Connected() bool
}

// Args are the fixed call arguments of an accessor.
type Args map[string]any

// Accessor is a driver call that takes fixed arguments.
type Accessor func(ctx context.Context, args Args) (float64, error)

// Parameter is one entry of a loggable-parameter table.
type Parameter struct {
	DisplayName string
	Unit        string
	Args        Args
	Reader      Readable
}

// Table maps parameter names to their bindings.
type Table map[string]Parameter

// Binding is a device as handed to the collector.
type Binding struct {
	Name       string
	Type       string
	Parameters Table
	Driver     Driver
}

// Result is the typed outcome of a single read.
type Result struct {
	Value float64
	Err   error
}

// OK reports whether the read produced a value.
func (r Result) OK() bool {
	return r.Err == nil
}
