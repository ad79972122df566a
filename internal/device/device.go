package device

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/benchlog/internal/errors"
)

// Bind fixes args for accessor. The returned Readable ignores later changes to args.
func Bind(accessor Accessor, args Args) Readable {
	fixed := make(Args, len(args))
	for k, v := range args {
		fixed[k] = v
	}

	return ReadFunc(func(ctx context.Context) (float64, error) {
		return accessor(ctx, fixed)
	})
}

// NewParameter builds a table entry whose reader calls accessor with args.
func NewParameter(displayName, unit string, accessor Accessor, args Args) Parameter {
	return Parameter{
		DisplayName: displayName,
		Unit:        unit,
		Args:        args,
		Reader:      Bind(accessor, args),
	}
}

// Loggable reports whether the device can be selected for logging.
func (b Binding) Loggable() bool {
	return len(b.Parameters) > 0 && b.connected()
}

func (b Binding) connected() bool {
	return b.Driver != nil && b.Driver.Connected()
}

// Read reads one parameter and classifies the outcome.
func (b Binding) Read(ctx context.Context, name string) Result {
	errFactory := errors.New()

	if !b.connected() {
		return Result{Err: errFactory.WithData(ErrDriverAbsent, b.Name)}
	}

	param, ok := b.Parameters[name]
	if !ok || param.Reader == nil {
		return Result{Err: errFactory.WithData(ErrNoAccessor, b.Name+"."+name)}
	}

	value, err := param.Reader.Read(ctx)
	if err != nil {
		if errors.HasCode(err, ErrNoValue) || errors.HasCode(err, ErrReadTimeout) {
			return Result{Err: err}
		}
		return Result{Err: errFactory.Wrap(ErrReadFailed, err)}
	}

	if math.IsNaN(value) {
		return Result{Err: errFactory.WithData(ErrNoValue, b.Name+"."+name)}
	}

	return Result{Value: value}
}

// NoValue is returned by accessors that answered but had nothing to report.
func NoValue() error {
	return errors.New().New(ErrNoValue)
}

// WithTimeout bounds each Read of r to d. A driver call that outlives d keeps
// running in the background; its late result is discarded.
func WithTimeout(r Readable, d time.Duration) Readable {
	if d <= 0 {
		return r
	}

	return ReadFunc(func(ctx context.Context) (float64, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type outcome struct {
			value float64
			err   error
		}
		done := make(chan outcome, 1)
		go func() {
			v, err := r.Read(ctx)
			done <- outcome{value: v, err: err}
		}()

		select {
		case o := <-done:
			return o.value, o.err
		case <-ctx.Done():
			return 0, errors.New().Wrap(ErrReadTimeout, ctx.Err())
		}
	})
}

// Online is a Driver that is always connected, for devices with no
// connection state of their own.
type Online struct{}

func (Online) Connected() bool { return true }

// Fixed returns a single-parameter device that always reads value.
func Fixed(name, parameter, unit string, value float64) Binding {
	return Binding{
		Name: name,
		Type: "fixed",
		Parameters: Table{
			parameter: {
				DisplayName: parameter,
				Unit:        unit,
				Reader: ReadFunc(func(context.Context) (float64, error) {
					return value, nil
				}),
			},
		},
		Driver: Online{},
	}
}
