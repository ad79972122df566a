package session

import (
	"context"
	"time"

	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/storage"
)

// loop polls, then waits one interval, until ctx is cancelled. While paused
// the poll is skipped but the wait is not.
func (c *Controller) loop(ctx context.Context, r *run) {
	defer close(r.done)

	interval := time.Duration(r.intervalSeconds) * c.unit

	for {
		if !r.paused.Load() {
			c.poll(ctx, r)
		}

		if ctx.Err() != nil {
			return
		}

		if !c.sleep(ctx, interval) {
			return
		}
	}
}

// poll runs one cycle. A failed read or write skips only that parameter. A
// cycle cut short by cancellation is not counted.
func (c *Controller) poll(ctx context.Context, r *run) {
	result := PollResult{SessionID: r.id}

	for _, t := range r.targets {
		for _, name := range t.params {
			if ctx.Err() != nil {
				return
			}

			param := t.binding.Parameters[name]
			res := t.binding.Read(ctx, name)
			if ctx.Err() != nil {
				return
			}

			reading := Reading{
				Device:    t.binding.Name,
				Parameter: name,
				Unit:      param.Unit,
				Value:     res.Value,
				Err:       res.Err,
			}

			if !res.OK() {
				c.logger.Debug().
					Str("device", t.binding.Name).
					Str("parameter", name).
					Str("code", string(errors.CodeOf(res.Err))).
					Err(res.Err).
					Msg("Read skipped")
				result.Readings = append(result.Readings, reading)
				continue
			}

			err := c.store.RecordDataPoint(ctx, storage.DataPoint{
				SessionID:  r.id,
				Timestamp:  c.now(),
				DeviceName: t.binding.Name,
				DeviceType: t.binding.Type,
				Parameter:  name,
				Value:      res.Value,
				Unit:       param.Unit,
			})
			if err != nil {
				c.logger.Error().
					Int64("session_id", r.id).
					Str("device", t.binding.Name).
					Str("parameter", name).
					Err(err).
					Msg("Failed to record data point")
				reading.Err = err
			} else {
				r.points.Add(1)
				result.Recorded++
			}

			result.Readings = append(result.Readings, reading)
		}
	}

	now := c.now()
	r.lastPoll.Store(&now)
	result.Cycle = r.pollCount.Add(1)
	result.Time = now

	if c.afterPoll != nil {
		c.afterPoll(result)
	}
}
