package storage_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/benchlog/internal/storage"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var csvText = rapid.StringOfN(rapid.RuneFrom([]rune("abcXYZ019 _-,\"°µ.")), 1, 12, -1)

func TestCSVRoundTrip(t *testing.T) {
	clock := newClock()
	repo := newTestRepo(t, clock)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		name := csvText.Draw(rt, "name")
		interval := rapid.IntRange(1, 3600).Draw(rt, "interval")

		id, err := repo.CreateSession(ctx, name, interval, nil)
		require.NoError(rt, err)

		n := rapid.IntRange(0, 20).Draw(rt, "points")
		base := clock.Now()
		for i := 0; i < n; i++ {
			offset := time.Duration(rapid.Int64Range(0, int64(time.Hour)/1000).Draw(rt, "offset_us")) * time.Microsecond
			require.NoError(rt, repo.RecordDataPoint(ctx, storage.DataPoint{
				SessionID:  id,
				Timestamp:  base.Add(offset),
				DeviceName: csvText.Draw(rt, "device"),
				DeviceType: "fixed",
				Parameter:  csvText.Draw(rt, "parameter"),
				Value:      rapid.Float64Range(-1e20, 1e20).Draw(rt, "value"),
				Unit:       csvText.Draw(rt, "unit"),
			}))
		}

		var buf bytes.Buffer
		require.NoError(rt, repo.WriteCSV(ctx, id, &buf))

		imported, err := repo.ReadCSV(ctx, &buf)
		require.NoError(rt, err)

		orig, err := repo.GetSession(ctx, id)
		require.NoError(rt, err)
		got, err := repo.GetSession(ctx, imported)
		require.NoError(rt, err)
		require.Equal(rt, orig.Name, got.Name)
		require.Equal(rt, orig.IntervalSeconds, got.IntervalSeconds)
		require.True(rt, orig.StartTime.Equal(got.StartTime))
		require.Nil(rt, got.EndTime)

		want, err := repo.GetSessionData(ctx, id, "")
		require.NoError(rt, err)
		have, err := repo.GetSessionData(ctx, imported, "")
		require.NoError(rt, err)
		require.Len(rt, have, len(want))
		for i := range want {
			require.True(rt, want[i].Timestamp.Equal(have[i].Timestamp), "row %d timestamp", i)
			require.Equal(rt, want[i].DeviceName, have[i].DeviceName)
			require.Equal(rt, want[i].Parameter, have[i].Parameter)
			require.Equal(rt, want[i].Value, have[i].Value) //nolint:testifylint // exact round trip
			require.Equal(rt, want[i].Unit, have[i].Unit)
		}
	})
}
