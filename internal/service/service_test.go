package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/benchlog/internal/config"
	"codeberg.org/mutker/benchlog/internal/device"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/service"
	"codeberg.org/mutker/benchlog/internal/session"
	"codeberg.org/mutker/benchlog/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func waitForever(ctx context.Context, _ time.Duration) bool {
	<-ctx.Done()
	return false
}

func storageConfig(t *testing.T) storage.Config {
	t.Helper()
	dir := t.TempDir()
	return storage.Config{
		DBPath:    filepath.Join(dir, "benchlog.db"),
		BackupDir: filepath.Join(dir, "backups"),
	}
}

type fixture struct {
	clock *testClock
	repo  *storage.Repository
	svc   *service.Service
	polls chan session.PollResult
}

func newFixture(t *testing.T, cfg storage.Config, opts ...service.Option) *fixture {
	t.Helper()
	f := &fixture{
		clock: &testClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		polls: make(chan session.PollResult, 16),
	}

	repo, err := storage.NewRepository(cfg, logger.Nop(), storage.WithClock(f.clock.Now))
	require.NoError(t, err)
	f.repo = repo

	base := []service.Option{service.WithControllerOptions(
		session.WithClock(f.clock.Now),
		session.WithSleeper(waitForever),
		session.WithAfterPoll(func(p session.PollResult) { f.polls <- p }),
	)}
	f.svc, err = service.New(context.Background(), repo, logger.Nop(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { f.svc.Close(context.Background()) })

	return f
}

func (f *fixture) waitPoll(t *testing.T) {
	t.Helper()
	select {
	case <-f.polls:
	case <-time.After(5 * time.Second):
		t.Fatal("no poll cycle completed")
	}
}

func request(name string) session.Request {
	return session.Request{
		Name:            name,
		Devices:         []device.Binding{device.Fixed("Thermo", "temperature", "°C", 21.5)},
		Parameters:      map[string][]string{"Thermo": {"temperature"}},
		IntervalSeconds: 1,
		Metadata:        map[string]any{"operator": "lab"},
	}
}

func TestDeleteGuard(t *testing.T) {
	f := newFixture(t, storageConfig(t))
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, request("Run1"))
	require.NoError(t, err)
	f.waitPoll(t)

	err = f.svc.DeleteSession(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, service.ErrDeleteActiveSession))

	require.NoError(t, f.svc.StopSession(ctx))
	require.NoError(t, f.svc.DeleteSession(ctx, id))

	sessions, err := f.svc.AllSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = f.svc.DataPointCount(ctx, id)
	assert.True(t, errors.HasCode(err, storage.ErrSessionNotFound))
}

func TestDeleteOtherSessionWhileActive(t *testing.T) {
	f := newFixture(t, storageConfig(t))
	ctx := context.Background()

	first, err := f.svc.StartSession(ctx, request("first"))
	require.NoError(t, err)
	f.waitPoll(t)
	require.NoError(t, f.svc.StopSession(ctx))

	second, err := f.svc.StartSession(ctx, request("second"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(ctx, first))

	active, ok := f.svc.ActiveSessionID()
	require.True(t, ok)
	assert.Equal(t, second, active)
}

func TestLifecycleThroughService(t *testing.T) {
	f := newFixture(t, storageConfig(t))
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, request("Run1"))
	require.NoError(t, err)
	f.waitPoll(t)

	require.NoError(t, f.svc.PauseSession(ctx))
	status, err := f.svc.SessionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Paused, status.State)
	assert.Equal(t, 1, status.DataPoints)

	require.NoError(t, f.svc.ResumeSession(ctx))
	require.NoError(t, f.svc.StopSession(ctx))

	s, err := f.svc.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusStopped, s.Status)
	assert.Equal(t, map[string]any{"operator": "lab"}, s.Metadata)

	rows, err := f.svc.SessionData(ctx, id, "temperature")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 21.5, rows[0].Value, 0)
}

func TestRecentDataDefaultWindow(t *testing.T) {
	f := newFixture(t, storageConfig(t), service.WithRecentMinutes(5))
	ctx := context.Background()

	id, err := f.repo.CreateSession(ctx, "window", 1, nil)
	require.NoError(t, err)

	base := f.clock.Now()
	for _, age := range []time.Duration{20 * time.Minute, 6 * time.Minute, 2 * time.Minute} {
		require.NoError(t, f.repo.RecordDataPoint(ctx, storage.DataPoint{
			SessionID: id, Timestamp: base.Add(-age), DeviceName: "Thermo", DeviceType: "fixed",
			Parameter: "temperature", Value: age.Minutes(), Unit: "°C",
		}))
	}

	rows, err := f.svc.RecentData(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 2.0, rows[0].Value, 0)

	rows, err = f.svc.RecentData(ctx, id, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExportImportThroughService(t *testing.T) {
	f := newFixture(t, storageConfig(t))
	ctx := context.Background()

	id, err := f.svc.StartSession(ctx, request("Run1"))
	require.NoError(t, err)
	f.waitPoll(t)
	require.NoError(t, f.svc.StopSession(ctx))

	path := filepath.Join(t.TempDir(), "run1.csv")
	require.NoError(t, f.svc.ExportSessionToCSV(ctx, id, path))

	imported, err := f.svc.ImportSessionFromCSV(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, id, imported)

	points, err := f.repo.GetDataPoints(ctx, imported)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, storage.ImportedDeviceType, points[0].DeviceType)
	assert.Equal(t, "Thermo", points[0].DeviceName)
}

func TestOrphanRecovery(t *testing.T) {
	cfg := storageConfig(t)
	ctx := context.Background()

	// A collector that died mid-session leaves its row running.
	crashed, err := storage.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	orphan, err := crashed.CreateSession(ctx, "crashed", 5, nil)
	require.NoError(t, err)
	require.NoError(t, crashed.Close())

	t.Run("reader leaves it alone", func(t *testing.T) {
		repo, err := storage.NewRepository(cfg, logger.Nop())
		require.NoError(t, err)
		defer repo.Close()

		_, err = service.New(ctx, repo, logger.Nop(), service.WithoutRecovery())
		require.NoError(t, err)

		s, err := repo.GetSession(ctx, orphan)
		require.NoError(t, err)
		assert.Equal(t, storage.StatusRunning, s.Status)
	})

	t.Run("collector stops it", func(t *testing.T) {
		f := newFixture(t, cfg)

		s, err := f.svc.Session(ctx, orphan)
		require.NoError(t, err)
		assert.Equal(t, storage.StatusStopped, s.Status)
		require.NotNil(t, s.EndTime)

		_, active := f.svc.ActiveSessionID()
		assert.False(t, active)
	})
}

func TestOpenFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DBPath:          filepath.Join(dir, "benchlog.db"),
		Interval:        1,
		LogLevel:        "error",
		StopTimeout:     time.Second,
		RecentMinutes:   10,
		BackupOnMigrate: true,
		BackupDir:       filepath.Join(dir, "backups"),
	}
	ctx := context.Background()

	svc, err := service.Open(ctx, cfg)
	require.NoError(t, err)

	id, err := svc.StartSession(ctx, request("opened"))
	require.NoError(t, err)
	require.NoError(t, svc.Close(ctx))

	svc, err = service.Open(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close(ctx)

	s, err := svc.Session(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusStopped, s.Status)
}
