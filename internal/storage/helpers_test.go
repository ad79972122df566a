package storage_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/storage"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

func testConfig(t *testing.T) storage.Config {
	t.Helper()
	dir := t.TempDir()
	return storage.Config{
		DBPath:    filepath.Join(dir, "db", "benchlog.db"),
		BackupDir: filepath.Join(dir, "backups"),
	}
}

func newTestRepo(t *testing.T, clock *testClock) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(testConfig(t), logger.Nop(), storage.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}
