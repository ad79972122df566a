package storage

import (
	"time"

	"codeberg.org/mutker/benchlog/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	defaultDBPath   = "/var/lib/benchlog/benchlog.db"
	defaultBackups  = "/var/lib/benchlog/backups"
)

type Config struct {
	DBPath          string
	BackupOnMigrate bool
	BackupDir       string

	// LegacyLocation is the zone an adopted unversioned database wrote its
	// naive timestamps in. Nil means time.Local.
	LegacyLocation *time.Location
}

func (c Config) legacyLocation() *time.Location {
	if c.LegacyLocation == nil {
		return time.Local
	}
	return c.LegacyLocation
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		BackupOnMigrate: true,
		BackupDir:       defaultBackups,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BackupOnMigrate && c.BackupDir == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "backup directory required when backup_on_migrate is set")
	}
	return nil
}
