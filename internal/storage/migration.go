package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
)

func backupDatabase(db *sql.DB, dir, label string, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  dir,
			Error: err.Error(),
		})
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(dir, fmt.Sprintf("benchlog_%s_%s.db", label, timestamp))

	// VACUUM INTO requires no active transaction
	quoted := strings.ReplaceAll(backupPath, "'", "''")
	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return "", errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", backupPath).
		Str("label", label).
		Msg("Database backup created")

	return backupPath, nil
}

// ValidateAndUpdateSchema brings db to SchemaVersion. An unversioned database
// that already holds session tables was written by an earlier tool; it is
// backed up (when enabled) and adopted, with its local wall clock timestamps
// rewritten as UTC. A newer schema is refused.
func ValidateAndUpdateSchema(db *sql.DB, cfg Config, log logger.Logger) error {
	errFactory := errors.New()

	version, err := GetSchemaVersion(db)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get schema version")
		return errFactory.Wrap(ErrSchemaValidationFailed, err)
	}

	log.Debug().
		Int("version", version).
		Bool("init_db", version == 0).
		Msg("Current schema version")

	switch {
	case version == SchemaVersion:
		log.Debug().
			Int("version", version).
			Msg("Schema version is current")
		return nil
	case version > SchemaVersion:
		return errFactory.WithData(ErrSchemaTooNew, struct {
			Found     int
			Supported int
		}{
			Found:     version,
			Supported: SchemaVersion,
		})
	}

	legacy, err := TableExists(db, "logging_sessions")
	if err != nil {
		return err
	}

	if legacy {
		log.Info().Msg("Adopting unversioned session database")
		if cfg.BackupOnMigrate {
			if _, err := backupDatabase(db, cfg.BackupDir, "legacy", log); err != nil {
				return err
			}
		}

		loc := cfg.legacyLocation()
		return initSchema(db, log, func(tx *sql.Tx) error {
			return adoptLegacyTimes(tx, loc, log)
		})
	}

	return InitSchema(db, log)
}

// legacyTimeColumns are the timestamp columns an earlier tool filled with
// naive local time.
var legacyTimeColumns = []struct {
	table  string
	column string
}{
	{"logging_sessions", "start_time"},
	{"logging_sessions", "end_time"},
	{"data_points", "timestamp"},
}

// adoptLegacyTimes rewrites naive timestamps, read as wall clock time in loc,
// as UTC in TimeLayout. Values that already carry a zone are left alone.
func adoptLegacyTimes(tx *sql.Tx, loc *time.Location, log logger.Logger) error {
	for _, c := range legacyTimeColumns {
		n, err := convertTimeColumn(tx, c.table, c.column, loc)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", c.table, c.column, err)
		}
		log.Debug().
			Str("table", c.table).
			Str("column", c.column).
			Str("zone", loc.String()).
			Int("rows", n).
			Msg("Converted legacy timestamps")
	}
	return nil
}

func convertTimeColumn(tx *sql.Tx, table, column string, loc *time.Location) (int, error) {
	type change struct {
		id    int64
		value string
	}

	rows, err := tx.Query(fmt.Sprintf(
		"SELECT id, CAST(%s AS TEXT) FROM %s WHERE %s IS NOT NULL", column, table, column))
	if err != nil {
		return 0, err
	}

	var changes []change
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		t, ok := parseNaive(raw, loc)
		if !ok {
			continue
		}
		if value := formatTime(t); value != raw {
			changes = append(changes, change{id: id, value: value})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(changes) == 0 {
		return 0, nil
	}

	stmt, err := tx.Prepare(fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", table, column))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, c := range changes {
		if _, err := stmt.Exec(c.value, c.id); err != nil {
			return 0, err
		}
	}

	return len(changes), nil
}
