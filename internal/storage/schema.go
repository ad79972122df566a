package storage

import (
	"database/sql"

	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
)

const (
	SchemaVersion = 1

	// The session and data point tables keep the column layout of databases
	// written by earlier tools so those files can be adopted in place.
	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS logging_sessions (
	       id               INTEGER PRIMARY KEY AUTOINCREMENT,
	       name             TEXT NOT NULL,
	       start_time       DATETIME NOT NULL,
	       end_time         DATETIME,
	       interval_seconds INTEGER NOT NULL,
	       status           TEXT NOT NULL,
	       metadata         TEXT
	   );
	   CREATE TABLE IF NOT EXISTS data_points (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       session_id  INTEGER NOT NULL,
	       timestamp   DATETIME NOT NULL,
	       device_name TEXT NOT NULL,
	       device_type TEXT NOT NULL,
	       parameter   TEXT NOT NULL,
	       value       REAL,
	       unit        TEXT,
	       FOREIGN KEY(session_id) REFERENCES logging_sessions(id)
	   );
	   CREATE INDEX IF NOT EXISTS idx_session_time
	       ON data_points(session_id, timestamp);`

	insertDataPointSQL = `
    INSERT INTO data_points (
        session_id, timestamp, device_name, device_type, parameter, value, unit
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	insertSessionSQL = `
    INSERT INTO logging_sessions (
        name, start_time, end_time, interval_seconds, status, metadata
    ) VALUES (?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
    SELECT id, name, start_time, end_time, interval_seconds, status, metadata
    FROM logging_sessions`

	selectRowSQL = `
    SELECT timestamp, device_name, parameter, value, unit
    FROM data_points`
)

// InitSchema creates the tables if needed and records the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	return initSchema(db, log, nil)
}

// initSchema is InitSchema with an optional data conversion that runs in the
// same transaction, before the version is recorded.
func initSchema(db *sql.DB, log logger.Logger, convert func(*sql.Tx) error) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "create_tables",
			Error: err.Error(),
		})
	}

	if convert != nil {
		if err := convert(tx); err != nil {
			return errFactory.Wrap(ErrSchemaMigrationFailed, err)
		}
	}

	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "record_version",
			Error: err.Error(),
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 when unversioned
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
