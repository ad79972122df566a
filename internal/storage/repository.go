package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// Repository is the sqlite-backed store of sessions and data points.
// Writes are serialized by mu; reads go straight to the pool.
type Repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	now    func() time.Time
	mu     sync.Mutex
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

func NewRepository(cfg Config, log logger.Logger, opts ...Option) (*Repository, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_busy_timeout=5000&_fk=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Session repository initialized")

	repo := &Repository{
		db:     db,
		logger: log,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(repo)
	}

	return repo, nil
}

func (r *Repository) CreateSession(ctx context.Context, name string, intervalSeconds int, metadata map[string]any) (int64, error) {
	errFactory := errors.New()

	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return 0, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, insertSessionSQL,
		name, formatTime(r.now()), nil, intervalSeconds, string(StatusRunning), string(encoded))
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	r.logger.Debug().Int64("session_id", id).Str("name", name).Msg("Session created")

	return id, nil
}

// UpdateSessionStatus sets status and, for StatusStopped, stamps end_time.
// Transitions are not checked here.
func (r *Repository) UpdateSessionStatus(ctx context.Context, id int64, status Status) error {
	errFactory := errors.New()

	if !status.Valid() {
		return errFactory.WithData(ErrInvalidStatus, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		res sql.Result
		err error
	)
	if status == StatusStopped {
		res, err = r.db.ExecContext(ctx,
			`UPDATE logging_sessions SET status = ?, end_time = ? WHERE id = ?`,
			string(status), formatTime(r.now()), id)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE logging_sessions SET status = ? WHERE id = ?`,
			string(status), id)
	}
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errFactory.WithData(ErrSessionNotFound, id)
	}

	return nil
}

// RecordDataPoint appends one data point.
func (r *Repository) RecordDataPoint(ctx context.Context, p DataPoint) error {
	errFactory := errors.New()

	if p.Timestamp.IsZero() {
		p.Timestamp = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, insertDataPointSQL,
		p.SessionID, formatTime(p.Timestamp), p.DeviceName, p.DeviceType, p.Parameter, p.Value, p.Unit)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

// GetSession returns one session.
func (r *Repository) GetSession(ctx context.Context, id int64) (*Session, error) {
	errFactory := errors.New()

	row := r.db.QueryRowContext(ctx, selectSessionSQL+` WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFactory.WithData(ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return s, nil
}

// GetAllSessions returns every session, newest first.
func (r *Repository) GetAllSessions(ctx context.Context) ([]Session, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectSessionSQL+` ORDER BY start_time DESC, id DESC`)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return sessions, nil
}

// GetSessionData returns the session's data points in ascending timestamp
// order. A non-empty parameter filters on it.
func (r *Repository) GetSessionData(ctx context.Context, id int64, parameter string) ([]Row, error) {
	if parameter != "" {
		return r.queryRows(ctx,
			selectRowSQL+` WHERE session_id = ? AND parameter = ? ORDER BY timestamp, id`,
			id, parameter)
	}

	return r.queryRows(ctx, selectRowSQL+` WHERE session_id = ? ORDER BY timestamp, id`, id)
}

// GetDataPoints returns the session's data points with every stored column,
// in the same order as GetSessionData.
func (r *Repository) GetDataPoints(ctx context.Context, id int64) ([]DataPoint, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, `
        SELECT session_id, timestamp, device_name, device_type, parameter, value, unit
        FROM data_points
        WHERE session_id = ? AND value IS NOT NULL
        ORDER BY timestamp, id
    `, id)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	points := make([]DataPoint, 0)
	for rows.Next() {
		var (
			p    DataPoint
			ts   sqlTime
			unit sql.NullString
		)
		if err := rows.Scan(&p.SessionID, &ts, &p.DeviceName, &p.DeviceType, &p.Parameter, &p.Value, &unit); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		p.Timestamp = ts.Time
		p.Unit = unit.String
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return points, nil
}

// GetRecentData returns data points captured in the last minutes minutes.
func (r *Repository) GetRecentData(ctx context.Context, id int64, minutes int) ([]Row, error) {
	cutoff := r.now().Add(-time.Duration(minutes) * time.Minute)

	return r.queryRows(ctx,
		selectRowSQL+` WHERE session_id = ? AND timestamp >= ? ORDER BY timestamp, id`,
		id, formatTime(cutoff))
}

// GetDataPointCount counts a session's data points. A missing session is an
// ErrSessionNotFound rather than zero.
func (r *Repository) GetDataPointCount(ctx context.Context, id int64) (int, error) {
	errFactory := errors.New()

	var count int
	err := r.db.QueryRowContext(ctx, `
        SELECT (SELECT COUNT(*) FROM data_points WHERE session_id = s.id)
        FROM logging_sessions s
        WHERE s.id = ?
    `, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errFactory.WithData(ErrSessionNotFound, id)
	}
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	return count, nil
}

// DeleteSession removes the data points and then the session, in one transaction.
func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer r.rollback(tx)

	if _, err := tx.ExecContext(ctx, `DELETE FROM data_points WHERE session_id = ?`, id); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM logging_sessions WHERE id = ?`, id)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errFactory.WithData(ErrSessionNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Info().Int64("session_id", id).Msg("Session deleted")

	return nil
}

// StopOrphanedSessions stops sessions left running or paused by a process
// that exited without stopping them. It returns how many were stopped.
func (r *Repository) StopOrphanedSessions(ctx context.Context) (int, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx,
		`UPDATE logging_sessions SET status = ?, end_time = ? WHERE status IN (?, ?)`,
		string(StatusStopped), formatTime(r.now()), string(StatusRunning), string(StatusPaused))
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errFactory.Wrap(ErrStorageAccess, err)
	}
	if n > 0 {
		r.logger.Warn().Int64("sessions", n).Msg("Stopped sessions left active by a previous run")
	}

	return int(n), nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Session repository closed gracefully")

	return nil
}

// insertDataPoints writes points inside tx with one prepared statement.
func (r *Repository) insertDataPoints(ctx context.Context, tx *sql.Tx, points []DataPoint) error {
	errFactory := errors.New()

	stmt, err := tx.PrepareContext(ctx, insertDataPointSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			p.SessionID, formatTime(p.Timestamp), p.DeviceName, p.DeviceType, p.Parameter, p.Value, p.Unit,
		); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	r.logger.Debug().Int("records", len(points)).Msg("Inserted data points")

	return nil
}

func (r *Repository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		r.logger.Error().Err(err).Msg("Failed to roll back transaction")
	}
}

func (r *Repository) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	result := make([]Row, 0)
	for rows.Next() {
		var (
			ts    sqlTime
			value sql.NullFloat64
			unit  sql.NullString
			row   Row
		)
		if err := rows.Scan(&ts, &row.DeviceName, &row.Parameter, &value, &unit); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		if !value.Valid {
			continue
		}
		row.Timestamp = ts.Time
		row.Value = value.Float64
		row.Unit = unit.String
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s        Session
		start    sqlTime
		end      sqlTime
		status   string
		metadata sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Name, &start, &end, &s.IntervalSeconds, &status, &metadata); err != nil {
		return nil, err
	}

	s.StartTime = start.Time
	if end.Valid {
		t := end.Time
		s.EndTime = &t
	}
	s.Status = Status(status)
	s.Metadata = map[string]any{}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &s.Metadata); err != nil {
			return nil, err
		}
	}

	return &s, nil
}
