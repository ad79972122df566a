// Package service is the in-process surface of benchlog: session lifecycle,
// queries, CSV export and import, and deletion guarded against the active
// session.
package service

import (
	"context"

	"codeberg.org/mutker/benchlog/internal/config"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/session"
	"codeberg.org/mutker/benchlog/internal/storage"
)

type Service struct {
	repo          *storage.Repository
	ctrl          *session.Controller
	logger        logger.Logger
	recentMinutes int
}

type options struct {
	recover       bool
	recentMinutes int
	controller    []session.Option
}

type Option func(*options)

// WithoutRecovery leaves sessions marked running or paused untouched. Use it
// for processes that only read while a collector may own the session.
func WithoutRecovery() Option {
	return func(o *options) {
		o.recover = false
	}
}

// WithRecentMinutes sets the window RecentData uses when asked for zero minutes.
func WithRecentMinutes(m int) Option {
	return func(o *options) {
		o.recentMinutes = m
	}
}

// WithControllerOptions passes opts to the session controller.
func WithControllerOptions(opts ...session.Option) Option {
	return func(o *options) {
		o.controller = append(o.controller, opts...)
	}
}

// New builds a Service over repo. Unless WithoutRecovery is given, sessions
// a previous process left running or paused are stopped first, so the
// single active session can only be one this Service starts.
func New(ctx context.Context, repo *storage.Repository, log logger.Logger, opts ...Option) (*Service, error) {
	o := &options{recover: true, recentMinutes: config.DefaultRecentMinutes}
	for _, opt := range opts {
		opt(o)
	}

	if o.recover {
		if _, err := repo.StopOrphanedSessions(ctx); err != nil {
			return nil, errors.New().Wrap(ErrRecoveryFailed, err)
		}
	}

	return &Service{
		repo:          repo,
		ctrl:          session.NewController(repo, log, o.controller...),
		logger:        log,
		recentMinutes: o.recentMinutes,
	}, nil
}

// Open opens the configured database and builds a Service over it. The
// Service owns the repository and closes it in Close.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	loc, err := cfg.LegacyLocation()
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	repo, err := storage.NewRepository(storage.Config{
		DBPath:          cfg.DBPath,
		BackupOnMigrate: cfg.BackupOnMigrate,
		BackupDir:       cfg.BackupDir,
		LegacyLocation:  loc,
	}, logger.Component("storage"))
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithRecentMinutes(cfg.RecentMinutes),
		WithControllerOptions(
			session.WithStopTimeout(cfg.StopTimeout),
			session.WithReadTimeout(cfg.ReadTimeout),
		),
	}

	svc, err := New(ctx, repo, logger.Component("session"), append(base, opts...)...)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return svc, nil
}

func (s *Service) StartSession(ctx context.Context, req session.Request) (int64, error) {
	return s.ctrl.Start(ctx, req)
}

func (s *Service) StopSession(ctx context.Context) error {
	return s.ctrl.Stop(ctx)
}

func (s *Service) PauseSession(ctx context.Context) error {
	return s.ctrl.Pause(ctx)
}

func (s *Service) ResumeSession(ctx context.Context) error {
	return s.ctrl.Resume(ctx)
}

func (s *Service) SessionStatus(ctx context.Context) (session.Status, error) {
	return s.ctrl.Status(ctx)
}

// ActiveSessionID returns the id of the session this Service is logging, if any.
func (s *Service) ActiveSessionID() (int64, bool) {
	return s.ctrl.ActiveID()
}

func (s *Service) AllSessions(ctx context.Context) ([]storage.Session, error) {
	return s.repo.GetAllSessions(ctx)
}

func (s *Service) Session(ctx context.Context, id int64) (*storage.Session, error) {
	return s.repo.GetSession(ctx, id)
}

// SessionData returns the session's rows in time order, optionally for one parameter.
func (s *Service) SessionData(ctx context.Context, id int64, parameter string) ([]storage.Row, error) {
	return s.repo.GetSessionData(ctx, id, parameter)
}

// RecentData returns the rows of the last minutes, for live charts. Zero
// minutes uses the configured window.
func (s *Service) RecentData(ctx context.Context, id int64, minutes int) ([]storage.Row, error) {
	if minutes <= 0 {
		minutes = s.recentMinutes
	}
	return s.repo.GetRecentData(ctx, id, minutes)
}

func (s *Service) DataPointCount(ctx context.Context, id int64) (int, error) {
	return s.repo.GetDataPointCount(ctx, id)
}

func (s *Service) ExportSessionToCSV(ctx context.Context, id int64, path string) error {
	return s.repo.ExportCSV(ctx, id, path)
}

func (s *Service) ImportSessionFromCSV(ctx context.Context, path string) (int64, error) {
	return s.repo.ImportCSV(ctx, path)
}

// DeleteSession removes a session and its data. The active session cannot
// be deleted.
func (s *Service) DeleteSession(ctx context.Context, id int64) error {
	if active, ok := s.ctrl.ActiveID(); ok && active == id {
		return errors.New().WithData(ErrDeleteActiveSession, id)
	}
	return s.repo.DeleteSession(ctx, id)
}

// Close stops any active session, then closes the repository.
func (s *Service) Close(ctx context.Context) error {
	errFactory := errors.New()

	stopErr := s.ctrl.Stop(ctx)
	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}
	if stopErr != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, stopErr)
	}

	return nil
}
