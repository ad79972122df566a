package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/pid"
	"codeberg.org/mutker/benchlog/internal/rig"
	"codeberg.org/mutker/benchlog/internal/service"
	"codeberg.org/mutker/benchlog/internal/session"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		rigFile  string
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Log the rig until interrupted",
		Long: `Open every device of the rig file and log it as a new session until
SIGINT or SIGTERM, or until --duration has passed. SIGUSR1 pauses the
session and SIGUSR2 resumes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := rig.Load(rigFile)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), r, rig.DefaultOpeners(), duration)
		},
	}
	cmd.Flags().StringVarP(&rigFile, "rig", "r", "rig.yaml", "Rig file describing the devices to log")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")

	return cmd
}

func (a *app) run(ctx context.Context, r *rig.Rig, openers map[string]rig.Opener, duration time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := pid.Write(a.cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(a.cfg.PIDFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	bench, err := r.Open(openers, a.cfg.Interval, logger.Component("rig"))
	if err != nil {
		return err
	}
	defer bench.Close()

	log := logger.Component("collector")
	svc, err := service.Open(ctx, a.cfg, service.WithControllerOptions(
		session.WithAfterPoll(func(p session.PollResult) {
			log.Debug().
				Int64("session_id", p.SessionID).
				Int64("cycle", p.Cycle).
				Int("recorded", p.Recorded).
				Int("skipped", len(p.Readings)-p.Recorded).
				Msg("Poll cycle complete")
		}),
	))
	if err != nil {
		return err
	}
	defer closeService(svc, log)

	id, err := svc.StartSession(ctx, bench.Request)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if duration > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, duration)
		defer cancel()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)

	for running := true; running; {
		select {
		case <-runCtx.Done():
			running = false
		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				if err := svc.PauseSession(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to pause session")
				}
			case syscall.SIGUSR2:
				if err := svc.ResumeSession(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to resume session")
				}
			default:
				log.Info().Str("signal", sig.String()).Msg("Received termination signal")
				running = false
			}
		}
	}

	status, err := svc.SessionStatus(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read final status")
	} else {
		log.Info().
			Int64("session_id", id).
			Str("elapsed", status.ElapsedFormatted).
			Int64("polls", status.PollCount).
			Int("data_points", status.DataPoints).
			Msg("Session summary")
	}

	return svc.StopSession(context.Background())
}

// closeService stops any session left active and checkpoints the database.
func closeService(svc *service.Service, log logger.Logger) {
	if err := svc.Close(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to close session database")
	}
}
