// Package cli is the benchlog command tree.
package cli

import (
	"context"
	"fmt"
	"strconv"

	"codeberg.org/mutker/benchlog/internal/config"
	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/logger"
	"codeberg.org/mutker/benchlog/internal/service"
	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// app carries what PersistentPreRunE loaded to the subcommands.
type app struct {
	configFile string
	cfg        *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "benchlog",
		Short: "Log lab instrument readings into sessions",
		Long: `benchlog polls the instruments described in a rig file at a fixed
interval and stores every reading in a local sqlite database, one session
per run. Sessions can be listed, queried, exported to CSV, imported and
deleted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts := []config.Option{config.WithFlags(cmd.Flags())}
			if a.configFile != "" {
				opts = append(opts, config.WithConfigFile(a.configFile))
			}

			cfg, err := config.Load(opts...)
			if err != nil {
				return err
			}
			a.cfg = cfg

			logger.Init(cfg.LogLevel, logger.IsService())
			logger.Debug().Str("db_path", cfg.DBPath).Msg("Config loaded")

			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to a benchlog.toml config file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCmd(a),
		newSessionsCmd(a),
		newDataCmd(a),
		newRecentCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newDeleteCmd(a),
		newVersionCmd(),
	)

	return root
}

// Execute runs the command tree.
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "benchlog %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}

// openReader opens the database for a command that must not disturb a
// collector running in another process.
func (a *app) openReader(ctx context.Context) (*service.Service, error) {
	return service.Open(ctx, a.cfg, service.WithoutRecovery())
}

// withService opens the database, runs fn and closes it again.
func (a *app) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := a.openReader(ctx)
	if err != nil {
		return err
	}

	runErr := fn(ctx, svc)
	if err := svc.Close(ctx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New().WithData(errors.ErrInvalidArgument, struct {
			Arg   string
			Error string
		}{
			Arg:   s,
			Error: "session id must be a positive integer",
		})
	}
	return id, nil
}
