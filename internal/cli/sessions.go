package cli

import (
	"context"
	"fmt"

	"codeberg.org/mutker/benchlog/internal/errors"
	"codeberg.org/mutker/benchlog/internal/service"
	"codeberg.org/mutker/benchlog/internal/storage"
	"github.com/spf13/cobra"
)

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List sessions, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				sessions, err := svc.AllSessions(ctx)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
					return nil
				}

				counts := make(map[int64]int, len(sessions))
				for _, s := range sessions {
					if counts[s.ID], err = svc.DataPointCount(ctx, s.ID); err != nil {
						return err
					}
				}

				renderSessions(cmd.OutOrStdout(), sessions, counts)
				return nil
			})
		},
	}
}

func newDataCmd(a *app) *cobra.Command {
	var parameter string

	cmd := &cobra.Command{
		Use:   "data <session-id>",
		Short: "Show the readings of a session in time order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return a.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if _, err := svc.Session(ctx, id); err != nil {
					return err
				}
				rows, err := svc.SessionData(ctx, id, parameter)
				if err != nil {
					return err
				}
				renderRows(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&parameter, "parameter", "p", "", "Only show this parameter")

	return cmd
}

func newRecentCmd(a *app) *cobra.Command {
	var minutes int

	cmd := &cobra.Command{
		Use:   "recent <session-id>",
		Short: "Show the readings of the last minutes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return a.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				rows, err := svc.RecentData(ctx, id, minutes)
				if err != nil {
					return err
				}
				renderRows(cmd.OutOrStdout(), rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "Window in minutes (default from recent_minutes)")

	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <session-id> <file>",
		Short: "Export a session to CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return a.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				if err := svc.ExportSessionToCSV(ctx, id, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported session %d to %s\n", id, args[1])
				return nil
			})
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a session CSV as a new stopped session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				id, err := svc.ImportSessionFromCSV(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s as session %d\n", args[0], id)
				return nil
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its readings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return a.withService(cmd, func(ctx context.Context, svc *service.Service) error {
				s, err := svc.Session(ctx, id)
				if err != nil {
					return err
				}
				// A collector in another process owns sessions still marked live.
				if s.Status != storage.StatusStopped {
					return errors.New().WithData(service.ErrDeleteActiveSession, id)
				}
				if err := svc.DeleteSession(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %d\n", id)
				return nil
			})
		},
	}
}
