// Command sessionctl operates on the session store directly, without going
// through the HTTP API. It reads the same environment as the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cvperfect/SessionService/internal/bootstrap"
	"github.com/cvperfect/SessionService/internal/extract"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/internal/services"
	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(loadApp).Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// appLoader builds an App. backend overrides STORAGE_BACKEND when set.
type appLoader func(ctx context.Context, backend string) (*bootstrap.App, error)

func loadApp(ctx context.Context, backend string) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Storage.Backend = strings.ToLower(backend)
	}
	// Only warnings reach the terminal; command output goes to stdout.
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return bootstrap.New(ctx, cfg)
}

type cli struct {
	load    appLoader
	output  string
	backend string
}

// withApp opens the store, runs fn and closes everything again.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := c.load(ctx, c.backend)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func newRootCmd(load appLoader) *cobra.Command {
	c := &cli{load: load}

	root := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Inspect and maintain CV sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.output, "output", "o", formatText, "output format: text|json|yaml")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "storage backend override: file|redis|postgres|sqlite")

	root.AddCommand(
		newGetCmd(c),
		newDeleteCmd(c),
		newListCmd(c),
		newRecoverCmd(c),
		newCleanupCmd(c),
		newMetricsCmd(c),
		newExtractCmd(c),
		newTokenCmd(c),
	)
	return root
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <session-id>",
		Short: "Print a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				session, err := app.Sessions.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, session, func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "id: %s\nplan: %s\ntemplate: %s\nemail: %s\ncv: %d bytes\nphoto: %t\ncreated: %s\nupdated: %s\n",
						session.SessionID, session.Plan, session.Template, session.Email, len(session.CVData),
						session.Photo != "", session.CreatedAt.Format(time.RFC3339), session.UpdatedAt.Format(time.RFC3339))
				})
			})
		},
	}
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.Sessions.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				sessions, err := app.Sessions.List(ctx)
				if err != nil {
					return err
				}
				sort.Slice(sessions, func(i, j int) bool {
					return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
				})
				summaries := make([]models.SessionSummary, 0, len(sessions))
				for _, s := range sessions {
					summaries = append(summaries, s.Summary())
				}

				return render(cmd.OutOrStdout(), c.output, summaries, func(w io.Writer) {
					if len(summaries) == 0 {
						_, _ = fmt.Fprintln(w, "no sessions")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "ID\tPLAN\tCV\tPHOTO\tUPDATED")
					for _, s := range summaries {
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%s\n", s.SessionID, s.Plan, s.CVLength, s.HasPhoto, s.UpdatedAt.Format(time.RFC3339))
					}
					_ = tw.Flush()
				})
			})
		},
	}
}

func newRecoverCmd(c *cli) *cobra.Command {
	var includeSession bool

	cmd := &cobra.Command{
		Use:   "recover <email>",
		Short: "Find the latest session for an email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				result, err := app.Recovery.RecoverByEmail(ctx, args[0], includeSession)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, result, func(w io.Writer) {
					_, _ = fmt.Fprintf(w, "session: %s\nplan: %s\ncreated: %s\n",
						result.SessionID, result.Plan, result.CreatedAt.Format(time.RFC3339))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&includeSession, "include-session", false, "include the full session in json/yaml output")
	return cmd
}

func newCleanupCmd(c *cli) *cobra.Command {
	var maxAgeHours float64
	var dryRun, backup bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete sessions older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				opts := services.CleanupOptions{
					MaxAge: app.Config.Retention.MaxAge,
					DryRun: dryRun,
					Backup: app.Config.Retention.BackupBeforeCleanup,
				}
				if cmd.Flags().Changed("max-age-hours") {
					maxAge, err := services.MaxAgeFromHours(maxAgeHours)
					if err != nil {
						return err
					}
					opts.MaxAge = maxAge
				}
				if cmd.Flags().Changed("backup") {
					opts.Backup = backup
				}

				report, err := app.Cleanup.Cleanup(ctx, opts)
				if err != nil && !errors.Is(err, services.ErrPartialCleanup) {
					return err
				}
				if !report.DryRun && report.Deleted+report.IndexesDeleted > 0 {
					app.Reporter.Invalidate(ctx)
				}

				if renderErr := render(cmd.OutOrStdout(), c.output, report, func(w io.Writer) {
					writeCleanupReport(w, report)
				}); renderErr != nil {
					return renderErr
				}
				return err
			})
		},
	}
	cmd.Flags().Float64Var(&maxAgeHours, "max-age-hours", 0, "retention window in hours (default from SESSION_MAX_AGE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	cmd.Flags().BoolVar(&backup, "backup", false, "archive sessions before deleting them")
	return cmd
}

func writeCleanupReport(w io.Writer, report *models.CleanupReport) {
	if report.DryRun {
		_, _ = fmt.Fprintf(w, "dry run: %d of %d sessions would be deleted (max age %.1fh)\n",
			report.Expired, report.Scanned, report.MaxAgeHours)
		for _, id := range report.Candidates {
			_, _ = fmt.Fprintf(w, "  %s\n", id)
		}
	} else {
		_, _ = fmt.Fprintf(w, "deleted %d of %d sessions, archived %d, %d remaining\n",
			report.Deleted, report.Scanned, report.Archived, report.Remaining)
	}
	_, _ = fmt.Fprintf(w, "email indexes: %d scanned, %d orphaned, %d deleted\n",
		report.IndexesScanned, report.IndexesOrphaned, report.IndexesDeleted)
	for _, e := range report.Errors {
		_, _ = fmt.Fprintf(w, "error: %s\n", e)
	}
}

func newMetricsCmd(c *cli) *cobra.Command {
	var fresh bool

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the session health snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if fresh {
					app.Reporter.Invalidate(ctx)
				}
				snapshot, err := app.Reporter.Snapshot(ctx)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, snapshot, func(w io.Writer) {
					writeSnapshot(w, snapshot)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "bypass the cached snapshot")
	return cmd
}

func writeSnapshot(w io.Writer, s *models.MetricsSnapshot) {
	_, _ = fmt.Fprintf(w, "status: %s (score %.2f)\n", s.Health.Status, s.Health.Score)
	_, _ = fmt.Fprintf(w, "sessions: %d total, %d active, %d expired, %d with photo\n",
		s.Sessions.Total, s.Sessions.Active, s.Sessions.Expired, s.Sessions.WithPhoto)
	_, _ = fmt.Fprintf(w, "age: <1h %d, <6h %d, <24h %d, <48h %d, older %d\n",
		s.Sessions.ByAge.Last1Hour, s.Sessions.ByAge.Last6Hours, s.Sessions.ByAge.Last24Hours,
		s.Sessions.ByAge.Last48Hours, s.Sessions.ByAge.Older)
	_, _ = fmt.Fprintf(w, "email indexes: %d total, %d valid, %d orphaned\n",
		s.EmailIndexes.Total, s.EmailIndexes.Valid, s.EmailIndexes.Orphaned)
	for _, r := range s.Recommendations {
		_, _ = fmt.Fprintf(w, "- %s\n", r)
	}
}

func newExtractCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text extracted from a CV file (txt, pdf, docx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text, err := extract.Text(extract.DetectType(args[0], "", data), data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := struct {
				CVData string `json:"cvData"`
				Length int    `json:"length"`
			}{text, len(text)}
			return render(cmd.OutOrStdout(), c.output, out, func(w io.Writer) {
				_, _ = fmt.Fprintln(w, text)
			})
		},
	}
}

func newTokenCmd(c *cli) *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Admin API tokens"}

	var operator string
	issue := &cobra.Command{
		Use:   "issue --operator <name>",
		Short: "Issue an admin token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(operator) == "" {
				return fmt.Errorf("--operator is required")
			}
			return c.withApp(cmd, func(_ context.Context, app *bootstrap.App) error {
				issued, err := app.JWT.IssueAdminToken(operator)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), c.output, issued, func(w io.Writer) {
					_, _ = fmt.Fprintln(w, issued.Token)
				})
			})
		},
	}
	issue.Flags().StringVar(&operator, "operator", "", "operator name recorded in the token")

	revoke := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke an admin token before it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if err := app.JWT.RevokeToken(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token revoked")
				return nil
			})
		},
	}

	token.AddCommand(issue, revoke)
	return token
}
