package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/app"
	"github.com/helpdesk-labs/triage-service/internal/auth"
	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/domain"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/queue"
)

var rootCmd = &cobra.Command{
	Use:   "triagectl",
	Short: "Operate the ticket triage service",
	Long: `triagectl talks to the same Postgres and Redis as the API and worker.
It enqueues triage jobs, inspects and requeues dead letters, seeds the
knowledge base from YAML, edits the triage settings and issues dev tokens.`,
	SilenceUsage: true,
}

func main() {
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("verbose", false, "log service output to stderr")
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(
		enqueueCmd(),
		queueCmd(),
		seedKBCmd(),
		settingsCmd(),
		tokenCmd(),
	)
}

func enqueueCmd() *cobra.Command {
	var traceID string
	cmd := &cobra.Command{
		Use:   "enqueue <ticket-id>",
		Short: "Enqueue a triage job for an existing ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if traceID == "" {
					traceID = uuid.NewString()
				}
				id, err := a.Queue.Enqueue(ctx, domain.TriageJob{TicketID: args[0], TraceID: traceID})
				if err != nil {
					return err
				}
				return printResult(map[string]string{"jobId": id, "ticketId": args[0], "traceId": traceID})
			})
		},
	}
	cmd.Flags().StringVar(&traceID, "trace-id", "", "trace id (generated if omitted)")
	return cmd
}

func queueCmd() *cobra.Command {
	q := &cobra.Command{Use: "queue", Short: "Inspect and repair the triage queue"}
	q.AddCommand(queueStatsCmd(), queueDeadCmd(), queueJobCmd(), queueRequeueCmd(), queueRecoverCmd())
	return q
}

func queueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count jobs per list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stats, err := a.Queue.Stats(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Ready", "Running", "Delayed", "Dead"})
				tw.AppendRow(table.Row{stats.Ready, stats.Running, stats.Delayed, stats.Dead})
				tw.Render()
				return nil
			})
		},
	}
}

func queueDeadCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List dead-lettered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				jobs, err := a.Queue.DeadLetters(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				printJobs(jobs)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum jobs to list")
	return cmd
}

func queueJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				job, err := a.Queue.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(job)
				}
				printJobs([]queue.Job{*job})
				return nil
			})
		},
	}
}

func queueRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>...",
		Short: "Move dead jobs back to ready with attempts reset",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var errs []error
				for _, id := range args {
					if err := a.Queue.Requeue(ctx, id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Println("requeued", id)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func queueRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Return jobs left running by a crashed worker to ready",
		Long:  "Only run this while no worker is processing the queue.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Queue.RecoverInFlight(ctx)
				if err != nil {
					return err
				}
				return printResult(map[string]int{"recovered": n})
			})
		},
	}
}

func seedKBCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed-kb",
		Short: "Upsert knowledge-base articles from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			articles, err := loadSeed(f)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Tags"})
				for i := range articles {
					if err := a.Repos.Articles.Upsert(ctx, &articles[i]); err != nil {
						return fmt.Errorf("upsert %q: %w", articles[i].Title, err)
					}
					tw.AppendRow(table.Row{articles[i].ID, articles[i].Title, articles[i].Status, strings.Join(articles[i].Tags, ",")})
				}
				if viper.GetBool("json") {
					return printJSON(articles)
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "seed/kb.yaml", "path to YAML seed file")
	return cmd
}

func settingsCmd() *cobra.Command {
	s := &cobra.Command{Use: "settings", Short: "Read or replace the triage settings"}
	s.AddCommand(settingsGetCmd(), settingsSetCmd())
	return s
}

func settingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the triage settings in effect",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg, err := a.Settings.Current(ctx)
				if err != nil {
					return err
				}
				return printSettings(cfg)
			})
		},
	}
}

func settingsSetCmd() *cobra.Command {
	var (
		autoClose bool
		threshold float64
		slaHours  int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the triage settings; unspecified flags keep their values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfg, err := a.Settings.Current(ctx)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("auto-close") {
					cfg.AutoCloseEnabled = autoClose
				}
				if cmd.Flags().Changed("threshold") {
					cfg.ConfidenceThreshold = threshold
				}
				if cmd.Flags().Changed("sla-hours") {
					cfg.SLAHours = slaHours
				}
				updated, err := a.Settings.Replace(ctx, cfg)
				if err != nil {
					return err
				}
				return printSettings(updated)
			})
		},
	}
	cmd.Flags().BoolVar(&autoClose, "auto-close", true, "enable auto-close")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.78, "confidence threshold in [0,1]")
	cmd.Flags().IntVar(&slaHours, "sla-hours", 24, "hours until an escalated ticket breaches SLA")
	return cmd
}

func tokenCmd() *cobra.Command {
	t := &cobra.Command{Use: "token", Short: "Issue bearer tokens for local testing"}
	var (
		subject string
		role    string
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if subject == "" {
				subject = uuid.NewString()
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
			token, expires, err := tokens.GenerateToken(subject, r)
			if err != nil {
				return err
			}
			return printResult(map[string]string{
				"subject":   subject,
				"role":      string(r),
				"token":     token,
				"expiresAt": expires.Format(time.RFC3339),
			})
		},
	}
	issue.Flags().StringVar(&subject, "subject", "", "subject id (generated if omitted)")
	issue.Flags().StringVar(&role, "role", string(domain.RoleUser), "role: user, agent or admin")
	t.AddCommand(issue)
	return t
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := zap.NewNop()
	if viper.GetBool("verbose") {
		if logger, err = observability.NewLogger(cfg.Logger); err != nil {
			return err
		}
	}
	defer logger.Sync() //nolint:errcheck
	if cfg.Queue.Driver == app.QueueDriverMemory {
		fmt.Fprintln(os.Stderr, "warning: QUEUE_DRIVER=memory; queue commands only see this process")
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJobs(jobs []queue.Job) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Job", "Ticket", "Trace", "State", "Attempts", "Last Error", "Updated"})
	for _, j := range jobs {
		tw.AppendRow(table.Row{
			j.ID, j.Payload.TicketID, j.Payload.TraceID, j.State,
			fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts),
			truncate(j.LastError, 60), j.UpdatedAt.Format(time.RFC3339),
		})
	}
	tw.Render()
}

func printSettings(cfg domain.TriageConfig) error {
	if viper.GetBool("json") {
		return printJSON(cfg)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Auto Close", "Threshold", "SLA Hours"})
	tw.AppendRow(table.Row{cfg.AutoCloseEnabled, cfg.ConfidenceThreshold, cfg.SLAHours})
	tw.Render()
	return nil
}

func printResult(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
