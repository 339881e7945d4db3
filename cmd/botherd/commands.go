package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mkarren/botherd"
	"github.com/mkarren/botherd/internal/env"
	"github.com/mkarren/botherd/internal/history"
	"github.com/mkarren/botherd/internal/logger"
	"github.com/spf13/cobra"
)

func newRunCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Seed data stores and supervise all configured workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(flags.LogLevel)

			fc, err := botherd.LoadConfig(flags.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			dataDir := fc.ResolvedDataDir()
			if err := os.MkdirAll(dataDir, 0o750); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Failed seeding is logged and skipped; workers run on empty stores.
			_ = botherd.EnsureSeeded(ctx, fc.SeedArtifacts())

			globalEnv, err := fc.GlobalEnv()
			if err != nil {
				return fmt.Errorf("merge env: %w", err)
			}
			e := env.New()
			e.SetAll(globalEnv)
			e.Set("DATA_DIR", dataDir)

			var sinks []history.Sink
			if fc.History.DSN != "" {
				sink, err := botherd.NewHistorySink(fc.History.DSN)
				if err != nil {
					return fmt.Errorf("history sink: %w", err)
				}
				defer func() { _ = sink.Close() }()
				sinks = append(sinks, sink)
			}

			if err := botherd.RegisterMetricsDefault(); err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}

			sup := botherd.New(botherd.Config{
				Backoff: fc.Backoff,
				Grace:   fc.Grace,
				Stagger: fc.Stagger,
				Env:     e,
				Sinks:   sinks,
			}, fc.Specs()...)

			if fc.Server.Enabled {
				srv, err := botherd.NewHTTPServer(fc.Server.Listen, fc.Server.BasePath, sup)
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
				defer func() { _ = srv.Close() }()
			}

			return sup.Run(ctx)
		},
	}
}

func newSeedCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Download absent seed artifacts without starting workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Setup(flags.LogLevel)
			fc, err := botherd.LoadConfig(flags.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := os.MkdirAll(fc.ResolvedDataDir(), 0o750); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return botherd.EnsureSeeded(ctx, fc.SeedArtifacts())
		},
	}
}

func newStatusCmd(flags *GlobalFlags) *cobra.Command {
	var apiURL string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "status [worker]",
		Short: "Query worker statuses from a running supervisor's API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := apiURL + "/status"
			if len(args) == 1 {
				url += "/" + args[0]
			}
			client := &http.Client{Timeout: timeout}
			resp, err := client.Get(url)
			if err != nil {
				return fmt.Errorf("query %s: %w", url, err)
			}
			defer func() { _ = resp.Body.Close() }()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("api returned %d: %s", resp.StatusCode, string(body))
			}
			if len(args) == 1 {
				var st statusView
				if err := json.Unmarshal(body, &st); err != nil {
					return err
				}
				return printStatuses(cmd.OutOrStdout(), []statusView{st})
			}
			var sts []statusView
			if err := json.Unmarshal(body, &sts); err != nil {
				return err
			}
			return printStatuses(cmd.OutOrStdout(), sts)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://127.0.0.1:8060", "supervisor API base URL")
	cmd.Flags().DurationVar(&timeout, "api-timeout", 5*time.Second, "API request timeout")
	return cmd
}

// statusView is the subset of the status payload the table renders. The API
// carries an exit_error field whose concrete type only exists server-side.
type statusView struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Restarts  int       `json:"restarts"`
}

func printStatuses(w io.Writer, sts []statusView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSTATE\tPID\tRESTARTS\tSTARTED")
	for _, st := range sts {
		started := ""
		if !st.StartedAt.IsZero() {
			started = st.StartedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", st.Name, st.State, st.PID, st.Restarts, started)
	}
	return tw.Flush()
}
