package app

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/safemelbourne/livemap/internal/cmd/completion"
	"github.com/safemelbourne/livemap/internal/cmd/output"
	"github.com/safemelbourne/livemap/internal/cmd/table"
	"github.com/safemelbourne/livemap/internal/server"
	"github.com/safemelbourne/livemap/pkg/constants"
	"github.com/safemelbourne/livemap/pkg/errors"
	"github.com/safemelbourne/livemap/pkg/events"
	"github.com/safemelbourne/livemap/pkg/loop"
	"github.com/safemelbourne/livemap/pkg/surface/headless"
)

// NewServeCommand creates the serve command.
func (a *App) NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "core",
		Short:   "Run the live map and mirror it over HTTP",
		Long: `Serve runs the dashboard against an in-memory map surface and serves
the rendered markers, layers and dashboard state over HTTP.

Endpoints (under /api/v1):
  GET  /geojson, /events, /surface/data, /layers, /styles, /state
  POST /filter, /window, /style, /refresh
  GET  /updates/ws (WebSocket), /updates/stream (SSE)`,
		Example: `  livemap serve --base-url https://safe.example.org
  livemap serve --port 3000 --hours 6 --filter warnings`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.applyDashboardFlags(cmd); err != nil {
				return err
			}
			return a.runServe(cmd.Context())
		},
	}

	addDashboardFlags(cmd)
	cmd.Flags().String("host", constants.DefaultHost, "Bind address")
	cmd.Flags().IntP("port", "p", constants.DefaultPort, "Server port")
	cmd.Flags().String("style", "", "Map style id or style URL")
	cmd.Flags().Bool("mobile", false, "Use the slower mobile render timings")
	cmd.Flags().Duration("auto-refresh", 0, "Refetch the bulk snapshot on this interval (0 disables)")
	return cmd
}

// NewEventsCommand creates the events command.
func (a *App) NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		GroupID: "core",
		Short:   "Fetch and print the current events",
		Example: `  livemap events
  livemap events --hours 6 --filter road_closures -o wide
  livemap events -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.applyDashboardFlags(cmd); err != nil {
				return err
			}
			return a.runEvents(cmd)
		},
	}
	addDashboardFlags(cmd)
	return cmd
}

// NewCompletionCommand creates the completion command.
func (a *App) NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish]",
		Short:     "Generate or install shell completions",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: completion.Shells,
		Example: `  livemap completion zsh > ~/.zsh/completions/_livemap
  livemap completion fish --install`,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			install, _ := cmd.Flags().GetBool("install")
			if !install {
				return completion.Generate(cmd.Root(), shell, cmd.OutOrStdout())
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return errors.NewConfigError("completion", "locating home directory", err)
			}
			path, err := completion.Install(cmd.Root(), shell, home)
			if err != nil {
				return err
			}
			cmd.Printf("%s completions installed to %s\n", shell, path)
			return nil
		},
	}
	cmd.Flags().Bool("install", false, "Write the script to the per-user completion directory")
	return cmd
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("livemap %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}

func addDashboardFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-url", "", "Backend base URL")
	cmd.Flags().Int("hours", constants.DefaultTimeWindowHours, "Time window in hours (0 for no window)")
	cmd.Flags().String("filter", string(events.FilterAll), "Category filter: all, protests, road_closures, warnings")
}

// applyDashboardFlags copies explicitly set flags over the loaded config.
func (a *App) applyDashboardFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Lookup(name) != nil && flags.Changed(name) {
			err = apply()
		}
	}
	c := a.config
	set("base-url", func() (e error) { c.BaseURL, e = flags.GetString("base-url"); return })
	set("hours", func() (e error) { c.Hours, e = flags.GetInt("hours"); return })
	set("filter", func() (e error) { c.Filter, e = flags.GetString("filter"); return })
	set("host", func() (e error) { c.Host, e = flags.GetString("host"); return })
	set("port", func() (e error) { c.Port, e = flags.GetInt("port"); return })
	set("style", func() (e error) { c.Style, e = flags.GetString("style"); return })
	set("mobile", func() (e error) { c.Mobile, e = flags.GetBool("mobile"); return })
	set("auto-refresh", func() (e error) { c.AutoRefresh, e = flags.GetDuration("auto-refresh"); return })
	if err != nil {
		return err
	}
	return c.Validate()
}

func (a *App) runEvents(cmd *cobra.Command) error {
	ctx := cmd.Context()
	filter, err := events.ParseFilter(a.config.Filter)
	if err != nil {
		return err
	}

	res, err := a.Fetcher().Fetch(ctx, a.config.Hours)
	if err != nil {
		return err
	}
	for _, degraded := range res.Degraded {
		a.logger.Warn().Err(degraded).Msg("Source unavailable, showing partial results")
	}
	view := filter.Apply(res.Events)

	format := output.DetectFormat(a.config.Format)
	formatter := output.NewFormatter(format)
	w := cmd.OutOrStdout()
	switch format {
	case output.FormatJSON, output.FormatYAML:
		return formatter.Format(w, view)
	default:
		return formatter.Format(w, table.EventsToTableData(view, format == output.FormatWide, time.Now()))
	}
}

func (a *App) runServe(ctx context.Context) error {
	cfg := a.config
	logger := a.logger

	style, err := cfg.StyleURL()
	if err != nil {
		return err
	}

	sched := loop.New(loop.WithLogger(logger))
	surf := headless.New(
		headless.WithScheduler(sched),
		headless.WithStyle(style),
		headless.WithLogger(logger),
	)
	dashboard, err := a.Dashboard(surf, sched)
	if err != nil {
		return err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.Port = cfg.Port
	srvCfg.CacheTTL = cfg.CacheTTL
	srv, err := server.New(dashboard, surf, srvCfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      srv.Handler(),
		ReadTimeout:  srvCfg.ReadTimeout,
		WriteTimeout: srvCfg.WriteTimeout,
		IdleTimeout:  srvCfg.IdleTimeout,
	}
	// Hooks run in reverse: streaming clients are released before the
	// HTTP server waits for connections to drain.
	a.OnShutdown(httpServer.Shutdown)
	a.OnShutdown(srv.Shutdown)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv.Start()
	serverErr := make(chan error, 1)
	var wg conc.WaitGroup
	wg.Go(func() {
		if err := dashboard.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Dashboard stopped")
		}
	})
	wg.Go(func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("backend", cfg.BaseURL).
			Msg("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serverErr <- errors.NewConfigError("server", "listen on "+httpServer.Addr, err)
			cancel()
		}
	})
	surf.Boot()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer shutdownCancel()
	shutdownErr := a.Shutdown(shutdownCtx)
	wg.Wait()

	select {
	case err := <-serverErr:
		return err
	default:
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info().Msg("Server stopped gracefully")
	return nil
}
