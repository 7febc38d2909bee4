package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/robbiet76/fpp-calendar-sync/internal/config"
	"github.com/robbiet76/fpp-calendar-sync/internal/export"
	"github.com/robbiet76/fpp-calendar-sync/internal/fpp"
	"github.com/robbiet76/fpp-calendar-sync/internal/holiday"
	"github.com/robbiet76/fpp-calendar-sync/internal/httpserver"
	"github.com/robbiet76/fpp-calendar-sync/internal/logging"
	"github.com/robbiet76/fpp-calendar-sync/internal/manifest"
	"github.com/robbiet76/fpp-calendar-sync/internal/scheduler"
	"github.com/robbiet76/fpp-calendar-sync/internal/suntime"
	"github.com/robbiet76/fpp-calendar-sync/internal/target"
	"github.com/robbiet76/fpp-calendar-sync/pkg/ical"
)

var rootCmd = &cobra.Command{
	Use:   "fpp-calendar-sync",
	Short: "Keep the FPP schedule in sync with a calendar feed",
	Long: `fpp-calendar-sync mirrors a remote ICS calendar into the Falcon Player
schedule file. Plan previews the changes, apply writes them with backup
and undo, serve runs the daemon behind the plugin UI.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, planCmd, applyCmd, rollbackCmd, exportCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime is the assembled pipeline shared by the one-shot commands.
type runtime struct {
	logger   zerolog.Logger
	settings *config.Settings
	manager  *config.Manager
	file     *fpp.ScheduleFile
	svc      *scheduler.Service
	exporter *export.Exporter
}

func build() (*runtime, error) {
	settings := config.LoadSettings()
	logger := logging.New(settings.LogLevel)

	manager, err := config.NewManager(settings.ConfigPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	env := config.LoadEnv(settings.EnvPath)
	loc := env.Location()
	if settings.Timezone != "" {
		if l, err := time.LoadLocation(settings.Timezone); err == nil {
			loc = l
		}
	}

	file := fpp.NewScheduleFile(settings.SchedulePath, logger)
	store := manifest.NewStore(settings.ManifestPath, logger)
	holidays := holiday.NewResolver(loc)
	svc := scheduler.NewService(manager, file, store, ical.NewFetcher(logger), target.NewResolver(settings.MediaRoot), holidays, loc, logger)
	exporter := export.NewExporter(loc, suntime.New(env.Latitude, env.Longitude), holidays, logger)

	return &runtime{
		logger:   logger,
		settings: settings,
		manager:  manager,
		file:     file,
		svc:      svc,
		exporter: exporter,
	}, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon with the JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := config.LoadSettings()
		logger := logging.New(settings.LogLevel)

		manager, err := config.NewManager(settings.ConfigPath, logger)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		srv := httpserver.NewServer(settings, manager, logger)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		watcher := config.NewWatcher(manager, logger, nil)
		go func() {
			if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("config watcher stopped")
			}
		}()

		go func() {
			if err := srv.Start(); err != nil {
				logger.Fatal().Err(err).Msg("server stopped with error")
			}
		}()

		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
		logger.Info().Msg("bye")
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the changes a sync would make",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := build()
		if err != nil {
			return err
		}
		res := rt.svc.Plan(cmd.Context())
		if !res.OK {
			printJSON(map[string]any{"ok": false, "error": res.Err, "warnings": res.Warnings})
			return fmt.Errorf("plan failed")
		}
		printJSON(map[string]any{
			"ok":       true,
			"counts":   res.Diff.Counts(),
			"creates":  res.Diff.Creates,
			"updates":  res.Diff.Updates,
			"deletes":  res.Diff.Deletes,
			"warnings": res.Warnings,
		})
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the planned changes to the schedule file",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := build()
		if err != nil {
			return err
		}
		res := rt.svc.Apply(cmd.Context())
		if res.Err != nil {
			printJSON(map[string]any{"ok": false, "error": res.Err.Error(), "warnings": res.Warnings})
			return res.Err
		}
		printJSON(map[string]any{
			"ok":       true,
			"dryRun":   res.DryRun,
			"counts":   res.Counts,
			"backup":   res.Backup,
			"warnings": res.Warnings,
		})
		return nil
	},
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the previously applied schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := build()
		if err != nil {
			return err
		}
		res := rt.svc.Rollback()
		if res.Err != nil {
			printJSON(map[string]any{"ok": false, "error": res.Err.Error()})
			return res.Err
		}
		printJSON(map[string]any{"ok": true, "backup": res.Backup})
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export hand-added schedule entries as ICS",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := build()
		if err != nil {
			return err
		}
		data, err := rt.exporter.Export(rt.file.Read(), time.Now())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
