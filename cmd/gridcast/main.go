// Command gridcast runs the forecasting pipeline, its daily scheduler,
// and its read-only Query API, grounded on the teacher's cmd/download
// urfave/cli/v3 command structure and the rxtech-lab-argo-trading
// cmd/backtest schollz/progressbar/v3 progress rendering.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/rozsasarpi/gridcast/internal/api"
	"github.com/rozsasarpi/gridcast/internal/archive"
	"github.com/rozsasarpi/gridcast/internal/config"
	"github.com/rozsasarpi/gridcast/internal/fallback"
	"github.com/rozsasarpi/gridcast/internal/features"
	"github.com/rozsasarpi/gridcast/internal/forecast"
	"github.com/rozsasarpi/gridcast/internal/ingest"
	"github.com/rozsasarpi/gridcast/internal/logging"
	"github.com/rozsasarpi/gridcast/internal/modelregistry"
	"github.com/rozsasarpi/gridcast/internal/pipeline"
	"github.com/rozsasarpi/gridcast/internal/residuals"
	"github.com/rozsasarpi/gridcast/internal/scheduler"
	"github.com/rozsasarpi/gridcast/internal/store"
	"github.com/rozsasarpi/gridcast/internal/store/format"
	"github.com/rozsasarpi/gridcast/internal/timeutil"
)

const version = "0.1.0"

// assembly is every component wired from config, shared by run/schedule/
// serve so each subcommand only adds what it specifically needs.
type assembly struct {
	cfg      *config.Config
	log      zerolog.Logger
	loc      *time.Location
	st       *store.Store
	executor *pipeline.Executor
}

func assemble(cfgFile string) (*assembly, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.Environment == "development"})
	logging.SetGlobalLogger(log)

	loc := timeutil.MustLoadLocation(timeutil.ChicagoZone)

	fmtCodec, err := format.Get(cfg.StorageFormat)
	if err != nil {
		return nil, fmt.Errorf("storage format: %w", err)
	}
	st, err := store.Open(cfg.DataDir, fmtCodec, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := modelregistry.New(filepath.Join(cfg.DataDir, "models"))
	if err := registry.Initialize(); err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}

	ingestClient := ingest.NewClient(ingest.Config{
		LoadForecast:       ingest.FeedConfig{URL: cfg.LoadForecastURL, APIKey: cfg.LoadForecastAPIKey},
		HistoricalPrices:   ingest.FeedConfig{URL: cfg.HistoricalPricesURL, APIKey: cfg.HistoricalPricesAPIKey},
		GenerationForecast: ingest.FeedConfig{URL: cfg.GenerationForecastURL, APIKey: cfg.GenerationForecastAPIKey},
	}, loc, log)

	engine := forecast.NewEngine(registry, log)
	fallbackEngine := fallback.NewEngine(st, log)
	residualProvider := residuals.New(st)

	executor := pipeline.NewExecutor(ingestClient, features.NewBuilder(), engine, st, fallbackEngine, log)
	executor.Residuals = residualProvider
	executor.ParallelForecast = cfg.Pipeline.ParallelForecast

	return &assembly{cfg: cfg, log: log, loc: loc, st: st, executor: executor}, nil
}

func main() {
	cmd := &cli.Command{
		Name:    "gridcast",
		Usage:   "probabilistic electricity market forecasting pipeline",
		Version: version,
		Commands: []*cli.Command{
			runCommand(),
			scheduleCommand(),
			serveCommand(),
			rebuildIndexCommand(),
			infoCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "gridcast:", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run one forecast cycle immediately",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "target_date", Usage: "target date YYYY-MM-DD, defaults to today"},
			&cli.StringFlag{Name: "config_file", Usage: "optional YAML config overlay path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			asm, err := assemble(cmd.String("config_file"))
			if err != nil {
				return err
			}

			now := time.Now().In(asm.loc)
			targetDate := now
			if raw := cmd.String("target_date"); raw != "" {
				targetDate, err = time.ParseInLocation("2006-01-02", raw, asm.loc)
				if err != nil {
					return fmt.Errorf("invalid --target_date: %w", err)
				}
			}
			windowStart := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(),
				asm.cfg.Scheduler.TriggerHour, 0, 0, 0, asm.loc)

			bar := progressbar.NewOptions(5,
				progressbar.OptionSetDescription("forecast cycle"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
			bar.Describe("ingest -> features -> forecast -> validate -> store")
			results, err := asm.executor.RunCycle(ctx, windowStart, windowStart)
			bar.Finish()
			if err != nil {
				return fmt.Errorf("run cycle: %w", err)
			}

			completed, fallenBack, failed := 0, 0, 0
			for _, r := range results {
				switch {
				case r.FinalState == pipeline.StateCompleted:
					completed++
				case r.FinalState == pipeline.StateCompletedFallback:
					fallenBack++
				default:
					failed++
				}
			}
			asm.log.Info().
				Int("completed", completed).
				Int("fallback", fallenBack).
				Int("failed", failed).
				Msg("forecast cycle finished")
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "run the daily cron trigger and block until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "optional YAML config overlay path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			asm, err := assemble(cmd.String("config_file"))
			if err != nil {
				return err
			}

			sched := scheduler.New(asm.executor, asm.loc, asm.log)
			sched.TriggerHour = asm.cfg.Scheduler.TriggerHour
			sched.MisfireGrace = time.Duration(asm.cfg.Scheduler.MisfireGraceSeconds) * time.Second
			sched.JobTimeout = time.Duration(asm.cfg.Scheduler.JobTimeoutSeconds) * time.Second

			if !sched.Start() {
				return fmt.Errorf("scheduler failed to start")
			}

			waitForSignal(asm.log)
			sched.Stop()
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the Query API and the daily scheduler together",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "0.0.0.0", Usage: "HTTP bind host"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP bind port"},
			&cli.StringFlag{Name: "config_file", Usage: "optional YAML config overlay path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			asm, err := assemble(cmd.String("config_file"))
			if err != nil {
				return err
			}

			host := cmd.String("host")
			if !cmd.IsSet("host") && asm.cfg.APIHost != "" {
				host = asm.cfg.APIHost
			}
			port := cmd.Int("port")
			if !cmd.IsSet("port") && asm.cfg.APIPort != 0 {
				port = int64(asm.cfg.APIPort)
			}

			sched := scheduler.New(asm.executor, asm.loc, asm.log)
			sched.TriggerHour = asm.cfg.Scheduler.TriggerHour
			sched.MisfireGrace = time.Duration(asm.cfg.Scheduler.MisfireGraceSeconds) * time.Second
			sched.JobTimeout = time.Duration(asm.cfg.Scheduler.JobTimeoutSeconds) * time.Second
			sched.Start()

			server := api.New(api.Config{
				Host:      host,
				Port:      int(port),
				Store:     asm.st,
				Scheduler: sched,
				Loc:       asm.loc,
				Log:       asm.log,
				DevMode:   asm.cfg.Environment == "development",
				DataDir:   asm.cfg.DataDir,
				Version:   version,
			})

			asm.executor.Events = server

			if asm.cfg.Archival.Enabled {
				go runArchivalLoop(context.Background(), asm)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
			case <-sigCh:
				asm.log.Info().Msg("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				sched.Stop()
				return server.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
}

// runArchivalLoop runs the archival job once a day while the server is
// up, grounded on the teacher's reliability services being wired as
// background goroutines rather than their own scheduled job type.
func runArchivalLoop(ctx context.Context, asm *assembly) {
	client, err := archive.NewClient(ctx, asm.cfg.Archival, asm.log)
	if err != nil {
		asm.log.Error().Err(err).Msg("archival client could not be constructed, archival disabled")
		return
	}
	archiver := archive.New(asm.st, client, asm.cfg.Archival.RetentionDays, asm.log)

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if _, err := archiver.Run(ctx); err != nil {
			asm.log.Error().Err(err).Msg("archival run failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func rebuildIndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild-index",
		Usage: "rebuild the Storage Index by walking the artifact tree",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "optional YAML config overlay path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			asm, err := assemble(cmd.String("config_file"))
			if err != nil {
				return err
			}
			n, err := asm.st.RebuildIndex()
			if err != nil {
				return fmt.Errorf("rebuild index: %w", err)
			}
			fmt.Printf("rebuilt index: %d artifacts\n", n)
			return nil
		},
	}
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "print Forecast Store coverage and version",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "optional YAML config overlay path"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			asm, err := assemble(cmd.String("config_file"))
			if err != nil {
				return err
			}
			info, err := asm.st.Info()
			if err != nil {
				return fmt.Errorf("store info: %w", err)
			}
			fmt.Printf("gridcast %s\n", version)
			fmt.Printf("data_dir: %s\n", asm.cfg.DataDir)
			fmt.Printf("total_artifacts: %d\n", info.TotalArtifacts)
			fmt.Printf("total_bytes: %d\n", info.TotalBytes)
			for product, cov := range info.PerProduct {
				fmt.Printf("  %-8s count=%-4d oldest=%s newest=%s\n",
					product, cov.Count, cov.Oldest.Format("2006-01-02"), cov.Newest.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func waitForSignal(log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")
}
