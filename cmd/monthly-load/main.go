package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"monthlyload/internal/config"
	"monthlyload/internal/gather"
	"monthlyload/internal/gather/us"
	"monthlyload/internal/pipeline"
	"monthlyload/internal/runstate"
	"monthlyload/internal/store"
	"monthlyload/internal/util"
	"monthlyload/internal/warehouse"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("MONTHLY_LOAD_CONFIG"), "path to YAML config (optional; env vars override it)")
	force := flag.Bool("force", false, "run even if the interval has not elapsed")
	status := flag.Bool("status", false, "print last run and next due time, then exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		os.Exit(pipeline.ExitConfig)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format).
		With("run_id", uuid.NewString())
	slog.SetDefault(logger)

	gate := runstate.NewGate(cfg.Storage.DataDir, cfg.Schedule.IntervalDays, logger)

	if *status {
		printStatus(gate, cfg)
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(pipeline.ExitConfig)
	}

	format, err := store.ParseFormat(cfg.Storage.SnapshotFormat)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(pipeline.ExitConfig)
	}

	source, err := newSource(cfg, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(pipeline.ExitConfig)
	}

	var archive store.Archiver
	if cfg.Archive.Enabled() {
		a, err := store.NewObjectArchive(cfg.Archive)
		if err != nil {
			logger.Error("configuring snapshot archive", "error", err)
			os.Exit(pipeline.ExitConfig)
		}
		archive = a
	}

	sink := warehouse.NewLazySink(func(ctx context.Context) (*warehouse.SQLSink, error) {
		return warehouse.Open(ctx, cfg.Warehouse, logger)
	})

	p := pipeline.New(
		gate,
		source,
		store.NewLocalStore(cfg.Storage.DataDir, format),
		archive,
		sink,
		pipeline.Options{Table: cfg.Warehouse.Table, Force: *force},
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting monthly-load",
		"data_dir", cfg.Storage.DataDir,
		"interval_days", cfg.Schedule.IntervalDays,
		"warehouse", cfg.Warehouse.Driver,
		"table", cfg.Warehouse.Table,
		"force", *force,
	)
	res, err := p.Run(ctx)
	code := pipeline.ExitCode(err)
	if err == nil {
		logger.Info("monthly-load finished", "stage", res.Stage, "rows", res.RowsLoaded)
	}

	// Deferred calls do not run across os.Exit.
	if cerr := sink.Close(); cerr != nil {
		logger.Warn("closing warehouse connection", "error", cerr)
	}
	cancel()
	os.Exit(code)
}

func newSource(cfg *config.Config, logger *slog.Logger) (gather.Source, error) {
	switch cfg.Source.Kind {
	case "sample":
		return gather.NewSampleSource(cfg.Source.Rows), nil
	case "http":
		return gather.NewHTTPSource(cfg.Source.URL, nil), nil
	case "alpaca":
		return us.NewAssetSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
}

func printStatus(gate *runstate.Gate, cfg *config.Config) {
	now := time.Now().UTC()
	fmt.Printf("state file:    %s\n", gate.StatePath())
	fmt.Printf("interval:      %d days\n", gate.IntervalDays())

	last, ok := gate.Last()
	if !ok {
		fmt.Println("last run:      never")
		fmt.Println("next due:      now")
	} else {
		next := gate.NextDue(last)
		fmt.Printf("last run:      %s (%d days ago)\n", last.Format(time.RFC3339), runstate.ElapsedDays(last, now))
		if runstate.Due(last, true, now, gate.IntervalDays()) {
			fmt.Println("next due:      now")
		} else {
			fmt.Printf("next due:      %s\n", next.Format(time.RFC3339))
		}
	}

	snaps, err := store.NewLocalStore(cfg.Storage.DataDir, store.FormatCSV).ListSnapshots()
	if err == nil && len(snaps) > 0 {
		fmt.Printf("snapshots:     %d (latest %s)\n", len(snaps), snaps[len(snaps)-1])
	}
}
