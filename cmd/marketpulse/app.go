package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marketpulse/config"
	"marketpulse/internal/metrics"
	"marketpulse/logger"
	"marketpulse/market"
	"marketpulse/narrative"
	"marketpulse/reader/fred"
	"marketpulse/synthetic"
	"marketpulse/writer"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg        *config.Config
	log        *logger.Log
	collectors *metrics.Collectors
	store      *market.Store
	analyst    *narrative.Analyst
}

func bootstrap(ctx context.Context) (*app, error) {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Error loading .env file")
	}

	path := config.ResolveConfigPath(configPath)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration %s: %w", path, err)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return nil, fmt.Errorf("configure logger: %w", err)
	}
	if len(cfg.Logging.Fields) > 0 {
		log.AddHook(logger.StaticFields(cfg.Logging.Fields))
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
		"config":      path,
	}).Info("starting marketpulse")

	if strings.ToLower(cfg.Logging.Level) == "report" {
		interval := cfg.Logging.ReportEvery
		if interval <= 0 {
			interval = 30 * time.Second
		}
		logger.StartReport(ctx, log, interval)
	}

	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch, cfg.Logging.DashboardName)
	}

	var collectors *metrics.Collectors
	if cfg.Metrics.Prometheus {
		collectors = metrics.NewCollectors()
	}

	settings, err := market.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	seed := cfg.Synthetic.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log.WithComponent("main").WithFields(logger.Fields{"seed": seed}).Debug("synthetic generator seeded")

	opts := []market.Option{market.WithCollectors(collectors)}
	if cfg.Storage.S3.Enabled {
		client, err := writer.NewS3Client(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, fmt.Errorf("create S3 client: %w", err)
		}
		opts = append(opts, market.WithSink(writer.NewSnapshotExporter(cfg, client, collectors)))
	} else {
		log.WithComponent("main").Info("S3 storage disabled; snapshots are not exported")
	}

	store := market.NewStore(settings, fred.NewClient(cfg.Fred, collectors), synthetic.New(seed, nil), opts...)

	var analyst *narrative.Analyst
	if cfg.Narrative.Enabled {
		analyst = narrative.NewAnalyst(narrative.NewGeminiAdapter(cfg.Narrative), collectors)
	}

	return &app{
		cfg:        cfg,
		log:        log,
		collectors: collectors,
		store:      store,
		analyst:    analyst,
	}, nil
}
