package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/backup-monitor/internal/api"
	"github.com/miradorstack/backup-monitor/internal/classify"
	"github.com/miradorstack/backup-monitor/internal/config"
	"github.com/miradorstack/backup-monitor/internal/engine"
	"github.com/miradorstack/backup-monitor/internal/ingest"
	"github.com/miradorstack/backup-monitor/internal/metrics"
	"github.com/miradorstack/backup-monitor/internal/models"
	"github.com/miradorstack/backup-monitor/internal/report"
	"github.com/miradorstack/backup-monitor/internal/services"
	"github.com/miradorstack/backup-monitor/internal/utils"
)

func main() {
	var (
		configPath string
		inputPath  string
		serve      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&inputPath, "input", "", "Path to a JSON backup feed to process")
	flag.BoolVar(&serve, "serve", false, "Serve the dashboard API after processing")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting backup-monitor", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	location, err := cfg.Ingest.Location()
	if err != nil {
		logger.Error("failed to resolve ingest timezone", slog.Any("error", err))
		os.Exit(1)
	}
	loader := ingest.NewLoader(logger, location)

	classifier, err := classify.NewClassifier(cfg.Classifier.RulesPath, cfg.Classifier.DefaultType, logger)
	if err != nil {
		logger.Error("failed to load classification rules", slog.Any("error", err))
		os.Exit(1)
	}

	weekStart, err := cfg.Processing.WeekStartDay()
	if err != nil {
		logger.Error("invalid processing config", slog.Any("error", err))
		os.Exit(1)
	}
	aggregator := engine.NewAggregator(weekStart)
	comparator := engine.NewComparator()

	detector, err := engine.NewDetector(detectorConfig(cfg.Detection))
	if err != nil {
		logger.Error("invalid detection config", slog.Any("error", err))
		os.Exit(1)
	}

	monitor := services.NewMonitorService(logger, loader, classifier, aggregator, comparator, detector)

	if inputPath != "" {
		snapshot, err := monitor.RunFile(inputPath)
		if err != nil {
			logger.Error("monitoring run failed", slog.String("input", inputPath), slog.Any("error", err))
			os.Exit(1)
		}

		generator := report.NewGenerator(cfg.Reporting, logger)
		for _, granularity := range []models.Granularity{
			models.GranularityDaily,
			models.GranularityWeekly,
			models.GranularityMonthly,
		} {
			rep := generator.Build(string(granularity),
				snapshot.Aggregates.ByGranularity(granularity),
				snapshot.Comparisons[granularity],
				anomaliesFor(snapshot.Anomalies, granularity))
			if _, err := generator.Write(rep); err != nil {
				logger.Error("failed to write report", slog.String("granularity", string(granularity)), slog.Any("error", err))
				os.Exit(1)
			}
		}
	}

	if !serve {
		logger.Info("backup-monitor finished")
		return
	}

	server := api.NewServer(cfg.Server, monitor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("dashboard server listening", slog.String("address", cfg.Server.Address))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("dashboard server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dashboard server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("backup-monitor stopped")
}

func detectorConfig(cfg config.DetectionConfig) engine.DetectorConfig {
	dc := engine.DetectorConfig{
		ThresholdMultiplier: cfg.ThresholdMultiplier,
		MinSamples:          cfg.MinSamples,
		LookbackLimit:       cfg.LookbackLimit,
		Bands: engine.SeverityBands{
			Low:      cfg.SeverityBands.Low,
			Medium:   cfg.SeverityBands.Medium,
			High:     cfg.SeverityBands.High,
			Critical: cfg.SeverityBands.Critical,
		},
	}
	if len(cfg.TypeOverrides) > 0 {
		dc.TypeOverrides = make(map[string]engine.ThresholdOverride, len(cfg.TypeOverrides))
		for name, o := range cfg.TypeOverrides {
			dc.TypeOverrides[name] = engine.ThresholdOverride{
				ThresholdMultiplier: o.ThresholdMultiplier,
				MinSamples:          o.MinSamples,
				LookbackLimit:       o.LookbackLimit,
			}
		}
	}
	if len(cfg.GranularityOverrides) > 0 {
		dc.GranularityOverrides = make(map[models.Granularity]engine.ThresholdOverride, len(cfg.GranularityOverrides))
		for name, o := range cfg.GranularityOverrides {
			dc.GranularityOverrides[models.Granularity(name)] = engine.ThresholdOverride{
				ThresholdMultiplier: o.ThresholdMultiplier,
				MinSamples:          o.MinSamples,
				LookbackLimit:       o.LookbackLimit,
			}
		}
	}
	return dc
}

func anomaliesFor(anomalies []models.Anomaly, granularity models.Granularity) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range anomalies {
		if a.Granularity == granularity {
			out = append(out, a)
		}
	}
	return out
}
