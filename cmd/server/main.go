// Package main provides the entry point for the GroupForge server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groupforge/groupforge/internal/accesscode"
	"github.com/groupforge/groupforge/internal/config"
	"github.com/groupforge/groupforge/internal/credential"
	"github.com/groupforge/groupforge/internal/metrics"
	"github.com/groupforge/groupforge/internal/platform"
	"github.com/groupforge/groupforge/internal/provision"
	"github.com/groupforge/groupforge/internal/server"
	"github.com/groupforge/groupforge/internal/session"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Initialize logger
	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting GroupForge server")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("sessions_dir", cfg.Storage.SessionsDir),
		zap.Int("max_groups", cfg.Provision.MaxGroups),
	)

	// Initialize credential storage
	creds, err := credential.NewStore(cfg.Storage.SessionsDir, logger)
	if err != nil {
		logger.Fatal("failed to initialize credential store", zap.Error(err))
	}

	// Initialize metrics
	m := metrics.NewMetrics()
	m.SetHealthStatus(true)

	// Start metrics server if enabled
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		logger.Info("metrics server started",
			zap.Int("port", cfg.Metrics.Port),
			zap.String("path", cfg.Metrics.Path),
		)
	}

	// Initialize connection management over the loopback capability
	dialer := platform.NewLoopbackDialer()
	sessions := session.NewManager(session.NewRegistry(), creds, dialer,
		cfg.Delays, cfg.Platform.CallTimeout, logger, m)

	// Initialize the provisioning pipeline
	artifacts := provision.NewArtifactWriter(cfg.Storage.LinksDir, logger)
	runner := provision.NewRunner(cfg.Delays, cfg.Platform.CallTimeout, artifacts, logger, m)

	// Initialize the access-code store
	access := accesscode.NewStore(cfg.Storage.AccessFile, cfg.Storage.NoticeFile,
		cfg.Access.AdminCode, logger)

	// Readiness probes the session storage directory
	probe := func(ctx context.Context) error {
		_, err := os.Stat(cfg.Storage.SessionsDir)
		return err
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg, sessions, runner, access, probe, m, logger)
	httpServer.SetupRoutes()

	// Start HTTP server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("HTTP server started", zap.Int("port", cfg.Server.Port))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	m.SetHealthStatus(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server; in-flight provisioning streams get the shutdown
	// window to finish their current group.
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("GroupForge server shutdown complete")
}

// initLogger initializes the zap logger.
func initLogger() *zap.Logger {
	// Get log level from environment
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// Get log format from environment
	logFormat := os.Getenv("LOG_FORMAT")

	var config zap.Config
	if logFormat == "console" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		// Fallback to basic logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
