package main

import (
	"context"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/support-intel/internal/app/bootstrap"
	appconfig "github.com/wolfman30/support-intel/internal/config"
	"github.com/wolfman30/support-intel/pkg/logging"
)

// stderr receives log output so command output on stdout stays parseable.
var stderr io.Writer = os.Stderr

// newEngine is swapped in tests to share one in-memory engine across commands.
var newEngine = func(ctx context.Context, logLevel string) (*bootstrap.Engine, error) {
	cfg := appconfig.Load()
	if logLevel == "" {
		logLevel = "warn"
	}
	logger := logging.NewWithWriter(logLevel, stderr)
	if ephemeralStore(cfg) {
		logger.Warn("STORE_BACKEND is memory: conversations are lost when this command exits; use redis or postgres to show, evaluate or complete them later")
	}

	awsCfg := bootstrap.LoadAWSConfig(ctx, cfg, logger)
	return bootstrap.BuildEngine(ctx, cfg, awsCfg, prometheus.NewRegistry(), logger)
}

func ephemeralStore(cfg *appconfig.Config) bool {
	return cfg.StoreBackend == "" || cfg.StoreBackend == "memory"
}
