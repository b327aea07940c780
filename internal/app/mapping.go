package app

import (
	"fmt"
	"strings"
	"time"

	"belltower/internal/config"
	"belltower/internal/notifier"
	"belltower/internal/runner"
	"belltower/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./belltower.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
}

func mapRunnerConfig(cfg *config.Config) (runner.Config, error) {
	timeout, err := config.ParseDurationField("runner.cycle_timeout", cfg.Runner.CycleTimeout)
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Enabled:      cfg.Runner.Enabled,
		Timezone:     cfg.Runner.Timezone,
		CycleTimeout: timeout,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	if nc == nil {
		// Omitted section: enabled with pipeline defaults.
		return notifier.Config{Enabled: true}, nil
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:     nc.Enabled,
		Workers:     nc.Workers,
		QueueSize:   nc.QueueSize,
		RatePerSec:  nc.RatePerSec,
		RetryMax:    nc.RetryMax,
		RetryBase:   retryBase,
		DedupWindow: dedup,
		HistorySize: nc.HistorySize,
	}, nil
}
