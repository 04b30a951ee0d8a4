package main

import (
	"fmt"

	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/orchestrator"
)

func loadConfig() (config.ServerConfig, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.ServerConfig{}, err
	}
	cfg, err := config.Load[config.ServerConfig]()
	if err != nil {
		return config.ServerConfig{}, err
	}
	if cfg.Scheduler.Parallelism < 1 {
		return config.ServerConfig{}, fmt.Errorf("SCHEDULER_PARALLELISM must be at least 1")
	}
	return cfg, nil
}

func orchestratorConfig(cfg config.ServerConfig) orchestrator.Config {
	return orchestrator.ConfigFrom(cfg.Store, cfg.Scheduler)
}
