package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alfredjeanlab/nari/internal/allocator"
	"github.com/alfredjeanlab/nari/internal/config"
	"github.com/alfredjeanlab/nari/internal/store"
	"github.com/alfredjeanlab/nari/internal/store/postgres"
	"github.com/alfredjeanlab/nari/internal/store/sqlite"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// loadConfig reads the environment and the policy file, with env overrides
// applied to the policy.
func loadConfig() (*config.Config, *config.Policy, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, nil, err
	}
	policy.ApplyEnv(cfg)
	return cfg, policy, nil
}

// openStore connects to PostgreSQL or opens the SQLite file named by
// NARI_DATABASE_URL.
func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.IsPostgres() {
		s, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	}
	s, err := sqlite.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return s, nil
}

func newAllocator(policy *config.Policy) (*allocator.Allocator, error) {
	alloc, err := allocator.New(policy.BadgePrefix)
	if err != nil {
		return nil, fmt.Errorf("badge prefix: %w", err)
	}
	return alloc, nil
}
