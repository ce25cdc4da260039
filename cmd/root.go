package cmd

import (
	"fmt"
	"log/slog"

	"github.com/efuayankey/aimes-sub001/internal/config"
	"github.com/efuayankey/aimes-sub001/internal/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "counselor-service",
	Short:         "Counselor assignment and response pipeline: queue, leases, answers, realtime events",
	RunE:          runAPI,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(republishCmd)
}

// load читает и валидирует конфиг, создаёт логгер.
func load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, logger.New(cfg.Log), nil
}
