package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/efuayankey/aimes-sub001/internal/application"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP API with the sweeper, realtime feed and feedback workers",
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, _ []string) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := application.NewAPI(ctx, cfg, log)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
