package cmd

import (
	"github.com/efuayankey/aimes-sub001/internal/application"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim expired leases once and exit (for cron)",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	core, err := application.OpenCore(cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	_, err = core.Sweeper().RunOnce(cmd.Context())
	return err
}
