package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/application"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/spf13/cobra"
)

var republishCmd = &cobra.Command{
	Use:   "republish",
	Short: "Re-emit snapshots of all pending and claimed requests to Kafka",
	RunE:  runRepublish,
}

const republishBatch = 50

func runRepublish(cmd *cobra.Command, _ []string) error {
	cfg, log, err := load()
	if err != nil {
		return err
	}
	core, err := application.OpenCore(cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()
	if !core.Events.Enabled() {
		return errors.New("republish: KAFKA_BROKERS is not set")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	active, err := core.Store.ListRequests(ctx, store.RequestQuery{
		Statuses: []model.RequestStatus{model.RequestStatusPending, model.RequestStatusClaimed},
	})
	if err != nil {
		return err
	}
	log.Info("republish: found active requests", "count", len(active))

	now := time.Now().UTC()
	for start := 0; start < len(active); start += republishBatch {
		end := min(start+republishBatch, len(active))
		events := make([]model.Event, 0, end-start)
		for i := start; i < end; i++ {
			events = append(events, model.RequestEvent(model.EventRequestSnapshot, &active[i], now))
		}
		if err := core.Events.Write(ctx, events...); err != nil {
			return err
		}
		log.Info("republish: sent", "done", end, "total", len(active))
	}
	return nil
}
