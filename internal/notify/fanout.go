package notify

import (
	"context"
	"log/slog"

	"github.com/efuayankey/aimes-sub001/internal/model"
)

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, ev model.Event)
}

// Fanout publishes every event to each sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev model.Event) {
	for _, s := range f {
		s.Publish(ctx, ev)
	}
}

// FeedSink writes request events to a feed without listening on it. Processes
// that only change state, like the one-shot sweep, use it to reach the
// brokers of the API replicas.
type FeedSink struct {
	Feed Feed
	Log  *slog.Logger
}

func (s FeedSink) Publish(ctx context.Context, ev model.Event) {
	if ev.Request == nil {
		return
	}
	if err := s.Feed.Publish(ctx, ev); err != nil {
		s.Log.WarnContext(ctx, "publish to feed failed", "event", ev.Type, "request_id", ev.RequestID, "error", err)
	}
}
