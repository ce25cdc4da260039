package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

// Loader reads the current snapshot of a request.
type Loader func(ctx context.Context, id string) (*model.Request, error)

type notification struct {
	Event     model.EventType `json:"event"`
	RequestID string          `json:"request_id"`
	At        time.Time       `json:"at"`
}

// PGFeed shares events between replicas through PostgreSQL LISTEN/NOTIFY.
// A notification carries only the request id; listeners reload the
// snapshot, so payload size limits never apply.
type PGFeed struct {
	db      *gorm.DB
	url     string
	channel string
	load    Loader
	log     *slog.Logger
}

func NewPGFeed(db *gorm.DB, databaseURL, channel string, load Loader, log *slog.Logger) *PGFeed {
	return &PGFeed{
		db:      db,
		url:     databaseURL,
		channel: channel,
		load:    load,
		log:     log.With("component", "pgfeed"),
	}
}

func (f *PGFeed) Publish(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(notification{Event: ev.Type, RequestID: ev.RequestID, At: ev.At})
	if err != nil {
		return err
	}
	return f.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", f.channel, string(body)).Error
}

// Listen keeps a dedicated connection in LISTEN mode and reconnects with
// backoff until ctx is done.
func (f *PGFeed) Listen(ctx context.Context, deliver func(context.Context, model.Event)) error {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := f.listenOnce(ctx, deliver)
		if ctx.Err() != nil {
			return nil
		}
		f.log.WarnContext(ctx, "listen connection lost, reconnecting", "error", err)
		return retry.RetryableError(err)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (f *PGFeed) listenOnce(ctx context.Context, deliver func(context.Context, model.Event)) error {
	conn, err := pgx.Connect(ctx, f.url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", f.channel, err)
	}
	f.log.InfoContext(ctx, "listening", "channel", f.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var msg notification
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil || msg.RequestID == "" {
			f.log.WarnContext(ctx, "malformed notification", "payload", n.Payload)
			continue
		}
		r, err := f.load(ctx, msg.RequestID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			f.log.WarnContext(ctx, "reload request failed", "request_id", msg.RequestID, "error", err)
			continue
		}
		deliver(ctx, model.RequestEvent(msg.Event, r, msg.At))
	}
}
