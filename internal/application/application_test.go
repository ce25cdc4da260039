package application

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/config"
	"github.com/efuayankey/aimes-sub001/internal/kafka"
	"github.com/efuayankey/aimes-sub001/internal/logger"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFeed records what is published; nothing listens.
type memFeed struct {
	mu     sync.Mutex
	events []model.Event
}

func (f *memFeed) Publish(_ context.Context, ev model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *memFeed) Listen(ctx context.Context, _ func(context.Context, model.Event)) error {
	<-ctx.Done()
	return nil
}

func (f *memFeed) snapshot() []model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Event(nil), f.events...)
}

func TestCoreSweeper_PublishesExpiryToFeed(t *testing.T) {
	log := logger.Discard()
	feed := &memFeed{}
	cfg := &config.Config{}
	cfg.Queue = config.QueueConfig{LeaseDuration: 2 * time.Hour, SweepBatch: 10}
	core := &Core{
		Cfg:    cfg,
		Log:    log,
		Store:  storetest.New(t),
		Events: kafka.NewProducer(nil, "", log),
		Feed:   feed,
	}

	ctx := context.Background()
	past := time.Now().UTC().Add(-3 * time.Hour)
	deadline := past.Add(time.Hour)
	owner := "c1"
	r := &model.Request{
		ID: uuid.NewString(), Content: "hello", RequesterID: "student-1", Tags: []string{},
		Priority: model.PriorityNormal, Routing: model.RoutingHuman, Status: model.RequestStatusClaimed,
		ClaimedBy: &owner, ClaimedAt: &past, ResponseDeadline: &deadline,
		Version: 2, CreatedAt: past, UpdatedAt: past,
	}
	require.NoError(t, core.Store.CreateRequest(ctx, r))

	res, err := core.Sweeper().RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reclaimed)

	events := feed.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRequestExpired, events[0].Type)
	assert.Equal(t, r.ID, events[0].RequestID)
	require.NotNil(t, events[0].Request)
	assert.Equal(t, model.RequestStatusPending, events[0].Request.Status)
	assert.Nil(t, events[0].Request.ClaimedBy)
	assert.Equal(t, int64(3), events[0].Request.Version)
}

func TestCorePublisher_KafkaOnlyWithoutFeed(t *testing.T) {
	log := logger.Discard()
	core := &Core{Log: log, Events: kafka.NewProducer(nil, "", log)}
	assert.Same(t, core.Events, core.Publisher())
}

func TestOpenCore_LocalFeedStaysInProcess(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "counselor.db"))
	cfg, err := config.Load()
	require.NoError(t, err)

	core, err := OpenCore(cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = core.Close() })

	assert.Nil(t, core.Feed)
	require.NoError(t, core.Store.Ping(context.Background()))
}
