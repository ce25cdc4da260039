package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/efuayankey/aimes-sub001/internal/config"
	"github.com/efuayankey/aimes-sub001/internal/database"
	"github.com/efuayankey/aimes-sub001/internal/fallback"
	"github.com/efuayankey/aimes-sub001/internal/feedback"
	"github.com/efuayankey/aimes-sub001/internal/handler"
	"github.com/efuayankey/aimes-sub001/internal/kafka"
	"github.com/efuayankey/aimes-sub001/internal/llm"
	"github.com/efuayankey/aimes-sub001/internal/middleware"
	"github.com/efuayankey/aimes-sub001/internal/model"
	"github.com/efuayankey/aimes-sub001/internal/notify"
	"github.com/efuayankey/aimes-sub001/internal/router"
	"github.com/efuayankey/aimes-sub001/internal/service"
	"github.com/efuayankey/aimes-sub001/internal/store"
	"github.com/efuayankey/aimes-sub001/internal/sweeper"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Core holds the handles shared by the API and the one-shot commands.
type Core struct {
	Cfg    *config.Config
	Log    *slog.Logger
	DB     *gorm.DB
	Store  *store.Store
	Events *kafka.Producer
	// Feed is the cross-process realtime feed; nil when events stay in process.
	Feed notify.Feed
}

// OpenCore validates cfg and connects to the store and Kafka. It does not
// run migrations.
func OpenCore(cfg *config.Config, log *slog.Logger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	core := &Core{
		Cfg:    cfg,
		Log:    log,
		DB:     db,
		Store:  store.New(db),
		Events: kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.Topic, log),
	}
	if cfg.Realtime.Feed == "postgres" {
		core.Feed = notify.NewPGFeed(db, cfg.DatabaseURL(), cfg.Realtime.Channel, core.Store.GetRequest, log)
	}
	return core, nil
}

// Publisher sends committed transitions to Kafka and, when configured, to
// the realtime feed read by the API replicas.
func (c *Core) Publisher() service.Publisher {
	if c.Feed == nil {
		return c.Events
	}
	return notify.Fanout{notify.FeedSink{Feed: c.Feed, Log: c.Log}, c.Events}
}

// Leases builds a lease controller for the one-shot commands.
func (c *Core) Leases() *service.Leases {
	return service.NewLeases(service.Deps{Store: c.Store, Events: c.Publisher(), Log: c.Log}, c.Cfg.Queue.LeaseDuration)
}

// Sweeper builds a sweeper for a single pass, as run by cron.
func (c *Core) Sweeper() *sweeper.Sweeper {
	return sweeper.New(c.Leases(), sweeper.Options{Batch: c.Cfg.Queue.SweepBatch}, c.Log)
}

func (c *Core) Close() error {
	var errs []error
	errs = append(errs, c.Events.Close())
	if sqlDB, err := c.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}

// API приложение: HTTP-сервер и фоновые воркеры (режим api).
type API struct {
	core       *Core
	httpSrv    *http.Server
	broker     *notify.Broker
	sweeper    *sweeper.Sweeper
	dispatcher *feedback.Dispatcher
}

// NewAPI создаёт приложение для режима api: миграции и сборка всех компонентов.
func NewAPI(ctx context.Context, cfg *config.Config, log *slog.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DB.Driver == "postgres" {
		if err := database.MigrateUp(ctx, log, cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	core, err := OpenCore(cfg, log)
	if err != nil {
		return nil, err
	}

	gw, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		_ = core.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}
	gen := fallback.NewGenerator(gw, fallback.Options{
		Window:         cfg.LLM.Window,
		Timeout:        cfg.LLM.Timeout,
		DefaultPersona: cfg.LLM.DefaultPersona,
	}, log)

	var (
		dispatcher *feedback.Dispatcher
		fq         service.FeedbackQueue
	)
	if cfg.Feedback.URL != "" {
		dispatcher = feedback.NewDispatcher(feedback.NewClient(cfg.Feedback.URL, cfg.Feedback.Timeout), core.Store, feedback.Options{
			Workers:    cfg.Feedback.Workers,
			QueueSize:  cfg.Feedback.QueueSize,
			MaxRetries: cfg.Feedback.MaxRetries,
			Timeout:    cfg.Feedback.Timeout,
		}, log)
		fq = dispatcher
	}

	var queue *service.Queue
	feed := core.Feed
	if feed == nil {
		feed = notify.NewLocalFeed()
	}
	broker := notify.NewBroker(feed, func(ctx context.Context) ([]model.Request, error) {
		return queue.ListActive(ctx)
	}, cfg.Realtime.Buffer, log)

	deps := service.Deps{
		Store:    core.Store,
		Events:   notify.Fanout{broker, core.Events},
		Feedback: fq,
		Log:      log,
	}
	queue = service.NewQueue(deps, gen, cfg.LLM.Window)
	leases := service.NewLeases(deps, cfg.Queue.LeaseDuration)
	finalizer := service.NewFinalizer(deps, gen, cfg.LLM.Window)
	conversations := service.NewConversations(deps)
	sw := sweeper.New(leases, sweeper.Options{Interval: cfg.Queue.SweepInterval, Batch: cfg.Queue.SweepBatch}, log)

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET is empty, trusting X-Caller-Id headers")
	}
	h := router.New(router.Handlers{
		Health:        handler.NewHealthHandler(core.Store),
		Requests:      handler.NewRequestHandler(queue, leases, finalizer, cfg.Queue.PendingLimit),
		Conversations: handler.NewConversationHandler(conversations),
		Events:        handler.NewEventHandler(broker),
		Admin:         handler.NewAdminHandler(sw),
	}, middleware.NewIdentity(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer), log)

	return &API{
		core: core,
		httpSrv: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// No WriteTimeout: it would cut the event stream.
			IdleTimeout: 60 * time.Second,
		},
		broker:     broker,
		sweeper:    sw,
		dispatcher: dispatcher,
	}, nil
}

// Run запускает HTTP-сервер и воркеры, блокируется до отмены ctx или первой ошибки.
func (a *API) Run(ctx context.Context) error {
	log := a.core.Log
	host := a.core.Cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.core.Cfg.HTTPPort
	log.Info("HTTP server listening", "addr", a.httpSrv.Addr,
		"swagger", base+router.PathSwagger,
		"health", base+router.PathHealth,
		"api", base+router.PathAPI)

	g, ctx := errgroup.WithContext(ctx)
	// Request contexts end with ctx, which closes open event streams.
	a.httpSrv.BaseContext = func(net.Listener) context.Context { return ctx }
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.broker.Run(ctx) })
	g.Go(func() error { return a.sweeper.Run(ctx) })
	if a.dispatcher != nil {
		g.Go(func() error { return a.dispatcher.Run(ctx) })
	}

	err := g.Wait()
	if cerr := a.core.Close(); cerr != nil {
		log.Warn("close", "error", cerr)
	}
	return err
}
