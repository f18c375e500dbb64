package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"hawkview/internal/config"
	"hawkview/internal/db"
	"hawkview/internal/hawkular"
	"hawkview/internal/instrument"
	"hawkview/internal/inventory"
	"hawkview/internal/notifier"
	"hawkview/internal/retention"
	"hawkview/internal/scheduler"
	"hawkview/internal/stream"
	"hawkview/internal/tenant"
	"hawkview/internal/triggers"
	"hawkview/internal/views"
	"hawkview/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	db        *db.Repository
	backend   *hawkular.Client
	tenants   *tenant.Context
	loader    *tenant.Loader
	views     *views.Registry
	sessions  *triggers.Sessions
	hub       *stream.Hub
	retention *retention.Service
	notify    *notifier.Telegram

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	backend, err := hawkular.NewClient(cfg.BackendURL, cfg.RequestTimeout)
	if err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("backend client: %w", err)
	}

	token, chatID, _ := repo.LoadTelegramSettings(context.Background())
	if token == "" {
		token = cfg.TelegramBotToken
	}
	if chatID == "" {
		chatID = cfg.TelegramChatID
	}
	n := notifier.NewTelegram(token, chatID)
	journal := notifier.NewJournal(repo, n, logger.With("module", "notifier"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := instrument.New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	tenants := tenant.NewContext()
	hub := stream.NewHub(logger)
	registry := views.NewRegistry(ctx, views.Deps{
		Backend:   backend,
		Tenants:   tenants,
		Scheduler: scheduler.New(nil, logger),
		Sink:      journal,
		Metrics:   metrics,
		Publisher: hub,
		Logger:    logger,
		Interval:  cfg.RefreshInterval,
		Offset:    cfg.TimeOffset,
		Bucket:    cfg.BucketDuration,
		Inventory: inventory.Config{Environment: cfg.Environment, ResourceType: cfg.ResourceType},
	})
	sessions := triggers.NewSessions()
	loader := tenant.NewLoader(backend, tenants, journal, logger)

	w := web.NewServer(web.Options{
		Views:    registry,
		Editors:  triggers.NewRegistry(backend, journal, logger),
		Sessions: sessions,
		Tenants:  tenants,
		Personas: loader,
		Store:    repo,
		Telegram: n,
		Hub:      hub,
		Metrics:  metrics,
		Gatherer: reg,
		Checks: map[string]web.Check{
			"db":      repo.DB().PingContext,
			"backend": backend.Status,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	app := &App{
		cfg:       cfg,
		log:       logger,
		ctx:       ctx,
		cancel:    cancel,
		db:        repo,
		backend:   backend,
		tenants:   tenants,
		loader:    loader,
		views:     registry,
		sessions:  sessions,
		hub:       hub,
		retention: retention.NewService(repo, sessions, cfg.RetentionDays, logger),
		notify:    n,
	}
	app.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.cancel()
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// The persona decides which tenant every view queries; views opened
	// before it arrives start fetching once it does.
	if _, err := a.loader.LoadCurrent(ctx); err != nil {
		a.log.Warn("starting without a persona", "err", err)
	}
	a.views.Servers()

	retentionTicker := time.NewTicker(a.cfg.RetentionInterval)
	defer retentionTicker.Stop()
	a.retention.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return a.shutdown(nil)
		case err := <-errCh:
			a.log.Error("http server failed", "err", err)
			return a.shutdown(err)
		case <-retentionTicker.C:
			a.retention.Run(ctx)
		}
	}
}

func (a *App) shutdown(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	err := a.httpSrv.Shutdown(ctx)
	a.sessions.CloseAll()
	a.views.CloseAll()
	a.hub.Close()
	a.cancel()
	return errors.Join(cause, err, a.db.DB().Close())
}
