// Package app wires the Gatepass server runtime: config, logging, stores,
// services, HTTP routes, and the host notification feed.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"gatepass/cmd/internal/blacklist"
	"gatepass/cmd/internal/gate"
	gateapi "gatepass/cmd/internal/gate/api"
	"gatepass/cmd/internal/notify"
	"gatepass/cmd/internal/visit"
	"gatepass/cmd/visitor"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Gatepass server runtime.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry

	api  *gateapi.Handler
	feed *notify.Feed
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, stores, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := NewMetrics(registry)

	hub := notify.NewHub(log)
	sink := notify.Fanout{hub, notify.LogSink{Log: log}}

	blocked, err := blacklist.NewService(stores.blacklist, stores.visitors, log)
	if err != nil {
		return nil, err
	}
	visits, err := visit.NewService(stores.visits, stores.visitors, blocked, sink, log)
	if err != nil {
		return nil, err
	}
	coord, err := gate.NewCoordinator(stores.visits, stores.visitors, blocked, log,
		gate.WithArrivalWindow(cfg.ArrivalWindow),
		gate.WithLockWait(cfg.GateLockWait),
		gate.WithMetrics(metrics),
		gate.WithSink(sink),
	)
	if err != nil {
		return nil, err
	}

	api, err := gateapi.NewHandler(log, visits, coord, blocked, dbPool, gateapi.Config{
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}

	feed := notify.NewFeed(log, hub, hostFromHeaders, cfg.WSOriginPatterns)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  registry,
		api:       api,
		feed:      feed,
	}, nil
}

// hostFromHeaders authenticates a WebSocket subscriber from gateway headers.
func hostFromHeaders(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	return id, id != ""
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.api, a.feed)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// domainStores bundles the three persistence boundaries the services need.
type domainStores struct {
	visitors  visitor.Store
	visits    visit.Store
	blacklist blacklist.Store
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, domainStores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, domainStores{
			visitors:  visitor.NewInMemoryStore(),
			visits:    visit.NewInMemoryStore(),
			blacklist: blacklist.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, domainStores{}, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model: app owns the pool lifecycle; stores never close it.
	visitors, err := visitor.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, domainStores{}, err
	}
	visits, err := visit.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, domainStores{}, err
	}
	blocked, err := blacklist.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, domainStores{}, err
	}

	return dbStore{pool: pool}, pool, true, domainStores{
		visitors:  visitors,
		visits:    visits,
		blacklist: blocked,
	}, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
