package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	server "rently/internal/adapters/http_server"
	"rently/internal/adapters/observability"
	redisad "rently/internal/adapters/redis"
	"rently/internal/app"
	"rently/internal/domain"
	"rently/internal/events"
	"rently/internal/shared"
	"rently/internal/storage/memory"
	mysqlrepo "rently/internal/storage/mysql"
)

// gateway is everything the services need from storage.
type gateway interface {
	domain.BookingStore
	domain.TicketRepository
	domain.RoleChangeRepository
	domain.NotificationSink
}

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	reg := observability.InitRegistry()
	metricsSrv := observability.Serve(cfg.MetricsAddr, reg)

	store, closeStore := openStore(cfg)
	defer closeStore()

	bus := events.NewDispatcher()
	app.NewNotifier(store).Register(bus)

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		cache = redisad.New(rc)
		redisad.NewRelay(rc, cfg.EventsChannel).Register(bus)
		log.Info().Str("addr", cfg.RedisAddr).Str("channel", cfg.EventsChannel).Msg("redis cache and event relay enabled")
	}

	q := app.NewQueryService(store, cache, cfg.CacheTTL())
	h := &server.Handlers{
		Engine:  app.NewReservationEngine(store, bus, app.WithPropertySource(q)),
		Q:       q,
		Tickets: app.NewTicketService(store, app.WithStampEveryClose(cfg.StampEveryClose)),
		Roles:   app.NewRoleChangeService(store, bus),
	}

	// http
	srv := server.New(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst))
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(h)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("storage", cfg.Storage).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

func openStore(cfg shared.Config) (gateway, func()) {
	if cfg.Storage == "memory" {
		log.Warn().Msg("using in-memory storage; data is lost on restart")
		return memory.New(), func() {}
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	if cfg.Migrate {
		if err := mysqlrepo.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}
	return mysqlrepo.New(db), func() { _ = db.Close() }
}
