package main

import (
	"context"
	"database/sql"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"rently/internal/adapters/listings"
	"rently/internal/adapters/observability"
	redisad "rently/internal/adapters/redis"
	"rently/internal/app"
	"rently/internal/domain"
	"rently/internal/shared"
	mysqlrepo "rently/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	log.Info().
		Str("base", cfg.ListingsBase).
		Int("workers", cfg.SyncWorkers).
		Int("listings", len(cfg.SyncIDs)).
		Msg("listing sync starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")
	if cfg.Migrate {
		if err := mysqlrepo.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}
	repo := mysqlrepo.New(db)

	client, err := listings.New(cfg.ListingsBase, cfg.ListingsKey, cfg.ListingsRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize listings client")
	}

	// cached property reads must not outlive a sync
	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		cache = redisad.New(rc)
	}
	svc := app.NewSyncService(client, repo, cache)

	workers := cfg.SyncWorkers
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)

	for _, id := range cfg.SyncIDs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("sync interrupted")
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			if err := svc.SyncListing(ctx, id); err != nil {
				failed.Add(1)
				log.Warn().Str("id", id).Err(err).Msg("listing sync failed")
				return
			}
			log.Info().Str("id", id).Msg("listing sync ok")
		}(id)
	}
	wg.Wait()

	n, err := svc.SyncPromotions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("promotion sync failed")
	} else {
		log.Info().Int("coupons", n).Msg("promotion sync ok")
	}

	log.Info().Int64("failed", failed.Load()).Msg("sync completed")
}
