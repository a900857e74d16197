package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/match-setup-backend/internal/config"
	"github.com/DoyleJ11/match-setup-backend/internal/engine"
	"github.com/DoyleJ11/match-setup-backend/internal/finalize"
	"github.com/DoyleJ11/match-setup-backend/internal/httpapi"
	"github.com/DoyleJ11/match-setup-backend/internal/hub"
	"github.com/DoyleJ11/match-setup-backend/internal/lobby"
	"github.com/DoyleJ11/match-setup-backend/internal/logging"
	"github.com/DoyleJ11/match-setup-backend/internal/metrics"
	"github.com/DoyleJ11/match-setup-backend/internal/provision"
	"github.com/DoyleJ11/match-setup-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Debug:      cfg.Debug,
	})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}
		servers := make([]engine.MatchServer, len(seed.Servers))
		for i, s := range seed.Servers {
			servers[i] = engine.MatchServer{Label: s.Region, ServerID: s.ServerID}
		}
		if err := db.Seed(ctx, seed.Maps, servers, seed.Tokens); err != nil {
			return err
		}
		log.Info("seed applied", zap.String("file", cfg.SeedFile), zap.Int("maps", len(seed.Maps)))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	provisioner := provision.New(
		provision.NewDathostClient(cfg.DathostURL, cfg.DathostUser, cfg.DathostPassword),
		db,
		provision.StoreRoster{Store: db},
		log.Named("provision"),
	)
	h := hub.NewHub(ctx, lobby.Deps{
		Finalizer:     finalize.New(db, log.Named("finalize")),
		Provisioner:   provisioner,
		Metrics:       metrics.NewMetrics(registry),
		Logger:        log.Named("lobby"),
		ConnectWindow: cfg.ConnectWindow,
	}, hub.NewRedisLocker(rdb, cfg.LockTTL, log.Named("lock")))

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:       h,
			Store:     db,
			AdminRole: engine.TeamID(cfg.AdminRoleID),
			Logger:    log.Named("http"),
		}, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
