package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appsync "github.com/brunovarela/notesync/internal/application/sync"
	"github.com/brunovarela/notesync/internal/backend"
	"github.com/brunovarela/notesync/internal/bootstrap"
	"github.com/brunovarela/notesync/internal/connectivity"
	"github.com/brunovarela/notesync/internal/controller"
	"github.com/brunovarela/notesync/internal/domain/outbox"
	"github.com/brunovarela/notesync/internal/draft"
	"github.com/brunovarela/notesync/internal/flush"
	infraRedis "github.com/brunovarela/notesync/internal/infrastructure/redis"
	"github.com/brunovarela/notesync/internal/lease"
	memoryStore "github.com/brunovarela/notesync/internal/store/memory"
	postgresStore "github.com/brunovarela/notesync/internal/store/postgres"
	"github.com/brunovarela/notesync/pkg/retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "notesync-syncd", "notesync")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config

	// --- Storage, lease and drafts per configured driver ---
	var (
		store      outbox.Store
		flushLease lease.Lease
		drafts     draft.Store
		notifier   outbox.Notifier
	)
	if cfg.Sync.StoreDriver == "postgres" {
		store = postgresStore.NewOutboxStore(app.Pool)
		flushLease = infraRedis.NewFlushLease(app.Redis, cfg.Sync.UserID, cfg.Sync.LeaseTTL)
		drafts = infraRedis.NewDraftStore(app.Redis, cfg.Sync.DraftTTL)
		notifier = infraRedis.NewChangeNotifier(app.Redis)
	} else {
		store = memoryStore.New()
		flushLease = lease.NewMemoryLease("flush:"+cfg.Sync.UserID, cfg.Sync.LeaseTTL)
		drafts = draft.NewMemoryStore()
	}

	client := backend.NewHTTPClient(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)

	svc, err := appsync.NewService(ctx, cfg.Sync.UserID, appsync.Deps{
		Store:    store,
		Client:   client,
		Lease:    flushLease,
		Notifier: notifier,
		Drafts:   drafts,
		Policy: retry.Policy{
			Base:        cfg.Sync.RetryBase,
			MaxDelay:    cfg.Sync.RetryMaxDelay,
			MaxAttempts: cfg.Sync.MaxAttempts,
		},
		Finalize: retry.Config{
			MaxAttempts:  uint(cfg.Sync.MaxAttempts),
			InitialDelay: cfg.Sync.RetryBase,
			MaxDelay:     cfg.Sync.RetryMaxDelay,
		},
		Flush: flush.Config{
			Parallelism:      cfg.Sync.Parallelism,
			AttemptTimeout:   cfg.Sync.AttemptTimeout,
			FallbackInterval: cfg.Sync.FallbackInterval,
			LeaseTTL:         cfg.Sync.LeaseTTL,
		},
		Monitor: connectivity.Config{
			Debounce:       cfg.Sync.Debounce,
			ProbeInterval:  cfg.Sync.ProbeInterval,
			ProbeStaleness: cfg.Sync.ProbeStaleness,
			ProbeTimeout:   cfg.Sync.ProbeTimeout,
		},
		Logger:  app.Logger,
		Metrics: app.Metrics,
	})
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build sync engine")
	}
	defer svc.Close()

	router := controller.NewRouter(controller.RouterDeps{
		Service:     svc,
		Pool:        app.Pool,
		RedisClient: app.Redis,
		Metrics:     app.Metrics,
		CORSConfig:  cfg.Server.CORS,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(gctx)
	})

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting control API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Flushes enqueued by other processes sharing the store wake this one too.
	if app.Redis != nil {
		changes, err := infraRedis.NewChangeNotifier(app.Redis).SubscribeChanges(gctx, cfg.Sync.UserID)
		if err != nil {
			app.Logger.Warn().Err(err).Msg("Change subscription unavailable")
		} else {
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case _, ok := <-changes:
						if !ok {
							return nil
						}
						svc.Wake()
					}
				}
			})
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Shutdown with error")
		os.Exit(1)
	}
	app.Logger.Info().Msg("Exited")
}
