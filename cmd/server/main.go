// Command server runs the DuckBunn POS backend. Storage is PostgreSQL when
// DATABASE_URL is set, otherwise a seeded in-memory store for local work.
// Redis and SMTP are optional in the same way.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duckbunn/backend/internal/cache"
	"duckbunn/backend/internal/config"
	"duckbunn/backend/internal/httpapi"
	"duckbunn/backend/internal/mailer"
	"duckbunn/backend/internal/service"
	"duckbunn/backend/internal/store"
	"duckbunn/backend/internal/store/memory"
	"duckbunn/backend/internal/store/postgres"
	"duckbunn/backend/internal/sweeper"
)

func main() {
	cfg := config.Load()
	if err := run(cfg); err != nil {
		log.Fatalf("[server] FATAL: %v", err)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	statusCache, closeCache := openCache(ctx, cfg)
	defer closeCache()

	var notifier mailer.Notifier = mailer.LogNotifier{}
	if cfg.SMTPAddr != "" {
		notifier = mailer.NewSMTP(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		log.Printf("[server] receipt mail via %s", cfg.SMTPAddr)
	}

	svc := service.New(repo, statusCache, notifier, service.Options{
		CancelWindow: cfg.OrderCancelWindow,
		StaleAfter:   cfg.StalePendingAfter,
		StatusTTL:    cfg.OrderStatusTTL,
		SalesScope:   cfg.ShiftSalesScope,
	})

	auth, err := httpapi.NewAuthManager(repo, cfg.AuthSecret, cfg.AccessTokenTTL)
	if err != nil {
		return err
	}
	if err := auth.Bootstrap(ctx, cfg.SeedAdminPassword, cfg.SeedCashierPassword); err != nil {
		return err
	}

	sw := sweeper.New(svc, cfg.SweepInterval)
	sw.Start(ctx)
	defer sw.Stop()

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           httpapi.NewServer(svc, auth),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("[server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRepository(ctx context.Context, cfg config.Config) (store.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Printf("[server] WARN: DATABASE_URL not set, using in-memory store")
		return memory.NewSeeded(), func() {}, nil
	}
	pg, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	log.Printf("[server] connected to postgres")
	return pg, func() { _ = pg.Close() }, nil
}

func openCache(ctx context.Context, cfg config.Config) (cache.OrderStatusCache, func()) {
	if cfg.RedisAddr == "" {
		return cache.NoopOrderStatusCache{}, func() {}
	}
	rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Printf("[server] WARN: redis unavailable, order status cache disabled: %v", err)
		return cache.NoopOrderStatusCache{}, func() {}
	}
	log.Printf("[server] order status cache on %s", cfg.RedisAddr)
	return rc, func() { _ = rc.Close() }
}
