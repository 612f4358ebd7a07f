package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parkgate/parkgate/internal/config"
	"github.com/parkgate/parkgate/internal/postgres"
	"github.com/parkgate/parkgate/internal/redis"
	"github.com/parkgate/parkgate/internal/repository"
	memoryrepo "github.com/parkgate/parkgate/internal/repository/memory"
	postgresrepo "github.com/parkgate/parkgate/internal/repository/postgres"
	redisrepo "github.com/parkgate/parkgate/internal/repository/redis"
	"github.com/parkgate/parkgate/internal/service"
	"github.com/parkgate/parkgate/internal/service/allocation"
	"github.com/parkgate/parkgate/internal/service/booking"
	httpgin "github.com/parkgate/parkgate/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	booking    *booking.Service
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	var store repository.Store

	switch cfg.Store {
	case config.StoreMemory:
		store = memoryrepo.NewStore()
		logger.Warn("running on the in-memory store; state is not persisted")
	default:
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.Postgres.User,
			cfg.Postgres.Password,
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.Name,
			cfg.Postgres.SSLMode,
		)

		pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}

		store = postgresrepo.NewStore(pgxPool)
	}

	// Redis is optional: without it the engine runs uncached, events
	// are not broadcast and entry idempotency falls back to the
	// duplicate-plate guard alone.
	var (
		cache   *redisrepo.Cache
		pubsub  *redisrepo.LifecyclePubSub
		limiter *redisrepo.SlidingWindowLimiter
		idem    *redisrepo.IdempotencyStore
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(context.Background(), redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}

		cache = redisrepo.New(rdb)
		pubsub = redisrepo.NewLifecyclePubSub(rdb)
		limiter = redisrepo.NewSlidingWindowLimiter(rdb, redisrepo.KeyRateLimitPrefix("reservations"), 10, time.Minute)
		idem = redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	}

	services := service.NewServices(store, cache, pubsub, limiter, service.Config{
		Allocation: allocation.Config{
			DefaultHourlyRate: cfg.Engine.DefaultHourlyRate,
		},
		Booking: booking.Config{
			MaxHorizon: cfg.Engine.ReservationHorizon,
		},
	})

	router := httpgin.NewRouter(services, idem, logger)

	return &App{
		cfg:     cfg,
		logger:  logger,
		booking: services.Booking,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// No-show sweeper: reservations whose window passed without a
	// check-in release their held spots.
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Engine.NoShowSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				n, err := a.booking.ExpireNoShows(gCtx)
				if err != nil {
					a.logger.Error("no-show sweep failed", "error", err)
					continue
				}
				if n > 0 {
					a.logger.Info("expired no-show reservations", "count", n)
				}
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
