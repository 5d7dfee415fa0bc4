package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"convoy/internal/api"
	"convoy/internal/api/handlers"
	"convoy/internal/config"
	"convoy/internal/logger"
	"convoy/internal/repository"
	"convoy/internal/services"
)

func main() {
	if err := run(); err != nil {
		logger.L().Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	// Initialize services
	publisher := services.NewProximityPublisher(b.positions)
	gate := services.NewMovementGate(cfg.Movement.MinDistanceMeters, cfg.Movement.MinInterval)
	nearbyService := services.NewNearbyService(b.querier, cfg)
	sosService := services.NewSOSService(b.sos, b.locks, cfg)
	rideService := services.NewRideService(b.rides)

	searcher, _ := b.positions.(repository.PositionSearcher)

	// Setup router
	router := api.NewRouter(
		handlers.NewLocationHandler(publisher, gate, b.positions, searcher),
		handlers.NewNearbyHandler(nearbyService),
		handlers.NewSOSHandler(sosService),
		handlers.NewRideHandler(rideService),
	)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	router.Setup(engine)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting convoy server",
			"addr", cfg.Server.Port,
			"store", cfg.Store.Backend,
			"positions", cfg.Store.PositionBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
