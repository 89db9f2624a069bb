package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/stocklinehq/stockline-backend/api/routes"
	"github.com/stocklinehq/stockline-backend/internal/auditlog"
	"github.com/stocklinehq/stockline-backend/internal/bootstrap"
	"github.com/stocklinehq/stockline-backend/internal/containers"
	"github.com/stocklinehq/stockline-backend/internal/idempotency"
	"github.com/stocklinehq/stockline-backend/internal/inventory"
	"github.com/stocklinehq/stockline-backend/internal/materials"
	"github.com/stocklinehq/stockline-backend/internal/orders"
	"github.com/stocklinehq/stockline-backend/internal/topology"
	"github.com/stocklinehq/stockline-backend/internal/users"
	"github.com/stocklinehq/stockline-backend/pkg/config"
	"github.com/stocklinehq/stockline-backend/pkg/db"
	"github.com/stocklinehq/stockline-backend/pkg/logger"
	"github.com/stocklinehq/stockline-backend/pkg/metrics"
	"github.com/stocklinehq/stockline-backend/pkg/migrate"
	"github.com/stocklinehq/stockline-backend/pkg/redis"

	"github.com/prometheus/client_golang/prometheus"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	seeder, err := bootstrap.NewSeeder(bootstrap.Params{Logger: logg, DB: dbClient, Cfg: cfg})
	if err != nil {
		logg.Error(context.Background(), "failed to create seeder", err)
		os.Exit(1)
	}
	if err := seeder.Run(context.Background()); err != nil {
		logg.Error(context.Background(), "startup seed failed", err)
		os.Exit(1)
	}

	handler, err := buildHandler(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-stopCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "server shutdown failed", err)
		}
	}

	if err := multierr.Append(dbClient.Close(), redisClient.Close()); err != nil {
		logg.Error(ctx, "error closing clients", err)
	}
	logg.Info(ctx, "api server stopped")
}

func buildHandler(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	conn := dbClient.DB()
	audit := auditlog.NewRecorder()
	ledger := inventory.NewLedger(metrics.NewLedgerMetrics(prometheus.DefaultRegisterer))

	inventoryRepo := inventory.NewRepository(conn)
	inventorySvc, err := inventory.NewService(inventoryRepo, dbClient, ledger, audit)
	if err != nil {
		return nil, err
	}

	materialsSvc, err := materials.NewService(materials.NewRepository(conn), dbClient, audit)
	if err != nil {
		return nil, err
	}

	containersRepo := containers.NewRepository(conn)
	containersSvc, err := containers.NewService(containersRepo, inventoryRepo, dbClient, ledger, audit)
	if err != nil {
		return nil, err
	}

	topologySvc, err := topology.NewService(topology.NewRepository(conn), containersRepo, dbClient, audit)
	if err != nil {
		return nil, err
	}

	ordersSvc, err := orders.NewService(orders.NewRepository(conn), inventoryRepo, dbClient, ledger, audit)
	if err != nil {
		return nil, err
	}

	usersSvc, err := users.NewService(
		users.NewRepository(conn),
		dbClient,
		audit,
		redisClient,
		cfg.JWT,
		cfg.Password,
		cfg.AuthRateLimit,
	)
	if err != nil {
		return nil, err
	}

	idemStore, err := idempotency.NewStore(conn, cfg.Idempotency.InFlightTTL)
	if err != nil {
		return nil, err
	}
	opLogReader, err := auditlog.NewReader(conn)
	if err != nil {
		return nil, err
	}

	return routes.NewRouter(routes.RouterParams{
		Cfg:              cfg,
		Logger:           logg,
		DB:               dbClient,
		Redis:            redisClient,
		IdempotencyStore: idemStore,
		OpLogReader:      opLogReader,
		Users:            usersSvc,
		Materials:        materialsSvc,
		Topology:         topologySvc,
		Inventory:        inventorySvc,
		Orders:           ordersSvc,
		Containers:       containersSvc,
	}), nil
}
