package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	arbiterpkg "arbiter/internal/arbiter"
	"arbiter/internal/bus"
	"arbiter/internal/config"
	cronrunner "arbiter/internal/cron"
	"arbiter/internal/db"
	"arbiter/internal/handler"
	"arbiter/internal/logger"
	"arbiter/internal/order"
	"arbiter/internal/ownership"
	"arbiter/internal/registry"
	gormrepository "arbiter/internal/repository/gorm"
)

func main() {
	cfgPath := os.Getenv("ARB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ARB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := gormrepository.New(dbConn.Gorm)

	eventBus := bus.New(bus.Config{
		SubscriberBuffer: cfg.EventBus.SubscriberBuffer,
		RetryAttempts:    cfg.EventBus.RetryAttempts,
		RetryBaseDelay:   cfg.EventBus.RetryBaseDelay,
		DeliveryCeiling:  cfg.EventBus.DeliveryCeiling,
	}, logger)

	strategyRegistry := &registry.Registry{Repo: store, Logger: logger}
	ownershipStore := &ownership.Store{Repo: store, Logger: logger}
	transferSvc := &ownership.Transfer{Repo: store, Bus: eventBus, Logger: logger}
	conflictArbiter := &arbiterpkg.Arbiter{
		Registry:    strategyRegistry,
		Ownership:   ownershipStore,
		Transfer:    transferSvc,
		Repo:        store,
		Bus:         eventBus,
		Logger:      logger,
		MaxAttempts: cfg.Arbiter.MaxAttempts,
	}
	orderGate := &order.Gate{Repo: store, Arbiter: conflictArbiter, Logger: logger}

	// Arbitration outcomes land in the service log as well, through the same
	// best-effort path external subscribers use.
	eventBus.Subscribe(ctx, "audit-log", func(ctx context.Context, ev bus.Event) error {
		logger.Info("arbitration event",
			zap.String("type", string(ev.Type)),
			zap.String("symbol", ev.Symbol),
			zap.Uint64("requesting_strategy_id", ev.RequestingStrategyID),
			zap.String("resolution", ev.Resolution),
			zap.String("reasoning", ev.Reasoning),
		)
		return nil
	})

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	strategyHandler := &handler.StrategyHandler{Registry: strategyRegistry, Repo: store}
	strategyHandler.Register(engine)
	ownershipHandler := &handler.OwnershipHandler{Store: ownershipStore, Repo: store}
	ownershipHandler.Register(engine)
	conflictHandler := &handler.ConflictHandler{Repo: store, Arbiter: conflictArbiter}
	conflictHandler.Register(engine)
	orderHandler := &handler.OrderHandler{Repo: store, Gate: orderGate, Arbiter: conflictArbiter}
	orderHandler.Register(engine)
	eventFeed := &handler.EventFeedHandler{Bus: eventBus, Logger: logger}
	eventFeed.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.LockSweep, func(ctx context.Context) {
			if _, err := ownershipStore.SweepExpiredLocks(ctx, time.Now().UTC()); err != nil {
				logger.Warn("lock sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register lock sweep failed", zap.Error(err))
		}
		if cfg.Cron.SnapshotsEnabled {
			_, err = cronRunner.Add(cfg.Cron.DailySnapshot, func(ctx context.Context) {
				n, err := ownershipStore.Snapshot(ctx, time.Now().UTC())
				if err != nil {
					logger.Warn("ownership snapshot failed", zap.Error(err))
					return
				}
				logger.Info("ownership snapshot written", zap.Int("rows", n))
			})
			if err != nil {
				logger.Warn("cron register ownership snapshot failed", zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
