package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/booking-engine/internal/config"
	"github.com/iliyamo/booking-engine/internal/database"
	"github.com/iliyamo/booking-engine/internal/handler"
	"github.com/iliyamo/booking-engine/internal/middleware"
	"github.com/iliyamo/booking-engine/internal/obs"
	"github.com/iliyamo/booking-engine/internal/queue"
	"github.com/iliyamo/booking-engine/internal/repository"
	"github.com/iliyamo/booking-engine/internal/repository/memory"
	"github.com/iliyamo/booking-engine/internal/router"
	"github.com/iliyamo/booking-engine/internal/service"
	"github.com/iliyamo/booking-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config: load failed")
	}
	log := obs.NewLogger(cfg.Log, cfg.IsProd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, cfg.App.ServiceName, cfg.App.Env, cfg.OTEL.ExporterOTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("otel: init failed")
	}

	st, db, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("store: open failed")
	}
	health := handler.Health{}
	if db != nil {
		defer db.Close()
		health.DB = db
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	} else if cfg.Redis.Enabled {
		log.Warn("redis: unreachable, rate limiting falls back to in-process buckets and caching is off")
	}

	var pub service.EventPublisher = queue.Nop{}
	if cfg.RabbitMQ.Enabled {
		p, err := queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.WithError(err).Warn("rabbitmq: publisher unavailable, events will be dropped")
		} else {
			defer p.Close()
			pub = p
		}
	}

	policy := service.PricingPolicy{
		DefaultTaxRateBP:      cfg.Pricing.DefaultTaxRateBP,
		CommissionRateBP:      cfg.Pricing.CommissionRateBP,
		TCSRateBP:             cfg.Pricing.TCSRateBP,
		DefaultAdvancePercent: cfg.Pricing.DefaultAdvancePercent,
	}
	bookings := service.NewBookingService(st, pub, log, policy)
	reschedules := service.NewRescheduleService(st, pub, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger(log))

	guards := router.Guards{
		JWTSecret:  cfg.JWT.Secret,
		RateLimit:  middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
		Cache:      middleware.NewRedisCache(cfg.Cache, rdb),
		Invalidate: middleware.InvalidateCache(cfg.Cache, rdb, log),
	}
	router.RegisterRoutes(e, health)
	router.RegisterBookings(e, handler.NewBookingHandler(bookings), guards)
	router.RegisterReschedules(e, handler.NewRescheduleHandler(reschedules), guards)

	addr := ":" + cfg.App.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.App.Env, "store": cfg.App.StoreDriver}).Info("http: listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http: server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http: shutdown failed")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.WithError(err).Warn("otel: flush failed")
	}
}

// openStore builds the configured store. The returned *sql.DB is nil for
// the in-memory driver.
func openStore(ctx context.Context, cfg config.Config, log *logrus.Logger) (store.Store, *sql.DB, error) {
	if cfg.App.StoreDriver == config.DriverMemory {
		log.Warn("store: using in-memory driver, data is lost on exit")
		return memory.New(), nil, nil
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("database: schema applied")
	}
	return repository.NewStore(db, log), db, nil
}
