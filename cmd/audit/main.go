package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/booking-engine/internal/config"
	"github.com/iliyamo/booking-engine/internal/obs"
	"github.com/iliyamo/booking-engine/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config: load failed")
	}
	log := obs.NewLogger(cfg.Log, cfg.IsProd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.AuditConsumer{
		URL:      cfg.RabbitMQ.URL,
		Exchange: cfg.RabbitMQ.Exchange,
		Queue:    cfg.RabbitMQ.AuditQueue,
		LogPath:  cfg.RabbitMQ.AuditLog,
		Log:      log,
	}
	log.WithFields(logrus.Fields{"queue": c.Queue, "log": c.LogPath}).Info("audit-consumer: starting")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("audit-consumer: stopped")
	}
	log.Info("audit-consumer: stopped")
}
