package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/groshare/groupbuy/internal/config"
	"github.com/groshare/groupbuy/internal/email"
	kafkax "github.com/groshare/groupbuy/internal/infrastructure/kafka"
	"github.com/groshare/groupbuy/internal/notification"
	"github.com/groshare/groupbuy/internal/pubsub"
)

// The notifier daemon consumes lifecycle events from Kafka and mails
// participants on locked and completed milestones. It runs out of process so
// a slow SMTP relay never touches API latency.
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the notifier daemon")
	}

	var notifier notification.Notifier
	if cfg.SMTPHost != "" {
		mailer := email.NewService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
		notifier = notification.NewEmailNotifier(mailer, notification.StaticDirectory(cfg.Directory), log)
	} else {
		log.Warn("no SMTP host configured, notifications are log-only")
		notifier = notification.LogNotifier{Log: log}
	}
	handler := notification.NewHandler(notifier, log)

	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, pubsub.Topic, cfg.KafkaGroupID, log)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"topic": pubsub.Topic,
		"group": cfg.KafkaGroupID,
	}).Info("notifier consuming")

	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("consumer stopped")
	}
	log.Info("notifier shutdown complete")
}
