package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/groshare/groupbuy/internal/api"
	"github.com/groshare/groupbuy/internal/auth"
	"github.com/groshare/groupbuy/internal/cache"
	"github.com/groshare/groupbuy/internal/config"
	kafkax "github.com/groshare/groupbuy/internal/infrastructure/kafka"
	"github.com/groshare/groupbuy/internal/infrastructure/store"
	"github.com/groshare/groupbuy/internal/lock"
	"github.com/groshare/groupbuy/internal/notification"
	"github.com/groshare/groupbuy/internal/payment"
	"github.com/groshare/groupbuy/internal/pubsub"
	"github.com/groshare/groupbuy/internal/service"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := newRepository(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init repository")
	}
	defer cleanup()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = cache.NewClient(cfg.RedisAddr)
		defer rdb.Close()
	}

	hub := pubsub.NewHub(log)
	lifecycle := service.New(service.Deps{
		Repo:        repo,
		Locks:       lock.NewKeyedMutex(),
		Publisher:   hub,
		Gateway:     payment.NewSimulatedGateway(cfg.PaymentSuccessRate, cfg.PaymentVerifyRate),
		Notifier:    notification.LogNotifier{Log: log},
		Cache:       cache.NewOrderCache(rdb),
		Idempotency: cache.NewIdempotency(rdb),
		Log:         log,
	})

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.TokenExpiry)
	handlers := api.NewHandlers(lifecycle, hub, log)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewRouter(handlers, jwtService)}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafkax.NewProducer(cfg.KafkaBrokers, pubsub.Topic)
		defer producer.Close()
		bridge := pubsub.NewKafkaBridge(producer, log)
		g.Go(func() error {
			if err := bridge.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// Deadline sweeper: locks or cancels active orders past their deadline.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := lifecycle.ExpireOverdue(ctx); err != nil {
					log.WithError(err).Warn("deadline sweep")
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("shutdown with error")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func newRepository(ctx context.Context, cfg config.Config) (store.Repository, func(), error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return pg, func() { db.Close() }, nil
	case "dynamo":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, err
		}
		return store.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), func() {}, nil
	case "memory":
		return store.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
