package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/ads-dashboard/internal/adevents"
	"github.com/suPer8Hu/ads-dashboard/internal/config"
	"github.com/suPer8Hu/ads-dashboard/internal/db"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
	"github.com/suPer8Hu/ads-dashboard/internal/store/docstore"
	"github.com/suPer8Hu/ads-dashboard/internal/store/rabbitmq"
	"github.com/suPer8Hu/ads-dashboard/internal/store/redisstore"
)

const (
	maxAttempts = 5
	retryDelay  = 10 * time.Second
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", "error", err)
	}
	store := docstore.New(gdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("redis connect failed", "error", err)
	}
	defer rdb.Close()
	cache := redisstore.NewTagCache(store, rdb, 0, log)

	handler := adevents.NewHandler(store, cache, log)

	// retries are published back through the same topology
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit publisher failed", "error", err)
	}
	defer pub.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial failed", "error", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel failed", "error", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare failed", "error", err)
	}

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos failed", "error", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume failed", "error", err)
	}

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	deliveries := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With("worker", workerID)
			for d := range deliveries {
				handleDelivery(ctx, wlog, handler, pub, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(deliveries)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				close(deliveries)
				wg.Wait()
				return
			}
			deliveries <- d
		}
	}
}

func handleDelivery(ctx context.Context, log *logger.Logger, h *adevents.Handler, pub *rabbitmq.Publisher, d amqp.Delivery) {
	start := time.Now()
	err := h.Handle(ctx, d.Body)
	if err == nil {
		if err := d.Ack(false); err != nil {
			log.Warn("ack failed", "error", err)
		}
		return
	}

	attempt := rabbitmq.Attempt(d) + 1
	log.Warn("ad event failed", "attempt", attempt, "cost", time.Since(start), "error", err)

	if errors.Is(err, adevents.ErrBadMessage) || attempt >= maxAttempts {
		// dead-lettered to the DLQ
		_ = d.Nack(false, false)
		return
	}
	if err := pub.Retry(ctx, d.Body, attempt, retryDelay); err != nil {
		log.Error("retry publish failed", "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}
