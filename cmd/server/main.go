package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/ai"
	"github.com/suPer8Hu/ads-dashboard/internal/chat"
	"github.com/suPer8Hu/ads-dashboard/internal/config"
	"github.com/suPer8Hu/ads-dashboard/internal/db"
	"github.com/suPer8Hu/ads-dashboard/internal/httpapi"
	"github.com/suPer8Hu/ads-dashboard/internal/httpapi/handlers"
	"github.com/suPer8Hu/ads-dashboard/internal/logger"
	"github.com/suPer8Hu/ads-dashboard/internal/store/docstore"
	"github.com/suPer8Hu/ads-dashboard/internal/store/rabbitmq"
	"github.com/suPer8Hu/ads-dashboard/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", "error", err)
	}
	if err := docstore.Migrate(gdb); err != nil {
		log.Fatal("automigrate failed", "error", err)
	}
	store := docstore.New(gdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal("redis connect failed", "error", err)
	}
	defer rdb.Close()

	// turns are bounded by ChatTimeout, so the lock outlives any turn
	states := redisstore.NewStateStore(rdb, cfg.StateTTL, cfg.ChatTimeout+30*time.Second, log)
	tagCache := redisstore.NewTagCache(store, rdb, 0, log)

	// ad events are optional; without a broker the cache is still invalidated inline
	var events ads.Publisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Warn("rabbit unavailable, ad events disabled", "error", err)
	} else {
		defer pub.Close()
		events = pub
	}

	browser := ads.NewBrowser(tagCache, events, log, cfg.AdsPageSize)

	if cfg.ChatWebhookURL == "" {
		log.Warn("CHAT_WEBHOOK_URL is empty; chat turns will fail")
	}
	webhook := ai.NewWebhookClient(cfg.ChatWebhookURL, cfg.ChatAPIKeyHeader, cfg.ChatAPIKey, cfg.ChatTimeout, log)
	chatSvc := chat.NewController(store, webhook, log, chat.Options{
		Model:           cfg.ChatModel,
		IsTestChat:      cfg.ChatIsTest,
		HistoryPageSize: cfg.HistoryPageSize,
		TurnTimeout:     cfg.ChatTimeout,
	})

	h := handlers.NewHandler(cfg, log, states, browser, chatSvc)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}
