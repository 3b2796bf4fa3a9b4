package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"collabsync/backend/config"
	"collabsync/backend/internal/authservice"
	"collabsync/backend/internal/cache"
	"collabsync/backend/internal/httpapi/middleware"
	"collabsync/backend/internal/store"
	"collabsync/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if cfg.Auth.Secret != "" {
		authservice.SetSecret(cfg.Auth.Secret)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis unreachable: %v", err)
	}
	defer rdb.Close()

	db, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("mysql init failed: %v", err)
	}

	// audit stream is optional; without brokers the dispatcher no-ops
	var producer sarama.SyncProducer
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err = sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("kafka unreachable: %v", err)
		}
		defer producer.Close()
	}

	presence := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presence)
	docs := store.NewDocumentStore(db)
	grants := store.NewCollaboratorStore(db)
	dispatcher := ws.NewDispatcher(producer, cfg.Kafka.Topic, ws.NewSemaphore(100), ws.DispatcherOptions{
		QueueSize: cfg.Collab.AuditQueueSize,
		Workers:   cfg.Collab.AuditWorkers,
		MaxRetry:  cfg.Collab.AuditMaxRetry,
	}, logger)
	manager := ws.NewManager(hub, docs, grants, dispatcher, logger)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	collab := r.Group("/collab")
	collab.Use(middleware.Auth())
	collab.GET("/ws", manager.Connect)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
