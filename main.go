package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"queuemedix-server/internal/appointments"
	"queuemedix-server/internal/config"
	"queuemedix-server/internal/metrics"
	"queuemedix-server/internal/middleware"
	"queuemedix-server/internal/models"
	"queuemedix-server/internal/notify"
	"queuemedix-server/internal/queue"
	"queuemedix-server/internal/routes"
	"queuemedix-server/internal/utils"
)

const relayRetryDelay = 2 * time.Second

func main() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	utils.InitLogger(cfg.Environment, cfg.LogLevel)

	db, err := models.InitDB(models.DatabaseConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.Environment == "development" && cfg.LogLevel == "debug",
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Error connecting to database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projector := queue.NewStoreProjector(db, nil)
	hub := queue.NewHub(projector)

	var (
		notifier appointments.QueueNotifier = hub
		jobs     notify.Enqueuer
	)
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Error connecting to redis")
		}

		jobs = notify.NewRedisQueue(client, cfg.NotifyQueueKey)
		go notify.NewWorker(client, cfg.NotifyQueueKey, nil).Run(ctx)

		relay := queue.NewRedisRelay(client, queue.DefaultRelayChannel, hub)
		notifier = relay
		go func() {
			for {
				err := relay.Run(ctx)
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("queue relay stopped, resubscribing")
				select {
				case <-ctx.Done():
					return
				case <-time.After(relayRetryDelay):
				}
			}
		}()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis fan-out and notification queue enabled")
	} else {
		jobs = notify.LogQueue{Logger: log.With().Str("component", "notify").Logger()}
		log.Info().Msg("redis not configured, using in-process queue updates and notifications")
	}

	ledger := appointments.NewLedger(db, notifier, jobs)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Dependencies{
		DB:        db,
		Cfg:       cfg,
		Ledger:    ledger,
		Hub:       hub,
		Projector: projector,
		Jobs:      jobs,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
