package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"curriculum-planner/internal/config"
	"curriculum-planner/internal/database"
	"curriculum-planner/internal/handlers"
	"curriculum-planner/internal/logging"
	"curriculum-planner/internal/middleware"
	"curriculum-planner/internal/repository"
	"curriculum-planner/internal/router"
	"curriculum-planner/internal/services"
	"curriculum-planner/internal/websocket"
	"curriculum-planner/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logging.Setup(cfg.Env, cfg.LogLevel)
	log.Info().Str("env", cfg.Env).Msg("starting curriculum planner")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pool.Close()
	log.Info().Msg("postgres connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL, cfg.WorkerCount)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClients.Close()
	log.Info().Msg("redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// ──── Repositories ────
	userRepo := repository.NewUserRepo(pool)
	subjectRepo := repository.NewSubjectRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	sessions := services.NewRedisSessionStore(redisClients.Queue, cfg.SessionTTL, cfg.TimelineCacheTTL)
	publisher := services.NewRedisPublisher(redisClients.PubSub)
	saveQueue := services.NewRedisSaveQueue(redisClients.Queue, jobRepo)

	authService := services.NewAuthService(userRepo, services.NewRedisRefreshStore(redisClients.Queue), jwtAuth)
	subjectService := services.NewSubjectService(subjectRepo, userRepo, sessions)
	plannerService := services.NewPlannerService(subjectRepo, sessions, saveQueue, publisher)

	// ──── Step 5: Start Save Workers ────
	workerPool := worker.NewPool(redisClients.Queue, subjectRepo, jobRepo, publisher, cfg.WorkerCount)
	workerPool.Start()

	sweeper := worker.NewSweeper(jobRepo, redisClients.Queue)
	sweeper.Start()

	// ──── Step 6: WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, subjectRepo)

	// ──── Step 7: Start HTTP Server ────
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	health := func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		return redisClients.Ping(ctx)
	}

	r := router.New(
		jwtAuth,
		authLimiter,
		handlers.NewAuthHandler(authService),
		handlers.NewSubjectHandler(subjectService),
		handlers.NewPlannerHandler(plannerService),
		wsHub,
		health,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down")
		workerPool.Stop()
		sweeper.Stop()
		authLimiter.Stop()
		wsHub.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)).
		Str("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)).
		Int("workers", cfg.WorkerCount).
		Msg("curriculum planner ready")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}
