package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/api/handlers"
	"github.com/polyquery/polyquery/internal/config"
	"github.com/polyquery/polyquery/internal/database"
	"github.com/polyquery/polyquery/internal/faults"
	"github.com/polyquery/polyquery/internal/health"
	"github.com/polyquery/polyquery/internal/middleware"
	"github.com/polyquery/polyquery/internal/migration"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/provider"
	"github.com/polyquery/polyquery/internal/repository"
	"github.com/polyquery/polyquery/internal/services"
	"github.com/polyquery/polyquery/pkg/utils"
)

const (
	trendingRecomputeInterval    = 5 * time.Minute
	leaderboardRecomputeInterval = 10 * time.Minute
	healthCheckInterval          = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	logger.Info("Starting polyquery server...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ValidateProviders(); err != nil {
		logger.WithError(err).Fatal("Provider configuration validation failed")
	}

	dbConfig := &database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	// Postgres and Redis may still be coming up alongside us; retry the
	// initial connection with backoff before giving up.
	var dbManager *database.Manager
	err = faults.Retry(context.Background(), faults.DefaultRetryConfig(), logger, func() error {
		var connectErr error
		dbManager, connectErr = database.NewManager(dbConfig, logger)
		if connectErr != nil {
			return faults.New(faults.KindInfrastructure, "database connection failed", connectErr)
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := migration.NewRunner(dbManager.DB, logger).Run(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)

	endpoints := cfg.Endpoints()
	displayNames := cfg.DisplayNames()

	client := provider.NewClient(logger)
	tracker := services.NewTrackingService(repoManager, cache, displayNames, logger)
	dispatcher := services.NewDispatcherService(client, endpoints, tracker, logger)
	ranker := services.NewRankingService(repoManager, displayNames, logger)

	checker := health.NewHealthChecker(dbManager, endpoints, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go checker.PeriodicHealthCheck(ctx, healthCheckInterval)
	go recomputeTrendingLoop(ctx, ranker, logger)
	go recomputeLeaderboardLoop(ctx, ranker, logger)

	router := buildRouter(cfg, dispatcher, tracker, ranker, cache, checker, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
	logger.Info("Server stopped")
}

func buildRouter(
	cfg *config.Config,
	dispatcher *services.DispatcherService,
	tracker *services.TrackingService,
	ranker *services.RankingService,
	cache *database.Cache,
	checker *health.HealthChecker,
	logger *logrus.Logger,
) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Identity())

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)

	searchHandler := handlers.NewSearchHandler(dispatcher, logger)
	interactionHandler := handlers.NewInteractionHandler(tracker, cache, logger)
	rankingHandler := handlers.NewRankingHandler(ranker, cache, logger)
	healthHandler := handlers.NewHealthHandler(checker)

	router.GET("/health", healthHandler.HandleHealth)

	api := router.Group("/api")
	api.Use(rateLimiter.RateLimit())
	{
		api.POST("/search", searchHandler.HandleSearch)
		api.POST("/track-click", interactionHandler.HandleClick)
		api.POST("/submit-feedback", interactionHandler.HandleFeedback)
		api.GET("/model-stats", interactionHandler.HandleModelStats)
		api.GET("/top-models", interactionHandler.HandleTopModels)
		api.GET("/trending-models", rankingHandler.HandleTrendingModels)
		api.GET("/leaderboard", rankingHandler.HandleLeaderboard)
		api.GET("/personalized-rankings", rankingHandler.HandlePersonalizedRankings)
	}

	return router
}

// recomputeTrendingLoop keeps every period's trending metrics current.
func recomputeTrendingLoop(ctx context.Context, ranker *services.RankingService, logger *logrus.Logger) {
	ticker := time.NewTicker(trendingRecomputeInterval)
	defer ticker.Stop()

	periods := []models.TimePeriod{models.PeriodHour, models.PeriodDay, models.PeriodWeek}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, period := range periods {
				if err := ranker.RecomputeTrending(period); err != nil {
					logger.WithError(err).WithField("period", period).Error("Trending recompute failed")
				}
			}
		}
	}
}

// recomputeLeaderboardLoop refreshes the persisted leaderboard snapshots.
func recomputeLeaderboardLoop(ctx context.Context, ranker *services.RankingService, logger *logrus.Logger) {
	ticker := time.NewTicker(leaderboardRecomputeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rankingType := range []models.RankingType{models.RankingOverall, models.RankingTrending} {
				if _, err := ranker.GlobalLeaderboard(rankingType, 0); err != nil {
					logger.WithError(err).WithField("type", rankingType).Error("Leaderboard recompute failed")
				}
			}
		}
	}
}
