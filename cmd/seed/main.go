package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/config"
	"github.com/polyquery/polyquery/internal/database"
	"github.com/polyquery/polyquery/internal/migration"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/repository"
	"github.com/polyquery/polyquery/internal/services"
	"github.com/polyquery/polyquery/pkg/utils"
)

// Sample queries used to generate plausible interaction traffic.
var sampleQueries = []string{
	"how do I center a div in css",
	"explain goroutines vs threads",
	"what caused the 2008 financial crisis",
	"best way to learn a new language",
	"difference between tcp and udp",
	"why is my docker build so slow",
	"summarize the plot of moby dick",
	"how does public key cryptography work",
	"what is the capital of australia",
	"write a haiku about autumn",
}

var (
	searches = flag.Int("searches", 50, "Number of synthetic searches to generate")
	users    = flag.Int("users", 10, "Number of distinct synthetic users")
	dryRun   = flag.Bool("dry-run", false, "Don't write anything, just print what would be generated")
	verbose  = flag.Bool("verbose", false, "Enable verbose logging")
	seed     = flag.Int64("seed", 0, "Random seed (0 = time-based)")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	logger.Info("Starting synthetic interaction seeder...")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if len(cfg.Providers) == 0 {
		logger.Fatal("No providers configured; nothing to seed against")
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	if *dryRun {
		logger.WithFields(logrus.Fields{
			"searches": *searches,
			"users":    *users,
			"models":   len(cfg.Providers),
		}).Info("Dry run: no rows will be written")
		return
	}

	dbConfig := &database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}

	dbManager, err := database.NewManager(dbConfig, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := migration.NewRunner(dbManager.DB, logger).Run(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	repoManager := repository.NewRepositoryManager(dbManager.DB)
	cache := database.NewCache(dbManager.Redis, logger)
	tracker := services.NewTrackingService(repoManager, cache, cfg.DisplayNames(), logger)

	modelIDs := make([]string, len(cfg.Providers))
	for i, p := range cfg.Providers {
		modelIDs[i] = p.ID
	}

	var clicks, feedbacks int
	for i := 0; i < *searches; i++ {
		query := sampleQueries[rng.Intn(len(sampleQueries))]

		search, err := tracker.RecordSearch(query, modelIDs)
		if err != nil {
			logger.WithError(err).Fatal("Failed to record synthetic search")
		}

		for _, modelID := range modelIDs {
			result := &models.Result{
				SearchID:       search.ID,
				ModelID:        modelID,
				Content:        "synthetic answer about " + query,
				Title:          query,
				Snippet:        "synthetic answer about " + query,
				ResponseTimeMs: 200 + rng.Intn(1800),
			}
			if err := tracker.RecordResult(result); err != nil {
				logger.WithError(err).Fatal("Failed to record synthetic result")
			}

			userID := uint(rng.Intn(*users) + 1)

			// Roughly a third of results get clicked.
			if rng.Float64() < 0.35 {
				if _, _, err := tracker.RecordClick(result.ID, &userID); err != nil {
					logger.WithError(err).Warn("Failed to record synthetic click")
					continue
				}
				clicks++
			}

			// A sixth get feedback, skewed positive.
			if rng.Float64() < 0.15 {
				feedbackType := models.FeedbackUp
				if rng.Float64() < 0.3 {
					feedbackType = models.FeedbackDown
				}
				if _, err := tracker.RecordFeedback(result.ID, &userID, feedbackType); err != nil {
					logger.WithError(err).Warn("Failed to record synthetic feedback")
					continue
				}
				feedbacks++
			}
		}

		if *verbose && (i+1)%10 == 0 {
			logger.WithField("progress", i+1).Debug("Seeding...")
		}
	}

	ranker := services.NewRankingService(repoManager, cfg.DisplayNames(), logger)
	for _, period := range []models.TimePeriod{models.PeriodHour, models.PeriodDay, models.PeriodWeek} {
		if err := ranker.RecomputeTrending(period); err != nil {
			logger.WithError(err).WithField("period", period).Error("Trending recompute failed")
		}
	}

	logger.WithFields(logrus.Fields{
		"searches":  *searches,
		"clicks":    clicks,
		"feedbacks": feedbacks,
		"seed":      rngSeed,
	}).Info("Seeding completed")
}
