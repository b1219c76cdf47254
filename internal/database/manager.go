package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/polyquery/polyquery/internal/models"
)

// Database connection manager
type Manager struct {
	DB     *gorm.DB
	Redis  *redis.Client
	logger *logrus.Logger
}

// Database configuration
type Config struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
}

// NewManager creates a new database manager with connection pooling
func NewManager(config *Config, logger *logrus.Logger) (*Manager, error) {
	gormLog := gormlogger.Default.LogMode(gormlogger.Silent)
	if config.LogLevel == "debug" {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(config.DatabaseURL), &gorm.Config{
		Logger:                 gormLog,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.PoolSize = 20
	redisOpts.MinIdleConns = 5
	redisOpts.MaxConnAge = time.Hour
	redisOpts.IdleTimeout = 30 * time.Minute

	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Database and Redis connections established successfully")

	return &Manager{
		DB:     db,
		Redis:  redisClient,
		logger: logger,
	}, nil
}

// Close closes all database connections
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			m.logger.WithError(err).Error("Failed to close Redis connection")
		}
	}

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}

// Health check methods
func (m *Manager) PingDatabase() error {
	sqlDB, err := m.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *Manager) PingRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Redis.Ping(ctx).Err()
}

// Cache implementation
type Cache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewCache(client *redis.Client, logger *logrus.Logger) *Cache {
	return &Cache{
		client: client,
		logger: logger,
	}
}

// Cache key constants
const (
	ModelStatsKey      = "stats:models"
	TrendingModelsKey  = "trending:models:%s"
	LeaderboardKey     = "leaderboard:%s"
	PersonalizedKey    = "rankings:personalized:%d"
)

// CacheModelStats caches the full model stat view set.
func (c *Cache) CacheModelStats(ctx context.Context, stats []models.ModelStatView, expiration time.Duration) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal model stats: %w", err)
	}
	return c.client.Set(ctx, ModelStatsKey, data, expiration).Err()
}

// GetCachedModelStats retrieves cached model stats.
func (c *Cache) GetCachedModelStats(ctx context.Context) ([]models.ModelStatView, error) {
	data, err := c.client.Get(ctx, ModelStatsKey).Result()
	if err != nil {
		return nil, err
	}

	var stats []models.ModelStatView
	err = json.Unmarshal([]byte(data), &stats)
	return stats, err
}

// CacheTrendingModels caches a period's trending list.
func (c *Cache) CacheTrendingModels(ctx context.Context, period models.TimePeriod, views []models.TrendingModelView, expiration time.Duration) error {
	data, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("failed to marshal trending models: %w", err)
	}
	key := fmt.Sprintf(TrendingModelsKey, period)
	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedTrendingModels retrieves a period's cached trending list.
func (c *Cache) GetCachedTrendingModels(ctx context.Context, period models.TimePeriod) ([]models.TrendingModelView, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf(TrendingModelsKey, period)).Result()
	if err != nil {
		return nil, err
	}

	var views []models.TrendingModelView
	err = json.Unmarshal([]byte(data), &views)
	return views, err
}

// CacheLeaderboard caches a leaderboard snapshot by ranking type.
func (c *Cache) CacheLeaderboard(ctx context.Context, rankingType models.RankingType, views []models.RankedModelView, expiration time.Duration) error {
	data, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("failed to marshal leaderboard: %w", err)
	}
	key := fmt.Sprintf(LeaderboardKey, rankingType)
	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedLeaderboard retrieves a cached leaderboard.
func (c *Cache) GetCachedLeaderboard(ctx context.Context, rankingType models.RankingType) ([]models.RankedModelView, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf(LeaderboardKey, rankingType)).Result()
	if err != nil {
		return nil, err
	}

	var views []models.RankedModelView
	err = json.Unmarshal([]byte(data), &views)
	return views, err
}

// CachePersonalizedRankings caches one user's ranking snapshot.
func (c *Cache) CachePersonalizedRankings(ctx context.Context, userID uint, views []models.RankedModelView, expiration time.Duration) error {
	data, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("failed to marshal personalized rankings: %w", err)
	}
	key := fmt.Sprintf(PersonalizedKey, userID)
	return c.client.Set(ctx, key, data, expiration).Err()
}

// GetCachedPersonalizedRankings retrieves one user's cached ranking.
func (c *Cache) GetCachedPersonalizedRankings(ctx context.Context, userID uint) ([]models.RankedModelView, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf(PersonalizedKey, userID)).Result()
	if err != nil {
		return nil, err
	}

	var views []models.RankedModelView
	err = json.Unmarshal([]byte(data), &views)
	return views, err
}

// InvalidatePersonalized drops one user's cached ranking. Called after an
// identified interaction so the user's next personalized read reflects it.
func (c *Cache) InvalidatePersonalized(ctx context.Context, userID uint) error {
	return c.client.Del(ctx, fmt.Sprintf(PersonalizedKey, userID)).Err()
}

// InvalidateInteractionCaches drops every derived read-side cache. Called
// by the interaction recorder after click/feedback writes so the next read
// reflects the new counters.
func (c *Cache) InvalidateInteractionCaches(ctx context.Context) error {
	keys := []string{
		ModelStatsKey,
		fmt.Sprintf(TrendingModelsKey, models.PeriodHour),
		fmt.Sprintf(TrendingModelsKey, models.PeriodDay),
		fmt.Sprintf(TrendingModelsKey, models.PeriodWeek),
		fmt.Sprintf(LeaderboardKey, models.RankingOverall),
		fmt.Sprintf(LeaderboardKey, models.RankingTrending),
	}
	return c.client.Del(ctx, keys...).Err()
}
