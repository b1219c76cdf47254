package migration

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/polyquery/polyquery/internal/models"
)

// Runner applies the schema once at startup. Every statement is
// idempotent, so re-running on each boot is safe; nothing in the request
// path ever creates tables.
type Runner struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRunner(db *gorm.DB, logger *logrus.Logger) *Runner {
	return &Runner{
		db:     db,
		logger: logger,
	}
}

// Run executes GORM auto-migrations followed by the raw statements GORM
// cannot express (partial unique indexes backing the upsert conflict
// targets).
func (r *Runner) Run() error {
	r.logger.Info("Running database migrations...")

	if err := r.db.AutoMigrate(
		&models.Search{},
		&models.Result{},
		&models.Click{},
		&models.Feedback{},
		&models.ModelStat{},
		&models.TrendingMetric{},
		&models.ModelRanking{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	if err := r.runRawStatements(); err != nil {
		return fmt.Errorf("raw migrations failed: %w", err)
	}

	r.logger.Info("Database migrations completed successfully")
	return nil
}

func (r *Runner) runRawStatements() error {
	statements := []string{
		// One feedback row per (result, user) for identified users; the
		// feedback upsert targets this index. Anonymous rows (NULL user)
		// fall outside it and append freely.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_feedback_result_user
			ON feedback (result_id, user_id)
			WHERE user_id IS NOT NULL`,
		// Ranking snapshots are replaced per (type, user) partition;
		// index keeps the replace-then-read path cheap.
		`CREATE INDEX IF NOT EXISTS idx_rankings_partition
			ON model_rankings (ranking_type, user_id, rank_position)`,
		`CREATE INDEX IF NOT EXISTS idx_searches_created_at
			ON searches (created_at)`,
	}

	for i, stmt := range statements {
		if err := r.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to execute statement %d: %w", i+1, err)
		}
		r.logger.WithField("statement", i+1).Debug("Migration statement executed")
	}

	return nil
}
