package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/polyquery/polyquery/internal/models"
)

// SearchRepositoryImpl implements SearchRepository
type SearchRepositoryImpl struct {
	db *gorm.DB
}

func NewSearchRepository(db *gorm.DB) models.SearchRepository {
	return &SearchRepositoryImpl{db: db}
}

func (r *SearchRepositoryImpl) Create(search *models.Search) error {
	return r.db.Create(search).Error
}

func (r *SearchRepositoryImpl) GetByID(id uint) (*models.Search, error) {
	var search models.Search
	err := r.db.First(&search, id).Error
	if err != nil {
		return nil, err
	}
	return &search, nil
}

func (r *SearchRepositoryImpl) GetRecent(limit int) ([]models.Search, error) {
	var searches []models.Search
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&searches).Error
	return searches, err
}

// ResultRepositoryImpl implements ResultRepository
type ResultRepositoryImpl struct {
	db *gorm.DB
}

func NewResultRepository(db *gorm.DB) models.ResultRepository {
	return &ResultRepositoryImpl{db: db}
}

func (r *ResultRepositoryImpl) Create(result *models.Result) error {
	return r.db.Create(result).Error
}

func (r *ResultRepositoryImpl) GetByID(id uint) (*models.Result, error) {
	var result models.Result
	err := r.db.First(&result, id).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ResultRepositoryImpl) GetBySearchID(searchID uint) ([]models.Result, error) {
	var results []models.Result
	err := r.db.Where("search_id = ?", searchID).
		Order("created_at").
		Find(&results).Error
	return results, err
}

// ClickRepositoryImpl implements ClickRepository
type ClickRepositoryImpl struct {
	db *gorm.DB
}

func NewClickRepository(db *gorm.DB) models.ClickRepository {
	return &ClickRepositoryImpl{db: db}
}

func (r *ClickRepositoryImpl) Create(click *models.Click) error {
	return r.db.Create(click).Error
}

// FeedbackRepositoryImpl implements FeedbackRepository
type FeedbackRepositoryImpl struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) models.FeedbackRepository {
	return &FeedbackRepositoryImpl{db: db}
}

// Upsert replaces any earlier feedback for (result_id, user_id). The
// conflict target is the partial unique index on identified rows.
func (r *FeedbackRepositoryImpl) Upsert(feedback *models.Feedback) error {
	if feedback.UserID == nil {
		return fmt.Errorf("upsert requires an identified user")
	}
	if err := feedback.Validate(); err != nil {
		return err
	}
	return r.db.Raw(`
		INSERT INTO feedback (result_id, user_id, feedback_type, created_at, updated_at)
		VALUES (?, ?, ?, NOW(), NOW())
		ON CONFLICT (result_id, user_id) WHERE user_id IS NOT NULL
		DO UPDATE SET
			feedback_type = EXCLUDED.feedback_type,
			updated_at = NOW()
		RETURNING *
	`, feedback.ResultID, *feedback.UserID, feedback.FeedbackType).Scan(feedback).Error
}

func (r *FeedbackRepositoryImpl) Insert(feedback *models.Feedback) error {
	return r.db.Create(feedback).Error
}

func (r *FeedbackRepositoryImpl) GetByResultID(resultID uint) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := r.db.Where("result_id = ?", resultID).
		Order("created_at").
		Find(&feedback).Error
	return feedback, err
}

// ModelStatRepositoryImpl implements ModelStatRepository
type ModelStatRepositoryImpl struct {
	db *gorm.DB
}

func NewModelStatRepository(db *gorm.DB) models.ModelStatRepository {
	return &ModelStatRepositoryImpl{db: db}
}

// IncrementClicks bumps a model's click counter, creating the row lazily
// on first reference. Single-statement, so concurrent increments never
// lose updates.
func (r *ModelStatRepositoryImpl) IncrementClicks(modelID string) error {
	return r.db.Exec(`
		INSERT INTO model_stats (model_id, click_count, search_count, updated_at)
		VALUES (?, 1, 0, NOW())
		ON CONFLICT (model_id)
		DO UPDATE SET
			click_count = model_stats.click_count + 1,
			updated_at = NOW()
	`, modelID).Error
}

func (r *ModelStatRepositoryImpl) IncrementSearches(modelID string) error {
	return r.db.Exec(`
		INSERT INTO model_stats (model_id, click_count, search_count, updated_at)
		VALUES (?, 0, 1, NOW())
		ON CONFLICT (model_id)
		DO UPDATE SET
			search_count = model_stats.search_count + 1,
			updated_at = NOW()
	`, modelID).Error
}

func (r *ModelStatRepositoryImpl) GetAll() ([]models.ModelStat, error) {
	var stats []models.ModelStat
	err := r.db.Order("model_id").Find(&stats).Error
	return stats, err
}

func (r *ModelStatRepositoryImpl) GetByModelID(modelID string) (*models.ModelStat, error) {
	var stat models.ModelStat
	err := r.db.Where("model_id = ?", modelID).First(&stat).Error
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// TrendingMetricRepositoryImpl implements TrendingMetricRepository
type TrendingMetricRepositoryImpl struct {
	db *gorm.DB
}

func NewTrendingMetricRepository(db *gorm.DB) models.TrendingMetricRepository {
	return &TrendingMetricRepositoryImpl{db: db}
}

// Upsert replaces the row for (model_id, time_period, period_start), so
// recomputation is idempotent.
func (r *TrendingMetricRepositoryImpl) Upsert(metric *models.TrendingMetric) error {
	return r.db.Exec(`
		INSERT INTO trending_metrics
			(model_id, time_period, positive_feedback, negative_feedback,
			 total_searches, total_clicks, trend_score, period_start, period_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW())
		ON CONFLICT (model_id, time_period, period_start)
		DO UPDATE SET
			positive_feedback = EXCLUDED.positive_feedback,
			negative_feedback = EXCLUDED.negative_feedback,
			total_searches = EXCLUDED.total_searches,
			total_clicks = EXCLUDED.total_clicks,
			trend_score = EXCLUDED.trend_score,
			period_end = EXCLUDED.period_end
	`, metric.ModelID, metric.TimePeriod, metric.PositiveFeedback, metric.NegativeFeedback,
		metric.TotalSearches, metric.TotalClicks, metric.TrendScore,
		metric.PeriodStart, metric.PeriodEnd).Error
}

func (r *TrendingMetricRepositoryImpl) GetByPeriod(period models.TimePeriod, limit int) ([]models.TrendingMetric, error) {
	var metrics []models.TrendingMetric
	err := r.db.Raw(`
		SELECT * FROM (
			SELECT DISTINCT ON (model_id) *
			FROM trending_metrics
			WHERE time_period = ?
			ORDER BY model_id, period_start DESC
		) latest
		ORDER BY trend_score DESC, model_id
	`, period).Scan(&metrics).Error
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(metrics) > limit {
		metrics = metrics[:limit]
	}
	return metrics, nil
}

func (r *TrendingMetricRepositoryImpl) GetLatestForModel(modelID string, period models.TimePeriod) (*models.TrendingMetric, error) {
	var metric models.TrendingMetric
	err := r.db.Where("model_id = ? AND time_period = ?", modelID, period).
		Order("period_start DESC").
		First(&metric).Error
	if err != nil {
		return nil, err
	}
	return &metric, nil
}

// AggregateWindow counts searches, clicks and feedback per model for
// results whose search falls inside [from, to].
func (r *TrendingMetricRepositoryImpl) AggregateWindow(from, to time.Time) ([]models.InteractionAggregate, error) {
	var aggregates []models.InteractionAggregate
	err := r.db.Raw(`
		SELECT
			res.model_id,
			COUNT(DISTINCT res.search_id) AS total_searches,
			COUNT(DISTINCT c.id) AS total_clicks,
			COUNT(DISTINCT f.id) FILTER (WHERE f.feedback_type = 'up') AS positive_feedback,
			COUNT(DISTINCT f.id) FILTER (WHERE f.feedback_type = 'down') AS negative_feedback
		FROM results res
		JOIN searches s ON s.id = res.search_id
		LEFT JOIN clicks c ON c.result_id = res.id
		LEFT JOIN feedback f ON f.result_id = res.id
		WHERE s.created_at >= ? AND s.created_at <= ?
		GROUP BY res.model_id
	`, from, to).Scan(&aggregates).Error
	return aggregates, err
}

// AggregateAllTime folds the running ModelStat counters together with
// all-time feedback counts, feeding the overall leaderboard.
func (r *TrendingMetricRepositoryImpl) AggregateAllTime() ([]models.InteractionAggregate, error) {
	var aggregates []models.InteractionAggregate
	err := r.db.Raw(`
		SELECT
			ms.model_id,
			ms.search_count AS total_searches,
			ms.click_count AS total_clicks,
			COUNT(DISTINCT f.id) FILTER (WHERE f.feedback_type = 'up') AS positive_feedback,
			COUNT(DISTINCT f.id) FILTER (WHERE f.feedback_type = 'down') AS negative_feedback
		FROM model_stats ms
		LEFT JOIN results res ON res.model_id = ms.model_id
		LEFT JOIN feedback f ON f.result_id = res.id
		GROUP BY ms.model_id, ms.search_count, ms.click_count
	`).Scan(&aggregates).Error
	return aggregates, err
}

// AggregateUserWindow counts one user's clicks and feedback per model over
// the lookback window, restricted to models the user actually touched.
func (r *TrendingMetricRepositoryImpl) AggregateUserWindow(userID uint, from, to time.Time) ([]models.UserInteractionAggregate, error) {
	var aggregates []models.UserInteractionAggregate
	err := r.db.Raw(`
		SELECT
			res.model_id,
			COUNT(DISTINCT c.id) AS clicks,
			COUNT(DISTINCT f.id) FILTER (WHERE f.feedback_type = 'up') AS likes,
			COUNT(DISTINCT f.id) FILTER (WHERE f.feedback_type = 'down') AS dislikes
		FROM results res
		LEFT JOIN clicks c
			ON c.result_id = res.id AND c.user_id = ? AND c.created_at >= ? AND c.created_at <= ?
		LEFT JOIN feedback f
			ON f.result_id = res.id AND f.user_id = ? AND f.created_at >= ? AND f.created_at <= ?
		GROUP BY res.model_id
		HAVING COUNT(DISTINCT c.id) > 0 OR COUNT(DISTINCT f.id) > 0
	`, userID, from, to, userID, from, to).Scan(&aggregates).Error
	return aggregates, err
}

// ModelRankingRepositoryImpl implements ModelRankingRepository
type ModelRankingRepositoryImpl struct {
	db *gorm.DB
}

func NewModelRankingRepository(db *gorm.DB) models.ModelRankingRepository {
	return &ModelRankingRepositoryImpl{db: db}
}

func (r *ModelRankingRepositoryImpl) Replace(rankingType models.RankingType, userID *uint, rankings []models.ModelRanking) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("ranking_type = ?", rankingType)
		if userID == nil {
			q = q.Where("user_id IS NULL")
		} else {
			q = q.Where("user_id = ?", *userID)
		}
		if err := q.Delete(&models.ModelRanking{}).Error; err != nil {
			return err
		}
		if len(rankings) == 0 {
			return nil
		}
		return tx.Create(&rankings).Error
	})
}

func (r *ModelRankingRepositoryImpl) GetByType(rankingType models.RankingType, userID *uint, limit int) ([]models.ModelRanking, error) {
	var rankings []models.ModelRanking
	q := r.db.Where("ranking_type = ?", rankingType)
	if userID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *userID)
	}
	err := q.Order("rank_position").
		Limit(limit).
		Find(&rankings).Error
	return rankings, err
}

// RepositoryManager bundles all repositories
type RepositoryManager struct {
	Search         models.SearchRepository
	Result         models.ResultRepository
	Click          models.ClickRepository
	Feedback       models.FeedbackRepository
	ModelStat      models.ModelStatRepository
	TrendingMetric models.TrendingMetricRepository
	ModelRanking   models.ModelRankingRepository
}

func NewRepositoryManager(db *gorm.DB) *RepositoryManager {
	return &RepositoryManager{
		Search:         NewSearchRepository(db),
		Result:         NewResultRepository(db),
		Click:          NewClickRepository(db),
		Feedback:       NewFeedbackRepository(db),
		ModelStat:      NewModelStatRepository(db),
		TrendingMetric: NewTrendingMetricRepository(db),
		ModelRanking:   NewModelRankingRepository(db),
	}
}
