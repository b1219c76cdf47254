package models

// GORM models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TimePeriod is the aggregation window for trending metrics.
type TimePeriod string

const (
	PeriodHour TimePeriod = "hour"
	PeriodDay  TimePeriod = "day"
	PeriodWeek TimePeriod = "week"
)

// Window returns the duration covered by the period.
func (p TimePeriod) Window() time.Duration {
	switch p {
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

func (p TimePeriod) Valid() bool {
	return p == PeriodHour || p == PeriodDay || p == PeriodWeek
}

type FeedbackType string

const (
	FeedbackUp   FeedbackType = "up"
	FeedbackDown FeedbackType = "down"
)

func (f FeedbackType) Valid() bool {
	return f == FeedbackUp || f == FeedbackDown
}

type RankingType string

const (
	RankingOverall      RankingType = "overall"
	RankingTrending     RankingType = "trending"
	RankingPersonalized RankingType = "personalized"
)

// TrendDirection annotates a trending metric at read time.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Search represents one user query fanned out to all providers.
// Immutable after creation.
type Search struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	QueryText string    `json:"query_text" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is one provider's answer for a search. A provider failure still
// produces a row, with Failed set and an error-flavored content string, so
// callers can always count N results per search.
type Result struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	SearchID       uint      `json:"search_id" gorm:"not null;index"`
	ModelID        string    `json:"model_id" gorm:"not null;index"`
	Content        string    `json:"content" gorm:"type:text"`
	Title          string    `json:"title"`
	Snippet        string    `json:"snippet"`
	Failed         bool      `json:"failed" gorm:"default:false"`
	ResponseTimeMs int       `json:"response_time_ms" gorm:"default:0"`
	CreatedAt      time.Time `json:"created_at"`
}

// Click records a user expanding a result.
type Click struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ResultID  uint      `json:"result_id" gorm:"not null;index"`
	UserID    *uint     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Feedback records a thumbs up/down on a result. Identified users get at
// most one row per result (replace on conflict); anonymous rows append.
type Feedback struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	ResultID     uint         `json:"result_id" gorm:"not null;index"`
	UserID       *uint        `json:"user_id"`
	FeedbackType FeedbackType `json:"feedback_type" gorm:"not null;check:feedback_type IN ('up','down')"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ModelStat is the running per-model counter pair. Created lazily on first
// reference, mutated only via atomic single-row increments.
type ModelStat struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	ModelID     string    `json:"model_id" gorm:"unique;not null"`
	ClickCount  int64     `json:"click_count" gorm:"default:0"`
	SearchCount int64     `json:"search_count" gorm:"default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TrendingMetric is a derived, recomputable aggregate per
// (model, period, window start). Safe to drop and rebuild at any time.
type TrendingMetric struct {
	ID               uint       `json:"id" gorm:"primaryKey"`
	ModelID          string     `json:"model_id" gorm:"not null;uniqueIndex:idx_trending_window"`
	TimePeriod       TimePeriod `json:"time_period" gorm:"not null;uniqueIndex:idx_trending_window;check:time_period IN ('hour','day','week')"`
	PositiveFeedback int64      `json:"positive_feedback" gorm:"default:0"`
	NegativeFeedback int64      `json:"negative_feedback" gorm:"default:0"`
	TotalSearches    int64      `json:"total_searches" gorm:"default:0"`
	TotalClicks      int64      `json:"total_clicks" gorm:"default:0"`
	TrendScore       float64    `json:"trend_score" gorm:"default:0"`
	PeriodStart      time.Time  `json:"period_start" gorm:"not null;uniqueIndex:idx_trending_window"`
	PeriodEnd        time.Time  `json:"period_end" gorm:"not null"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ModelRanking is a cached ranking snapshot. RankPosition is dense (1..K)
// within a (ranking_type, user_id) partition.
type ModelRanking struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	ModelID      string      `json:"model_id" gorm:"not null"`
	RankingType  RankingType `json:"ranking_type" gorm:"not null;check:ranking_type IN ('overall','trending','personalized')"`
	UserID       *uint       `json:"user_id"`
	Score        float64     `json:"score" gorm:"default:0"`
	RankPosition int         `json:"rank_position" gorm:"not null"`
	PeriodStart  time.Time   `json:"period_start"`
	PeriodEnd    time.Time   `json:"period_end"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// InteractionAggregate is one model's interaction counts over a window,
// produced by the aggregation query feeding the ranking engine.
type InteractionAggregate struct {
	ModelID          string `json:"model_id"`
	TotalSearches    int64  `json:"total_searches"`
	TotalClicks      int64  `json:"total_clicks"`
	PositiveFeedback int64  `json:"positive_feedback"`
	NegativeFeedback int64  `json:"negative_feedback"`
}

// UserInteractionAggregate is one model's interaction counts for a single
// user, feeding personalized rankings.
type UserInteractionAggregate struct {
	ModelID  string `json:"model_id"`
	Clicks   int64  `json:"clicks"`
	Likes    int64  `json:"likes"`
	Dislikes int64  `json:"dislikes"`
}

// Database interfaces for repository pattern
type SearchRepository interface {
	Create(search *Search) error
	GetByID(id uint) (*Search, error)
	GetRecent(limit int) ([]Search, error)
}

type ResultRepository interface {
	Create(result *Result) error
	GetByID(id uint) (*Result, error)
	GetBySearchID(searchID uint) ([]Result, error)
}

type ClickRepository interface {
	Create(click *Click) error
}

type FeedbackRepository interface {
	// Upsert replaces any existing row for (result_id, user_id).
	// Requires an identified user.
	Upsert(feedback *Feedback) error
	// Insert appends unconditionally; used for anonymous feedback.
	Insert(feedback *Feedback) error
	GetByResultID(resultID uint) ([]Feedback, error)
}

type ModelStatRepository interface {
	IncrementClicks(modelID string) error
	IncrementSearches(modelID string) error
	GetAll() ([]ModelStat, error)
	GetByModelID(modelID string) (*ModelStat, error)
}

type TrendingMetricRepository interface {
	Upsert(metric *TrendingMetric) error
	GetByPeriod(period TimePeriod, limit int) ([]TrendingMetric, error)
	GetLatestForModel(modelID string, period TimePeriod) (*TrendingMetric, error)
	AggregateWindow(from, to time.Time) ([]InteractionAggregate, error)
	AggregateAllTime() ([]InteractionAggregate, error)
	AggregateUserWindow(userID uint, from, to time.Time) ([]UserInteractionAggregate, error)
}

type ModelRankingRepository interface {
	// Replace swaps the whole snapshot for a (ranking_type, user_id) partition.
	Replace(rankingType RankingType, userID *uint, rankings []ModelRanking) error
	GetByType(rankingType RankingType, userID *uint, limit int) ([]ModelRanking, error)
}

// TableName methods for custom table names
func (Search) TableName() string         { return "searches" }
func (Result) TableName() string         { return "results" }
func (Click) TableName() string          { return "clicks" }
func (Feedback) TableName() string       { return "feedback" }
func (ModelStat) TableName() string      { return "model_stats" }
func (TrendingMetric) TableName() string { return "trending_metrics" }
func (ModelRanking) TableName() string   { return "model_rankings" }

// Model validation methods
func (s *Search) Validate() error {
	if s.QueryText == "" {
		return fmt.Errorf("query text is required")
	}
	return nil
}

func (r *Result) Validate() error {
	if r.SearchID == 0 {
		return fmt.Errorf("search ID is required")
	}
	if r.ModelID == "" {
		return fmt.Errorf("model ID is required")
	}
	if r.ResponseTimeMs < 0 {
		return fmt.Errorf("response time cannot be negative")
	}
	return nil
}

func (c *Click) Validate() error {
	if c.ResultID == 0 {
		return fmt.Errorf("result ID is required")
	}
	return nil
}

func (f *Feedback) Validate() error {
	if f.ResultID == 0 {
		return fmt.Errorf("result ID is required")
	}
	if !f.FeedbackType.Valid() {
		return fmt.Errorf("invalid feedback type: %s", f.FeedbackType)
	}
	return nil
}

// GORM hooks
func (s *Search) BeforeCreate(tx *gorm.DB) error {
	return s.Validate()
}

func (r *Result) BeforeCreate(tx *gorm.DB) error {
	return r.Validate()
}

func (c *Click) BeforeCreate(tx *gorm.DB) error {
	return c.Validate()
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	return f.Validate()
}
