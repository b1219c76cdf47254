package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/polyquery/polyquery/internal/middleware"
	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/provider"
	"github.com/polyquery/polyquery/internal/repository"
	"github.com/polyquery/polyquery/internal/services"
)

// In-memory store backing the handler tests, wired through the repository
// interfaces.

type memStore struct {
	mu       sync.Mutex
	searches []models.Search
	results  []models.Result
	clicks   []models.Click
	feedback []models.Feedback
	stats    map[string]*models.ModelStat
	metrics  []models.TrendingMetric
	rankings map[string][]models.ModelRanking

	userAggs    []models.UserInteractionAggregate
	allTimeAggs []models.InteractionAggregate
}

func newMemStore() *memStore {
	return &memStore{
		stats:    make(map[string]*models.ModelStat),
		rankings: make(map[string][]models.ModelRanking),
	}
}

func (m *memStore) Create(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch record := v.(type) {
	case *models.Search:
		record.ID = uint(len(m.searches) + 1)
		record.CreatedAt = time.Now()
		m.searches = append(m.searches, *record)
	case *models.Result:
		record.ID = uint(len(m.results) + 1)
		record.CreatedAt = time.Now()
		m.results = append(m.results, *record)
	case *models.Click:
		record.ID = uint(len(m.clicks) + 1)
		record.CreatedAt = time.Now()
		m.clicks = append(m.clicks, *record)
	case *models.Feedback:
		record.ID = uint(len(m.feedback) + 1)
		record.CreatedAt = time.Now()
		record.UpdatedAt = record.CreatedAt
		m.feedback = append(m.feedback, *record)
	}
	return nil
}

type memSearchRepo struct{ s *memStore }

func (r memSearchRepo) Create(search *models.Search) error { return r.s.Create(search) }
func (r memSearchRepo) GetByID(id uint) (*models.Search, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, s := range r.s.searches {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("search not found")
}
func (r memSearchRepo) GetRecent(limit int) ([]models.Search, error) {
	return append([]models.Search(nil), r.s.searches...), nil
}

type memResultRepo struct{ s *memStore }

func (r memResultRepo) Create(result *models.Result) error { return r.s.Create(result) }
func (r memResultRepo) GetByID(id uint) (*models.Result, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range r.s.results {
		if res.ID == id {
			return &res, nil
		}
	}
	return nil, fmt.Errorf("result not found")
}
func (r memResultRepo) GetBySearchID(searchID uint) ([]models.Result, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Result
	for _, res := range r.s.results {
		if res.SearchID == searchID {
			out = append(out, res)
		}
	}
	return out, nil
}

type memClickRepo struct{ s *memStore }

func (r memClickRepo) Create(click *models.Click) error { return r.s.Create(click) }

type memFeedbackRepo struct{ s *memStore }

func (r memFeedbackRepo) Upsert(feedback *models.Feedback) error {
	r.s.mu.Lock()
	for i, existing := range r.s.feedback {
		if existing.ResultID == feedback.ResultID &&
			existing.UserID != nil && feedback.UserID != nil && *existing.UserID == *feedback.UserID {
			r.s.feedback[i].FeedbackType = feedback.FeedbackType
			*feedback = r.s.feedback[i]
			r.s.mu.Unlock()
			return nil
		}
	}
	r.s.mu.Unlock()
	return r.s.Create(feedback)
}
func (r memFeedbackRepo) Insert(feedback *models.Feedback) error { return r.s.Create(feedback) }
func (r memFeedbackRepo) GetByResultID(resultID uint) ([]models.Feedback, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Feedback
	for _, fb := range r.s.feedback {
		if fb.ResultID == resultID {
			out = append(out, fb)
		}
	}
	return out, nil
}

type memModelStatRepo struct{ s *memStore }

func (r memModelStatRepo) bump(modelID string, clicks, searches int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stat, ok := r.s.stats[modelID]
	if !ok {
		stat = &models.ModelStat{ID: uint(len(r.s.stats) + 1), ModelID: modelID}
		r.s.stats[modelID] = stat
	}
	stat.ClickCount += clicks
	stat.SearchCount += searches
	stat.UpdatedAt = time.Now()
	return nil
}
func (r memModelStatRepo) IncrementClicks(modelID string) error   { return r.bump(modelID, 1, 0) }
func (r memModelStatRepo) IncrementSearches(modelID string) error { return r.bump(modelID, 0, 1) }
func (r memModelStatRepo) GetAll() ([]models.ModelStat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.ModelStat, 0, len(r.s.stats))
	for _, stat := range r.s.stats {
		out = append(out, *stat)
	}
	return out, nil
}
func (r memModelStatRepo) GetByModelID(modelID string) (*models.ModelStat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if stat, ok := r.s.stats[modelID]; ok {
		copied := *stat
		return &copied, nil
	}
	return nil, fmt.Errorf("model stat not found")
}

type memTrendingRepo struct{ s *memStore }

func (r memTrendingRepo) Upsert(metric *models.TrendingMetric) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, m := range r.s.metrics {
		if m.ModelID == metric.ModelID && m.TimePeriod == metric.TimePeriod && m.PeriodStart.Equal(metric.PeriodStart) {
			r.s.metrics[i] = *metric
			return nil
		}
	}
	r.s.metrics = append(r.s.metrics, *metric)
	return nil
}
func (r memTrendingRepo) GetByPeriod(period models.TimePeriod, limit int) ([]models.TrendingMetric, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.TrendingMetric
	for _, m := range r.s.metrics {
		if m.TimePeriod == period {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (r memTrendingRepo) GetLatestForModel(modelID string, period models.TimePeriod) (*models.TrendingMetric, error) {
	metrics, _ := r.GetByPeriod(period, 0)
	for _, m := range metrics {
		if m.ModelID == modelID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("trending metric not found")
}
func (r memTrendingRepo) AggregateWindow(from, to time.Time) ([]models.InteractionAggregate, error) {
	return nil, nil
}
func (r memTrendingRepo) AggregateAllTime() ([]models.InteractionAggregate, error) {
	return append([]models.InteractionAggregate(nil), r.s.allTimeAggs...), nil
}
func (r memTrendingRepo) AggregateUserWindow(userID uint, from, to time.Time) ([]models.UserInteractionAggregate, error) {
	return append([]models.UserInteractionAggregate(nil), r.s.userAggs...), nil
}

type memRankingRepo struct{ s *memStore }

func rankKey(rankingType models.RankingType, userID *uint) string {
	if userID == nil {
		return string(rankingType)
	}
	return fmt.Sprintf("%s|%d", rankingType, *userID)
}

func (r memRankingRepo) Replace(rankingType models.RankingType, userID *uint, rankings []models.ModelRanking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.rankings[rankKey(rankingType, userID)] = append([]models.ModelRanking(nil), rankings...)
	return nil
}
func (r memRankingRepo) GetByType(rankingType models.RankingType, userID *uint, limit int) ([]models.ModelRanking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]models.ModelRanking(nil), r.s.rankings[rankKey(rankingType, userID)]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) manager() *repository.RepositoryManager {
	return &repository.RepositoryManager{
		Search:         memSearchRepo{m},
		Result:         memResultRepo{m},
		Click:          memClickRepo{m},
		Feedback:       memFeedbackRepo{m},
		ModelStat:      memModelStatRepo{m},
		TrendingMetric: memTrendingRepo{m},
		ModelRanking:   memRankingRepo{m},
	}
}

// stubQuerier answers instantly for every endpoint.
type stubQuerier struct{}

func (stubQuerier) Query(ctx context.Context, endpoint provider.Endpoint, prompt string) provider.Result {
	return provider.Result{
		ModelID:        endpoint.ID,
		OK:             true,
		Content:        "stub answer from " + endpoint.ID,
		Title:          endpoint.DisplayName,
		Snippet:        "stub answer from " + endpoint.ID,
		ResponseTimeMs: 25,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type testApp struct {
	store  *memStore
	router *gin.Engine
}

func newTestApp() *testApp {
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	logger := quietLogger()
	repos := store.manager()
	names := map[string]string{"gpt-4": "GPT-4", "claude": "Claude"}

	endpoints := []provider.Endpoint{
		{ID: "gpt-4", DisplayName: "GPT-4"},
		{ID: "claude", DisplayName: "Claude"},
	}

	tracker := services.NewTrackingService(repos, nil, names, logger)
	dispatcher := services.NewDispatcherService(stubQuerier{}, endpoints, tracker, logger)
	ranker := services.NewRankingService(repos, names, logger)

	searchHandler := NewSearchHandler(dispatcher, logger)
	interactionHandler := NewInteractionHandler(tracker, nil, logger)
	rankingHandler := NewRankingHandler(ranker, nil, logger)

	router := gin.New()
	router.Use(middleware.Identity())
	api := router.Group("/api")
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

	return &testApp{store: store, router: router}
}

func (a *testApp) seedResult(modelID string) models.Result {
	search := &models.Search{QueryText: "seed"}
	a.store.Create(search)
	result := &models.Result{SearchID: search.ID, ModelID: modelID, Content: "seeded"}
	a.store.Create(result)
	return *result
}
