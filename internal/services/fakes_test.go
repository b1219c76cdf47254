package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polyquery/polyquery/internal/models"
	"github.com/polyquery/polyquery/internal/repository"
)

// In-memory repository fakes backing the service tests.

type fakeSearchRepo struct {
	mu       sync.Mutex
	searches []models.Search
	failNext bool
}

func (f *fakeSearchRepo) Create(search *models.Search) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return fmt.Errorf("connection refused")
	}
	search.ID = uint(len(f.searches) + 1)
	search.CreatedAt = time.Now()
	f.searches = append(f.searches, *search)
	return nil
}

func (f *fakeSearchRepo) GetByID(id uint) (*models.Search, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.searches {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("search not found")
}

func (f *fakeSearchRepo) GetRecent(limit int) ([]models.Search, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.Search(nil), f.searches...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeResultRepo struct {
	mu       sync.Mutex
	results  []models.Result
	failNext bool
}

func (f *fakeResultRepo) Create(result *models.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return fmt.Errorf("connection refused")
	}
	result.ID = uint(len(f.results) + 1)
	result.CreatedAt = time.Now()
	f.results = append(f.results, *result)
	return nil
}

func (f *fakeResultRepo) GetByID(id uint) (*models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("result not found")
}

func (f *fakeResultRepo) GetBySearchID(searchID uint) ([]models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Result
	for _, r := range f.results {
		if r.SearchID == searchID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeClickRepo struct {
	mu     sync.Mutex
	clicks []models.Click
}

func (f *fakeClickRepo) Create(click *models.Click) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	click.ID = uint(len(f.clicks) + 1)
	click.CreatedAt = time.Now()
	f.clicks = append(f.clicks, *click)
	return nil
}

type fakeFeedbackRepo struct {
	mu       sync.Mutex
	feedback []models.Feedback
	nextID   uint
}

func (f *fakeFeedbackRepo) Upsert(feedback *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if feedback.UserID == nil {
		return fmt.Errorf("upsert requires an identified user")
	}
	for i, existing := range f.feedback {
		if existing.ResultID == feedback.ResultID &&
			existing.UserID != nil && *existing.UserID == *feedback.UserID {
			f.feedback[i].FeedbackType = feedback.FeedbackType
			f.feedback[i].UpdatedAt = time.Now()
			*feedback = f.feedback[i]
			return nil
		}
	}
	f.nextID++
	feedback.ID = f.nextID
	feedback.CreatedAt = time.Now()
	feedback.UpdatedAt = feedback.CreatedAt
	f.feedback = append(f.feedback, *feedback)
	return nil
}

func (f *fakeFeedbackRepo) Insert(feedback *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	feedback.ID = f.nextID
	feedback.CreatedAt = time.Now()
	feedback.UpdatedAt = feedback.CreatedAt
	f.feedback = append(f.feedback, *feedback)
	return nil
}

func (f *fakeFeedbackRepo) GetByResultID(resultID uint) ([]models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Feedback
	for _, fb := range f.feedback {
		if fb.ResultID == resultID {
			out = append(out, fb)
		}
	}
	return out, nil
}

type fakeModelStatRepo struct {
	mu    sync.Mutex
	stats map[string]*models.ModelStat
}

func newFakeModelStatRepo() *fakeModelStatRepo {
	return &fakeModelStatRepo{stats: make(map[string]*models.ModelStat)}
}

func (f *fakeModelStatRepo) ensure(modelID string) *models.ModelStat {
	if stat, ok := f.stats[modelID]; ok {
		return stat
	}
	stat := &models.ModelStat{ID: uint(len(f.stats) + 1), ModelID: modelID}
	f.stats[modelID] = stat
	return stat
}

func (f *fakeModelStatRepo) IncrementClicks(modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat := f.ensure(modelID)
	stat.ClickCount++
	stat.UpdatedAt = time.Now()
	return nil
}

func (f *fakeModelStatRepo) IncrementSearches(modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stat := f.ensure(modelID)
	stat.SearchCount++
	stat.UpdatedAt = time.Now()
	return nil
}

func (f *fakeModelStatRepo) GetAll() ([]models.ModelStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ModelStat, 0, len(f.stats))
	for _, stat := range f.stats {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out, nil
}

func (f *fakeModelStatRepo) GetByModelID(modelID string) (*models.ModelStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stat, ok := f.stats[modelID]; ok {
		copied := *stat
		return &copied, nil
	}
	return nil, fmt.Errorf("model stat not found")
}

type fakeTrendingMetricRepo struct {
	mu             sync.Mutex
	metrics        map[string]models.TrendingMetric
	windowAggs     []models.InteractionAggregate
	allTimeAggs    []models.InteractionAggregate
	userAggs       []models.UserInteractionAggregate
	upsertCount    int
	lastWindowFrom time.Time
	lastWindowTo   time.Time
}

func newFakeTrendingMetricRepo() *fakeTrendingMetricRepo {
	return &fakeTrendingMetricRepo{metrics: make(map[string]models.TrendingMetric)}
}

func metricKey(m *models.TrendingMetric) string {
	return fmt.Sprintf("%s|%s|%d", m.ModelID, m.TimePeriod, m.PeriodStart.Unix())
}

func (f *fakeTrendingMetricRepo) Upsert(metric *models.TrendingMetric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCount++
	f.metrics[metricKey(metric)] = *metric
	return nil
}

func (f *fakeTrendingMetricRepo) GetByPeriod(period models.TimePeriod, limit int) ([]models.TrendingMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := make(map[string]models.TrendingMetric)
	for _, m := range f.metrics {
		if m.TimePeriod != period {
			continue
		}
		if prev, ok := latest[m.ModelID]; !ok || m.PeriodStart.After(prev.PeriodStart) {
			latest[m.ModelID] = m
		}
	}
	out := make([]models.TrendingMetric, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrendScore != out[j].TrendScore {
			return out[i].TrendScore > out[j].TrendScore
		}
		return out[i].ModelID < out[j].ModelID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTrendingMetricRepo) GetLatestForModel(modelID string, period models.TimePeriod) (*models.TrendingMetric, error) {
	metrics, err := f.GetByPeriod(period, 0)
	if err != nil {
		return nil, err
	}
	for _, m := range metrics {
		if m.ModelID == modelID {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("trending metric not found")
}

func (f *fakeTrendingMetricRepo) AggregateWindow(from, to time.Time) ([]models.InteractionAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastWindowFrom = from
	f.lastWindowTo = to
	return append([]models.InteractionAggregate(nil), f.windowAggs...), nil
}

func (f *fakeTrendingMetricRepo) AggregateAllTime() ([]models.InteractionAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.InteractionAggregate(nil), f.allTimeAggs...), nil
}

func (f *fakeTrendingMetricRepo) AggregateUserWindow(userID uint, from, to time.Time) ([]models.UserInteractionAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.UserInteractionAggregate(nil), f.userAggs...), nil
}

type fakeModelRankingRepo struct {
	mu         sync.Mutex
	partitions map[string][]models.ModelRanking
}

func newFakeModelRankingRepo() *fakeModelRankingRepo {
	return &fakeModelRankingRepo{partitions: make(map[string][]models.ModelRanking)}
}

func partitionKey(rankingType models.RankingType, userID *uint) string {
	if userID == nil {
		return string(rankingType)
	}
	return fmt.Sprintf("%s|%d", rankingType, *userID)
}

func (f *fakeModelRankingRepo) Replace(rankingType models.RankingType, userID *uint, rankings []models.ModelRanking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitions[partitionKey(rankingType, userID)] = append([]models.ModelRanking(nil), rankings...)
	return nil
}

func (f *fakeModelRankingRepo) GetByType(rankingType models.RankingType, userID *uint, limit int) ([]models.ModelRanking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.ModelRanking(nil), f.partitions[partitionKey(rankingType, userID)]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeRepos struct {
	search   *fakeSearchRepo
	result   *fakeResultRepo
	click    *fakeClickRepo
	feedback *fakeFeedbackRepo
	stat     *fakeModelStatRepo
	trending *fakeTrendingMetricRepo
	ranking  *fakeModelRankingRepo
	manager  *repository.RepositoryManager
}

func newFakeRepos() *fakeRepos {
	f := &fakeRepos{
		search:   &fakeSearchRepo{},
		result:   &fakeResultRepo{},
		click:    &fakeClickRepo{},
		feedback: &fakeFeedbackRepo{},
		stat:     newFakeModelStatRepo(),
		trending: newFakeTrendingMetricRepo(),
		ranking:  newFakeModelRankingRepo(),
	}
	f.manager = &repository.RepositoryManager{
		Search:         f.search,
		Result:         f.result,
		Click:          f.click,
		Feedback:       f.feedback,
		ModelStat:      f.stat,
		TrendingMetric: f.trending,
		ModelRanking:   f.ranking,
	}
	return f
}
