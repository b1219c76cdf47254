package models

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
}

// SearchSnapshot is the non-streaming response body: the complete search
// with all provider results and the batch total time.
type SearchSnapshot struct {
	Search    Search   `json:"search"`
	Results   []Result `json:"results"`
	TotalTime int      `json:"totalTime"`
}

type ClickRequest struct {
	ResultID uint  `json:"resultId" binding:"required"`
	UserID   *uint `json:"userId"`
}

type ClickResponse struct {
	Success bool            `json:"success"`
	Click   Click           `json:"click"`
	Stats   []ModelStatView `json:"stats"`
}

type FeedbackRequest struct {
	ResultID     uint   `json:"resultId" binding:"required"`
	FeedbackType string `json:"feedbackType" binding:"required"`
}

type FeedbackResponse struct {
	Success  bool     `json:"success"`
	Feedback Feedback `json:"feedback"`
}

// ModelStatView is a ModelStat annotated with the derived click-share
// percentage and the provider display name. Computed at read time, never
// stored.
type ModelStatView struct {
	ModelStat
	Percentage  int    `json:"percentage"`
	DisplayName string `json:"display_name"`
}

type TrendingModelView struct {
	TrendingMetric
	Trending    TrendDirection `json:"trending"`
	DisplayName string         `json:"display_name"`
}

type RankedModelView struct {
	ModelRanking
	DisplayName string `json:"display_name"`
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
