package usage

import "time"

// Record is one proxied request.
type Record struct {
	// Model is the resolved backend model; RequestedModel is what the client sent.
	Model          string
	RequestedModel string
	Endpoint       string
	Stream         bool
	Status         int
	Failed         bool
	InputTokens    int64
	OutputTokens   int64
	CachedTokens   int64
	Latency        time.Duration
	RequestedAt    time.Time
}

// TotalTokens is input plus output.
func (r Record) TotalTokens() int64 {
	return r.InputTokens + r.OutputTokens
}

// AggregatedStats summarizes a time period.
type AggregatedStats struct {
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	FailureCount  int64 `json:"failure_count"`
	InputTokens   int64 `json:"input_tokens"`
	OutputTokens  int64 `json:"output_tokens"`
	TotalTokens   int64 `json:"total_tokens"`
}

type DailyStats struct {
	Day      string `json:"day"` // 2006-01-02, UTC
	Requests int64  `json:"requests"`
	Tokens   int64  `json:"tokens"`
}

type ModelStats struct {
	Model        string `json:"model"`
	Requests     int64  `json:"requests"`
	SuccessCount int64  `json:"success_count"`
	FailureCount int64  `json:"failure_count"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	CachedTokens int64  `json:"cached_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
}

type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	Requests     int64   `json:"requests"`
	FailureCount int64   `json:"failure_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// Summary is the GET /usage response.
type Summary struct {
	CounterSnapshot
	Since     time.Time        `json:"since"`
	Persisted *AggregatedStats `json:"persisted,omitempty"`
	Daily     []DailyStats     `json:"daily,omitempty"`
	Models    []ModelStats     `json:"models,omitempty"`
	Endpoints []EndpointStats  `json:"endpoints,omitempty"`
}
