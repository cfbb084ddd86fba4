package dto

import "time"

// Violation is a single guard-chain rule failure, scoped to the field
// that triggered it (e.g. "comments.services", "ratings").
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// RejectionResponse is the body of a 400 guard rejection. Every violated
// field is enumerated, not just the first.
type RejectionResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Errors  []Violation `json:"errors"`
}

// RateLimitedResponse is the body of a 429 guard rejection.
type RateLimitedResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

type SuspiciousEvent struct {
	ID        string                 `json:"id"`
	IP        string                 `json:"ip"`
	Type      string                 `json:"type"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SecurityMetrics is a point-in-time snapshot of the monitor state.
type SecurityMetrics struct {
	TotalSubmissions   int64     `json:"total_submissions"`
	SuspiciousAttempts int64     `json:"suspicious_attempts"`
	BlockedIPs         []string  `json:"blocked_ips"`
	RateLimitHits      int64     `json:"rate_limit_hits"`
	SuspiciousRatio    float64   `json:"suspicious_ratio"`
	LastReset          time.Time `json:"last_reset"`
}

type Alert struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Metrics   SecurityMetrics        `json:"metrics"`
}

type PatternFinding struct {
	Type         string  `json:"type"`
	IP           string  `json:"ip,omitempty"`
	GroupKey     string  `json:"group_key,omitempty"`
	Count        int     `json:"count"`
	MeanInterval float64 `json:"mean_interval_seconds,omitempty"`
	Description  string  `json:"description"`
}

type AnalyzeResponse struct {
	WindowStart time.Time        `json:"window_start"`
	Findings    []PatternFinding `json:"findings"`
}
