package models

import "time"

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// SystemMetricsSnapshot is a point-in-time aggregate of the engine's
// counters, served by the operational status endpoint.
type SystemMetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	ScansTotal               uint64    `json:"scans_total"`
	VerificationsTotal       uint64    `json:"verifications_total"`
	ConflictsResolvedTotal   uint64    `json:"conflicts_resolved_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
