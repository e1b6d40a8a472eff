package model

import "time"

// TargetCount is one entry of a top-targets insight list.
type TargetCount struct {
	Target string `json:"target"`
	Count  int64  `json:"count"`
}

// CountryCount is one entry of a top-countries insight list.
type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// PeakHour is the hour-of-day bucket (display timezone) with the most
// distinct active visitors in the window. Hour 0 / count 0 on an empty window.
type PeakHour struct {
	Hour     int   `json:"hour"` // 0-23
	Visitors int64 `json:"visitors"`
}

// KPISnapshot is the computed, immutable summary of one reporting cycle.
// It is both the email content source and the next cycle's diff baseline.
type KPISnapshot struct {
	ID string `json:"id"`

	// Window bounds. Windowed metrics cover [WindowStart, WindowEnd];
	// all-time metrics ignore the window.
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	// All-time totals
	TotalVisitors int64 `json:"total_visitors"`
	TotalEvents   int64 `json:"total_events"`

	// Windowed scalars
	PageViews         int64 `json:"page_views"`
	UniqueVisitors    int64 `json:"unique_visitors"`
	NewVisitors       int64 `json:"new_visitors"`
	ReturningVisitors int64 `json:"returning_visitors"`

	// AvgSessionMs is the average per-visitor sum of positive stay times
	// in the window, in milliseconds.
	AvgSessionMs float64 `json:"avg_session_ms"`

	// Interactions aliases PageViews; kept as its own field because the
	// report lays the two out separately.
	Interactions int64 `json:"interactions"`

	// AvgInteractionMs is the flat per-event average of positive stay
	// times in the window, in milliseconds.
	AvgInteractionMs float64 `json:"avg_interaction_ms"`

	// All-time rates, one decimal place
	RetentionRate float64 `json:"retention_rate"` // percent, [0,100]
	AvgPageDepth  float64 `json:"avg_page_depth"` // distinct pages per visitor

	// Insight lists
	TopTargets   []TargetCount  `json:"top_targets"`
	TopCountries []CountryCount `json:"top_countries"`
	PeakHour     PeakHour       `json:"peak_hour"`

	CreatedAt time.Time `json:"created_at"` // equals WindowEnd
}

// ZeroSnapshot returns the implicit baseline used when no prior snapshot
// exists: every scalar zero, so a first report diffs against nothing.
func ZeroSnapshot() KPISnapshot {
	return KPISnapshot{}
}
