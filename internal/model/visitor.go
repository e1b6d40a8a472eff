// Package model defines domain entities for the application.
package model

import "time"

// Visitor represents one distinct client identity and its profile.
// The IP address is the identity key; a row is created on the first
// event from an IP and afterwards only appended to or read.
type Visitor struct {
	IP string `json:"ip"` // Identity key (unique)

	// Resolved geolocation profile
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`

	// Activity bounds. LastSeenAt is monotonically non-decreasing:
	// it only moves forward when a newer event arrives.
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Event represents a single recorded interaction belonging to one visitor.
type Event struct {
	ID      string `json:"id"`       // ULID (time-sortable)
	EventID string `json:"event_id"` // Idempotency key (Redis stream ID)

	VisitorIP string `json:"visitor_ip"` // FK to visitors.ip

	Type   string `json:"type"`             // view, click, hover, input, ...
	Target string `json:"target,omitempty"` // Interaction target, empty for plain views
	Page   string `json:"page"`             // Page identifier

	// StayTimeMs is the client-measured stay time in milliseconds.
	// Zero means "not measured", not an instant visit.
	StayTimeMs int64 `json:"stay_time_ms"`

	// ClientTS is the client-supplied timestamp in Unix milliseconds.
	// Opaque: never used for windowing, kept for debugging only.
	ClientTS int64 `json:"client_ts"`

	// CreatedAt is the authoritative server-assigned time. All windowing
	// and aggregation use this field.
	CreatedAt time.Time `json:"created_at"`
}

// GeoProfile holds a resolved geolocation for an IP.
type GeoProfile struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
}

// Unknown reports whether the profile carries no location at all.
func (g GeoProfile) Unknown() bool {
	return g.Country == "" && g.Region == "" && g.City == ""
}
