// Package dto defines request and response shapes for the HTTP API.
package dto

import (
	"encoding/json"
	"fmt"
	"time"
)

// MockLocation is an admin-supplied geolocation for synthetic pings.
type MockLocation struct {
	Country string `json:"country"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// TrackRequest is the body of POST /api/track.
//
// MockIP, MockLocation and CustomCreatedAt are honored only when the
// request carries a valid admin token; anonymous callers may send them
// but they are silently ignored.
type TrackRequest struct {
	Type       string `json:"type"`
	Target     string `json:"target,omitempty"`
	Page       string `json:"page"`
	StayTimeMs int64  `json:"stayTime,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"` // client clock, Unix millis, opaque

	MockIP          string        `json:"mock_ip,omitempty"`
	MockLocation    *MockLocation `json:"mock_location,omitempty"`
	CustomCreatedAt BackfillTime  `json:"custom_created_at,omitempty"`
}

// BackfillTime is the admin backfill timestamp. Clients send it either as
// Unix milliseconds or as an ISO-8601 string; naive strings (no offset) are
// read as UTC. A zero value means the field was absent.
type BackfillTime struct {
	time.Time
}

var backfillLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *BackfillTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			return nil
		}
		for _, layout := range backfillLayouts {
			if parsed, err := time.Parse(layout, raw); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
		return fmt.Errorf("custom_created_at: cannot parse %q as a timestamp", raw)
	}
	var millis int64
	if err := json.Unmarshal(data, &millis); err != nil {
		return fmt.Errorf("custom_created_at: %w", err)
	}
	if millis > 0 {
		t.Time = time.UnixMilli(millis).UTC()
	}
	return nil
}

// AcceptedResponse acknowledges an enqueued ping.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
