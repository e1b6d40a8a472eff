package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReportConfig holds the hot-reloadable reporting settings. It lives in a
// single-row table; every successful save re-derives the scheduler.
type ReportConfig struct {
	// FireTimes are daily wall-clock send times ("HH:MM", 24h) in the
	// display timezone. Empty disables scheduled reports.
	FireTimes []string `json:"fire_times"`

	// Recipients for reports and alerts. Empty makes sending a no-op.
	Recipients []string `json:"recipients"`

	// SMTP transport settings.
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password,omitempty"`
	SMTPFrom     string `json:"smtp_from"`
	SMTPImplicit bool   `json:"smtp_implicit_tls"` // port-465 style implicit TLS

	// Anomaly monitor settings.
	AlertThreshold int           `json:"alert_threshold"` // unique visitors per trailing minute
	AlertCooldown  time.Duration `json:"alert_cooldown"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultReportConfig returns the configuration used before any save.
func DefaultReportConfig() ReportConfig {
	return ReportConfig{
		FireTimes:      nil,
		Recipients:     nil,
		SMTPPort:       587,
		AlertThreshold: 200,
		AlertCooldown:  time.Hour,
	}
}

// FireTime is a parsed daily wall-clock mark.
type FireTime struct {
	Hour   int
	Minute int
}

// ParseFireTime parses "HH:MM" into a FireTime.
func ParseFireTime(s string) (FireTime, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return FireTime{}, fmt.Errorf("fire time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return FireTime{}, fmt.Errorf("fire time %q: bad hour", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return FireTime{}, fmt.Errorf("fire time %q: bad minute", s)
	}
	return FireTime{Hour: hour, Minute: minute}, nil
}

// Validate checks the config for values that cannot be scheduled or sent.
// A config with no fire times or no recipients is valid (reporting is
// simply off); malformed values are not.
func (c ReportConfig) Validate() error {
	for _, ft := range c.FireTimes {
		if _, err := ParseFireTime(ft); err != nil {
			return err
		}
	}
	for _, rcpt := range c.Recipients {
		if !strings.Contains(rcpt, "@") {
			return fmt.Errorf("recipient %q is not an email address", rcpt)
		}
	}
	if c.SMTPPort < 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("smtp port %d out of range", c.SMTPPort)
	}
	if c.AlertThreshold < 0 {
		return fmt.Errorf("alert threshold must not be negative")
	}
	if c.AlertCooldown < 0 {
		return fmt.Errorf("alert cooldown must not be negative")
	}
	return nil
}

// ParsedFireTimes returns the parsed fire times, skipping none: Validate
// must have been called first.
func (c ReportConfig) ParsedFireTimes() []FireTime {
	times := make([]FireTime, 0, len(c.FireTimes))
	for _, ft := range c.FireTimes {
		parsed, err := ParseFireTime(ft)
		if err != nil {
			continue
		}
		times = append(times, parsed)
	}
	return times
}

// Redacted returns a copy safe for API responses and logs.
func (c ReportConfig) Redacted() ReportConfig {
	out := c
	if out.SMTPPassword != "" {
		out.SMTPPassword = "********"
	}
	return out
}
