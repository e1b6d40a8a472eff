package dto

import (
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
)

// ReportConfig is the API shape of the reporting configuration.
// The cooldown travels in seconds rather than Go duration syntax.
type ReportConfig struct {
	FireTimes  []string `json:"fire_times"`
	Recipients []string `json:"recipients"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPassword string `json:"smtp_password,omitempty"`
	SMTPFrom     string `json:"smtp_from"`
	SMTPImplicit bool   `json:"smtp_implicit_tls"`

	AlertThreshold    int   `json:"alert_threshold"`
	AlertCooldownSecs int64 `json:"alert_cooldown_seconds"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ToModel converts the API shape into the domain config.
func (c ReportConfig) ToModel() model.ReportConfig {
	return model.ReportConfig{
		FireTimes:      c.FireTimes,
		Recipients:     c.Recipients,
		SMTPHost:       c.SMTPHost,
		SMTPPort:       c.SMTPPort,
		SMTPUser:       c.SMTPUser,
		SMTPPassword:   c.SMTPPassword,
		SMTPFrom:       c.SMTPFrom,
		SMTPImplicit:   c.SMTPImplicit,
		AlertThreshold: c.AlertThreshold,
		AlertCooldown:  time.Duration(c.AlertCooldownSecs) * time.Second,
		UpdatedAt:      c.UpdatedAt,
	}
}

// ReportConfigFromModel converts a domain config into the API shape.
func ReportConfigFromModel(m model.ReportConfig) ReportConfig {
	return ReportConfig{
		FireTimes:         m.FireTimes,
		Recipients:        m.Recipients,
		SMTPHost:          m.SMTPHost,
		SMTPPort:          m.SMTPPort,
		SMTPUser:          m.SMTPUser,
		SMTPPassword:      m.SMTPPassword,
		SMTPFrom:          m.SMTPFrom,
		SMTPImplicit:      m.SMTPImplicit,
		AlertThreshold:    m.AlertThreshold,
		AlertCooldownSecs: int64(m.AlertCooldown / time.Second),
		UpdatedAt:         m.UpdatedAt,
	}
}
