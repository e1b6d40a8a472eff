package analytics

import (
	"fmt"
	"net"
)

const (
	maxMetaLength = 500
	maxPageLength = 2048
)

// ValidatePingPayload validates ping payload fields before persistence.
func ValidatePingPayload(ping PingPayload) error {
	if ping.IP == "" {
		return fmt.Errorf("ip is required")
	}
	if net.ParseIP(ping.IP) == nil {
		return fmt.Errorf("ip is not an address")
	}
	if ping.Type == "" {
		return fmt.Errorf("type is required")
	}
	if len(ping.Type) > maxMetaLength {
		return fmt.Errorf("type too long")
	}
	if ping.Page == "" {
		return fmt.Errorf("page is required")
	}
	if len(ping.Page) > maxPageLength {
		return fmt.Errorf("page too long")
	}
	if len(ping.Target) > maxMetaLength {
		return fmt.Errorf("target too long")
	}
	if ping.StayTimeMs < 0 {
		return fmt.Errorf("stay_time must not be negative")
	}
	if ping.CreatedAt <= 0 {
		return fmt.Errorf("created_at must be set")
	}
	return nil
}
