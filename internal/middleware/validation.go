// Package middleware provides HTTP middleware for the PagePulse API.
package middleware

import (
	"errors"
	"net"
	"unicode"
)

// Validation limits for ping fields.
const (
	// MaxEventTypeLength is the maximum length for an event type.
	MaxEventTypeLength = 500

	// MaxTargetLength is the maximum length for an event target label.
	MaxTargetLength = 500

	// MaxPagePathLength is the maximum length for a page identifier.
	MaxPagePathLength = 2048
)

// Validation errors.
var (
	ErrEventTypeMissing = errors.New("event type is required")
	ErrEventTypeTooLong = errors.New("event type exceeds maximum length")
	ErrEventTypeInvalid = errors.New("event type contains control characters")
	ErrTargetTooLong    = errors.New("target exceeds maximum length")
	ErrTargetInvalid    = errors.New("target contains control characters")
	ErrPageMissing      = errors.New("page is required")
	ErrPageTooLong      = errors.New("page exceeds maximum length")
	ErrStayTimeNegative = errors.New("stay time must not be negative")
	ErrBackfillIP       = errors.New("mock_ip is not a valid IP address")
)

// ValidateEventType validates the event type of a ping.
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return ErrEventTypeMissing
	}
	if len(eventType) > MaxEventTypeLength {
		return ErrEventTypeTooLong
	}
	if hasControlChars(eventType) {
		return ErrEventTypeInvalid
	}
	return nil
}

// ValidateTarget validates the optional target label of a ping.
func ValidateTarget(target string) error {
	if len(target) > MaxTargetLength {
		return ErrTargetTooLong
	}
	if hasControlChars(target) {
		return ErrTargetInvalid
	}
	return nil
}

// ValidatePage validates the page identifier of a ping.
func ValidatePage(page string) error {
	if page == "" {
		return ErrPageMissing
	}
	if len(page) > MaxPagePathLength {
		return ErrPageTooLong
	}
	return nil
}

// ValidateStayTime validates the stay time of a ping.
func ValidateStayTime(stayTimeMs int64) error {
	if stayTimeMs < 0 {
		return ErrStayTimeNegative
	}
	return nil
}

// ValidateBackfillIP validates an admin-supplied synthetic source IP.
// Empty is valid (no backfill).
func ValidateBackfillIP(ip string) error {
	if ip == "" {
		return nil
	}
	if net.ParseIP(ip) == nil {
		return ErrBackfillIP
	}
	return nil
}

// hasControlChars reports whether the string contains control characters,
// which have no business in event metadata and can corrupt logs.
func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
