// Package geoip resolves visitor IPs to coarse geolocation profiles.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
)

const (
	// DialTimeout is the connection timeout for lookups.
	DialTimeout = 2 * time.Second

	// maxResponseSize bounds a lookup response body.
	maxResponseSize = 16 * 1024
)

// Client queries an ip-api.com compatible JSON endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a lookup client. baseURL is the endpoint without a
// trailing slash, e.g. "http://ip-api.com/json". timeout bounds one lookup
// end to end.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// lookupResponse is the ip-api.com wire format.
type lookupResponse struct {
	Status     string `json:"status"` // "success" or "fail"
	Message    string `json:"message,omitempty"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// Lookup resolves a public IP via the remote endpoint. The caller is
// expected to have filtered private and invalid addresses already.
func (c *Client) Lookup(ctx context.Context, ip string) (model.GeoProfile, error) {
	url := c.baseURL + "/" + ip

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.GeoProfile{}, fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "PagePulse/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.GeoProfile{}, fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.GeoProfile{}, fmt.Errorf("geo lookup: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return model.GeoProfile{}, fmt.Errorf("read lookup response: %w", err)
	}

	var lr lookupResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return model.GeoProfile{}, fmt.Errorf("decode lookup response: %w", err)
	}

	if lr.Status != "success" {
		return model.GeoProfile{}, fmt.Errorf("geo lookup failed: %s", lr.Message)
	}

	return model.GeoProfile{
		Country: lr.Country,
		Region:  lr.RegionName,
		City:    lr.City,
	}, nil
}

// Lookupable reports whether an IP is worth an outbound lookup: a valid,
// public unicast address. Private, loopback and link-local ranges resolve
// to an unknown profile locally.
func Lookupable(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast() || parsed.IsMulticast() {
		return false
	}
	return true
}
