//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// The e2e smoke test exercises the full pipeline against a running stack:
// track a backfilled ping, wait for the worker to persist it, read it back
// through the stats endpoint, then trigger a report cycle.
//
// Requirements: a running server (PAGEPULSE_BASE_URL, default
// http://localhost:8080) and TEST_ADMIN_TOKEN matching its ADMIN_TOKEN_HASH.

func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("PAGEPULSE_BASE_URL", "http://localhost:8080")
	adminToken := os.Getenv("TEST_ADMIN_TOKEN")
	if adminToken == "" {
		t.Fatalf("TEST_ADMIN_TOKEN is required for e2e tests")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	// Synthetic visitor with a unique IP so the run is self-contained.
	mockIP := fmt.Sprintf("198.51.100.%d", time.Now().Unix()%200+1)

	trackPing(t, client, baseURL, adminToken, map[string]any{
		"type":    "view",
		"page":    "/e2e",
		"mock_ip": mockIP,
		"mock_location": map[string]string{
			"country": "Japan",
			"region":  "Tokyo",
			"city":    "Shibuya",
		},
	})
	trackPing(t, client, baseURL, adminToken, map[string]any{
		"type":     "click",
		"target":   "e2e-button",
		"page":     "/e2e",
		"stayTime": 1500,
		"mock_ip":  mockIP,
	})

	waitForStats(t, client, baseURL)
	triggerTestReport(t, client, baseURL, adminToken)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func trackPing(t *testing.T, client *http.Client, baseURL, adminToken string, body map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal ping: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/track", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("track ping: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("track returned %d: %s", resp.StatusCode, payload)
	}
}

// waitForStats polls /api/stats until the pings show up or the deadline hits.
// The worker batches with a block timeout, so a couple of seconds is normal.
func waitForStats(t *testing.T, client *http.Client, baseURL string) {
	t.Helper()

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/api/stats")
		if err != nil {
			t.Fatalf("get stats: %v", err)
		}

		var snap struct {
			TotalEvents    int64 `json:"total_events"`
			UniqueVisitors int64 `json:"unique_visitors"`
		}
		err = json.NewDecoder(resp.Body).Decode(&snap)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode stats: %v", err)
		}

		if snap.TotalEvents >= 2 && snap.UniqueVisitors >= 1 {
			return
		}
		time.Sleep(time.Second)
	}

	t.Fatalf("pings did not appear in stats before deadline")
}

func triggerTestReport(t *testing.T, client *http.Client, baseURL, adminToken string) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/admin/report/test", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("test report: %v", err)
	}
	defer resp.Body.Close()

	// 200 means rendered and delivered (or delivery skipped because SMTP
	// is unconfigured, which is still a pass for the pipeline).
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		t.Fatalf("test report returned %d: %s", resp.StatusCode, payload)
	}
}
