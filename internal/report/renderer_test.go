package report

import (
	"strings"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
)

func sampleSnapshot() model.KPISnapshot {
	end := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	return model.KPISnapshot{
		ID:                "01HX0000000000000000000000",
		WindowStart:       end.Add(-24 * time.Hour),
		WindowEnd:         end,
		TotalVisitors:     100,
		TotalEvents:       540,
		PageViews:         120,
		UniqueVisitors:    40,
		NewVisitors:       15,
		ReturningVisitors: 25,
		AvgSessionMs:      3000,
		Interactions:      120,
		AvgInteractionMs:  750,
		RetentionRate:     37.0,
		AvgPageDepth:      2.3,
		TopTargets:        []model.TargetCount{{Target: "signup-btn", Count: 30}, {Target: "", Count: 12}},
		TopCountries:      []model.CountryCount{{Country: "China", Count: 25}},
		PeakHour:          model.PeakHour{Hour: 14, Visitors: 18},
		CreatedAt:         end,
	}
}

func TestRender_SubjectAndWindow(t *testing.T) {
	t.Parallel()

	subject, body := Render(sampleSnapshot(), model.ZeroSnapshot(), time.UTC)

	if subject != "PagePulse Daily Report 2026-03-10" {
		t.Errorf("Subject = %q", subject)
	}
	if !strings.Contains(body, "2026-03-09 08:00 to 2026-03-10 08:00 (UTC)") {
		t.Errorf("Body missing window line:\n%s", body)
	}
}

func TestRender_DisplayTimezone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}

	subject, body := Render(sampleSnapshot(), model.ZeroSnapshot(), loc)

	// 2026-03-10 08:00 UTC is 16:00 in Shanghai, same calendar day.
	if subject != "PagePulse Daily Report 2026-03-10" {
		t.Errorf("Subject = %q", subject)
	}
	if !strings.Contains(body, "2026-03-10 16:00 (Asia/Shanghai)") {
		t.Errorf("Body missing localized window end:\n%s", body)
	}
}

func TestRender_ZeroBaselineDeltasEqualValues(t *testing.T) {
	t.Parallel()

	_, body := Render(sampleSnapshot(), model.ZeroSnapshot(), time.UTC)

	for _, want := range []string{
		"up 100",   // total visitors delta
		"up 540",   // total events delta
		"up 120",   // page views delta
		"up 37.0 pp", // retention rate delta
	} {
		if !strings.Contains(body, want) {
			t.Errorf("Body missing delta %q:\n%s", want, body)
		}
	}
}

func TestRender_DiffAgainstBaseline(t *testing.T) {
	t.Parallel()

	baseline := sampleSnapshot()
	current := sampleSnapshot()
	current.UniqueVisitors = 35  // down 5
	current.PageViews = 130     // up 10
	current.RetentionRate = 37.0 // unchanged

	_, body := Render(current, baseline, time.UTC)

	if !strings.Contains(body, "down 5") {
		t.Errorf("Body missing negative delta:\n%s", body)
	}
	if !strings.Contains(body, "up 10") {
		t.Errorf("Body missing positive delta:\n%s", body)
	}
	if !strings.Contains(body, "no change") {
		t.Errorf("Body missing neutral delta:\n%s", body)
	}
}

func TestRender_ListsAndPlaceholders(t *testing.T) {
	t.Parallel()

	_, body := Render(sampleSnapshot(), model.ZeroSnapshot(), time.UTC)

	if !strings.Contains(body, "1. signup-btn (30)") {
		t.Errorf("Body missing ranked target:\n%s", body)
	}
	if !strings.Contains(body, "2. Unknown (12)") {
		t.Errorf("Empty target key should render as Unknown:\n%s", body)
	}
	if !strings.Contains(body, "1. China (25 visitors)") {
		t.Errorf("Body missing ranked country:\n%s", body)
	}
	if !strings.Contains(body, "Peak hour: 14:00 (18 visitors)") {
		t.Errorf("Body missing peak hour:\n%s", body)
	}
}

func TestRender_EmptySnapshot(t *testing.T) {
	t.Parallel()

	empty := model.ZeroSnapshot()
	empty.WindowEnd = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	empty.WindowStart = empty.WindowEnd.Add(-24 * time.Hour)

	_, body := Render(empty, model.ZeroSnapshot(), time.UTC)

	if !strings.Contains(body, "(no data)") {
		t.Errorf("Empty lists should render a placeholder:\n%s", body)
	}
	if !strings.Contains(body, "Peak hour: 00:00 (0 visitors)") {
		t.Errorf("Empty window should render hour 0:\n%s", body)
	}
	if !strings.Contains(body, "no change") {
		t.Errorf("All-zero deltas should be neutral:\n%s", body)
	}
}

func TestDeltaInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    int64
		want string
	}{
		{5, "up 5"},
		{-3, "down 3"},
		{0, "no change"},
	}

	for _, tt := range tests {
		if got := deltaInt(tt.d); got != tt.want {
			t.Errorf("deltaInt(%d) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatMillis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ms   float64
		want string
	}{
		{0, "0s"},
		{1500, "1.5s"},
		{90000, "1m30s"},
	}

	for _, tt := range tests {
		if got := formatMillis(tt.ms); got != tt.want {
			t.Errorf("formatMillis(%v) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
