// Package report renders, schedules and delivers KPI reports.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/pagepulse/pagepulse/internal/model"
)

// Render turns a current snapshot and its baseline into an email subject and
// plain-text body. Pure formatting, no I/O. Every scalar shows its delta
// against the baseline; a zero baseline makes each delta equal the value.
func Render(current, baseline model.KPISnapshot, loc *time.Location) (subject, body string) {
	day := current.WindowEnd.In(loc).Format("2006-01-02")
	subject = fmt.Sprintf("PagePulse Daily Report %s", day)

	var b strings.Builder

	fmt.Fprintf(&b, "PagePulse KPI Report\n")
	fmt.Fprintf(&b, "Window: %s to %s (%s)\n\n",
		current.WindowStart.In(loc).Format("2006-01-02 15:04"),
		current.WindowEnd.In(loc).Format("2006-01-02 15:04"),
		loc.String(),
	)

	b.WriteString("All-time totals\n")
	writeIntMetric(&b, "Total visitors", current.TotalVisitors, baseline.TotalVisitors)
	writeIntMetric(&b, "Total events", current.TotalEvents, baseline.TotalEvents)
	b.WriteString("\n")

	b.WriteString("This window\n")
	writeIntMetric(&b, "Page views", current.PageViews, baseline.PageViews)
	writeIntMetric(&b, "Unique visitors", current.UniqueVisitors, baseline.UniqueVisitors)
	writeIntMetric(&b, "New visitors", current.NewVisitors, baseline.NewVisitors)
	writeIntMetric(&b, "Returning visitors", current.ReturningVisitors, baseline.ReturningVisitors)
	writeDurationMetric(&b, "Avg session", current.AvgSessionMs, baseline.AvgSessionMs)
	writeIntMetric(&b, "Interactions", current.Interactions, baseline.Interactions)
	writeDurationMetric(&b, "Avg interaction", current.AvgInteractionMs, baseline.AvgInteractionMs)
	b.WriteString("\n")

	b.WriteString("All-time rates\n")
	writePercentMetric(&b, "Retention rate", current.RetentionRate, baseline.RetentionRate)
	writeFloatMetric(&b, "Avg page depth", current.AvgPageDepth, baseline.AvgPageDepth)
	b.WriteString("\n")

	b.WriteString("Top targets\n")
	writeTargetList(&b, current.TopTargets)
	b.WriteString("\n")

	b.WriteString("Top countries\n")
	writeCountryList(&b, current.TopCountries)
	b.WriteString("\n")

	fmt.Fprintf(&b, "Peak hour: %02d:00 (%d visitors)\n", current.PeakHour.Hour, current.PeakHour.Visitors)

	return subject, b.String()
}

const metricWidth = 22

func writeIntMetric(b *strings.Builder, label string, cur, base int64) {
	fmt.Fprintf(b, "  %-*s %10d   %s\n", metricWidth, label, cur, deltaInt(cur-base))
}

func writeFloatMetric(b *strings.Builder, label string, cur, base float64) {
	fmt.Fprintf(b, "  %-*s %10.1f   %s\n", metricWidth, label, cur, deltaFloat(cur-base, ""))
}

func writePercentMetric(b *strings.Builder, label string, cur, base float64) {
	fmt.Fprintf(b, "  %-*s %9.1f%%   %s\n", metricWidth, label, cur, deltaFloat(cur-base, "pp"))
}

func writeDurationMetric(b *strings.Builder, label string, curMs, baseMs float64) {
	fmt.Fprintf(b, "  %-*s %10s   %s\n", metricWidth, label, formatMillis(curMs), deltaDuration(curMs-baseMs))
}

// deltaInt formats an integer delta with its direction marker. Zero is
// neutral, not positive.
func deltaInt(d int64) string {
	switch {
	case d > 0:
		return fmt.Sprintf("up %d", d)
	case d < 0:
		return fmt.Sprintf("down %d", -d)
	default:
		return "no change"
	}
}

// deltaFloat formats a one-decimal delta with an optional unit suffix
// ("pp" for percentage points).
func deltaFloat(d float64, unit string) string {
	if unit != "" {
		unit = " " + unit
	}
	switch {
	case d > 0:
		return fmt.Sprintf("up %.1f%s", d, unit)
	case d < 0:
		return fmt.Sprintf("down %.1f%s", -d, unit)
	default:
		return "no change"
	}
}

func deltaDuration(dMs float64) string {
	switch {
	case dMs > 0:
		return fmt.Sprintf("up %s", formatMillis(dMs))
	case dMs < 0:
		return fmt.Sprintf("down %s", formatMillis(-dMs))
	default:
		return "no change"
	}
}

// formatMillis renders a millisecond quantity as a duration with 0.1s
// precision.
func formatMillis(ms float64) string {
	d := time.Duration(ms * float64(time.Millisecond))
	return d.Round(100 * time.Millisecond).String()
}

func writeTargetList(b *strings.Builder, targets []model.TargetCount) {
	if len(targets) == 0 {
		b.WriteString("  (no data)\n")
		return
	}
	for i, t := range targets {
		name := t.Target
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(b, "  %d. %s (%d)\n", i+1, name, t.Count)
	}
}

func writeCountryList(b *strings.Builder, countries []model.CountryCount) {
	if len(countries) == 0 {
		b.WriteString("  (no data)\n")
		return
	}
	for i, c := range countries {
		name := c.Country
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(b, "  %d. %s (%d visitors)\n", i+1, name, c.Count)
	}
}
