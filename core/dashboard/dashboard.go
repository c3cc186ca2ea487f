// Package dashboard derives KPI and chart data from a point-in-time incident
// snapshot. Every function is pure: snapshot plus "now" in, numbers out.
package dashboard

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cyberwatch-soc/core/store"
)

// UnknownSource labels incidents with an empty source in the per-source
// breakdown.
const UnknownSource = "Unknown"

const sourceBreakdownLimit = 12

// IsActive reports whether a status counts as open. The substring test is
// deliberate legacy behavior: status is free text and "cerrado" anywhere in
// it means closed.
func IsActive(status string) bool {
	return !strings.Contains(strings.ToLower(status), "cerrado")
}

type KPIs struct {
	OpenIncidents     int    `json:"open_incidents"`
	CriticalIncidents int    `json:"critical_incidents"`
	AlertsToday       int    `json:"alerts_today"`
	MTTR              string `json:"mttr"`
}

type SeverityBucket struct {
	Severity string `json:"severity"`
	Count    int    `json:"count"`
	Percent  int    `json:"percent"`
}

type Trend struct {
	Labels    []string `json:"labels"`
	Totals    []int    `json:"totals"`
	Criticals []int    `json:"criticals"`
}

type SourceBreakdown struct {
	Labels   []string `json:"labels"`
	Critical []int    `json:"critical"`
	High     []int    `json:"high"`
	Info     []int    `json:"info"`
}

// BuildKPIs computes the headline numbers. MTTR averages (updated−detected)
// over closed incidents with a strictly positive duration, floored to whole
// hours; no such incidents yields "0h".
func BuildKPIs(snapshot []*store.Incident, now time.Time) KPIs {
	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var k KPIs
	var closedTotal time.Duration
	var closedCount int
	for _, inc := range snapshot {
		detected := inc.DetectedAt.UTC()
		updated := inc.UpdatedAt.UTC()
		if IsActive(inc.Status) {
			k.OpenIncidents++
			if inc.Severity == store.SeverityCritical {
				k.CriticalIncidents++
			}
		} else if d := updated.Sub(detected); d > 0 {
			closedTotal += d
			closedCount++
		}
		if !detected.Before(dayStart) && !detected.After(now) {
			k.AlertsToday++
		}
	}
	hours := 0
	if closedCount > 0 {
		hours = int((closedTotal / time.Duration(closedCount)).Hours())
	}
	k.MTTR = fmt.Sprintf("%dh", hours)
	return k
}

// SeverityDistribution buckets active incidents by severity. Percentages are
// rounded independently and need not sum to 100.
func SeverityDistribution(snapshot []*store.Incident) []SeverityBucket {
	order := []string{store.SeverityCritical, store.SeverityHigh, store.SeverityMedium, store.SeverityLow}
	counts := map[string]int{}
	total := 0
	for _, inc := range snapshot {
		if !IsActive(inc.Status) {
			continue
		}
		counts[inc.Severity]++
		total++
	}
	buckets := make([]SeverityBucket, 0, len(order))
	for _, sev := range order {
		b := SeverityBucket{Severity: sev, Count: counts[sev]}
		if total > 0 {
			b.Percent = int(math.Round(float64(b.Count*100) / float64(total)))
		}
		buckets = append(buckets, b)
	}
	return buckets
}

// TrendData fills 24 one-hour buckets over [now−24h, now]. Labels come from
// each bucket's start hour, so the axis slides across the day boundary.
// An incident's reference time is detected_at, falling back to updated_at;
// out-of-window incidents are dropped, not clamped.
func TrendData(snapshot []*store.Incident, now time.Time) Trend {
	now = now.UTC()
	windowStart := now.Add(-24 * time.Hour)
	t := Trend{
		Labels:    make([]string, 24),
		Totals:    make([]int, 24),
		Criticals: make([]int, 24),
	}
	for i := 0; i < 24; i++ {
		t.Labels[i] = fmt.Sprintf("%02dh", windowStart.Add(time.Duration(i)*time.Hour).Hour())
	}
	for _, inc := range snapshot {
		ts := inc.DetectedAt
		if ts.IsZero() {
			ts = inc.UpdatedAt
		}
		ts = ts.UTC()
		if ts.Before(windowStart) || ts.After(now) {
			continue
		}
		idx := int(ts.Sub(windowStart) / time.Hour)
		if idx > 23 {
			idx = 23
		}
		t.Totals[idx]++
		if inc.Severity == store.SeverityCritical {
			t.Criticals[idx]++
		}
	}
	return t
}

type sourceGroup struct {
	label    string
	critical int
	high     int
	info     int
}

func (g *sourceGroup) total() int {
	return g.critical + g.high + g.info
}

// BySource groups all incidents by source, keeps the twelve largest groups
// and emits parallel arrays. Ties keep first-seen order.
func BySource(snapshot []*store.Incident) SourceBreakdown {
	var groups []*sourceGroup
	index := map[string]*sourceGroup{}
	for _, inc := range snapshot {
		label := inc.Source
		if label == "" {
			label = UnknownSource
		}
		g, ok := index[label]
		if !ok {
			g = &sourceGroup{label: label}
			index[label] = g
			groups = append(groups, g)
		}
		switch inc.Severity {
		case store.SeverityCritical:
			g.critical++
		case store.SeverityHigh:
			g.high++
		default:
			g.info++
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].total() > groups[j].total()
	})
	if len(groups) > sourceBreakdownLimit {
		groups = groups[:sourceBreakdownLimit]
	}
	out := SourceBreakdown{
		Labels:   make([]string, 0, len(groups)),
		Critical: make([]int, 0, len(groups)),
		High:     make([]int, 0, len(groups)),
		Info:     make([]int, 0, len(groups)),
	}
	for _, g := range groups {
		out.Labels = append(out.Labels, g.label)
		out.Critical = append(out.Critical, g.critical)
		out.High = append(out.High, g.high)
		out.Info = append(out.Info, g.info)
	}
	return out
}

// RecentIncidents returns the n most recently detected incidents.
func RecentIncidents(snapshot []*store.Incident, n int) []*store.Incident {
	sorted := make([]*store.Incident, len(snapshot))
	copy(sorted, snapshot)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DetectedAt.After(sorted[j].DetectedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
