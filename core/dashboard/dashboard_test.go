package dashboard

import (
	"fmt"
	"testing"
	"time"

	"cyberwatch-soc/core/store"
)

func inc(severity, status, source string, detected, updated time.Time) *store.Incident {
	return &store.Incident{
		Severity:   severity,
		Status:     status,
		Source:     source,
		DetectedAt: detected,
		UpdatedAt:  updated,
	}
}

func TestIsActive(t *testing.T) {
	for status, active := range map[string]bool{
		"Abierto":           true,
		"En Investigación":  true,
		"Cerrado":           false,
		"cerrado - falso +": false,
		"Casi Cerrado":      false,
		"":                  true,
	} {
		if got := IsActive(status); got != active {
			t.Fatalf("IsActive(%q) = %v, want %v", status, got, active)
		}
	}
}

func TestBuildKPIsOpenAndCriticalCounts(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	snapshot := []*store.Incident{
		inc(store.SeverityCritical, "Abierto", "", old, old),
		inc(store.SeverityCritical, "Cerrado", "", old, old.Add(time.Hour)),
		inc(store.SeverityHigh, "En Investigación", "", old, old),
	}
	k := BuildKPIs(snapshot, now)
	if k.OpenIncidents != 2 {
		t.Fatalf("expected 2 open incidents, got %d", k.OpenIncidents)
	}
	if k.CriticalIncidents != 1 {
		t.Fatalf("expected 1 active critical incident, got %d", k.CriticalIncidents)
	}
}

func TestBuildKPIsAlertsToday(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	snapshot := []*store.Incident{
		inc(store.SeverityLow, "Abierto", "", now.Add(-time.Hour), now),
		inc(store.SeverityLow, "Cerrado", "", now.Add(-11*time.Hour), now),
		inc(store.SeverityLow, "Abierto", "", now.Add(-13*time.Hour), now), // yesterday
	}
	k := BuildKPIs(snapshot, now)
	if k.AlertsToday != 2 {
		t.Fatalf("expected 2 alerts today, got %d", k.AlertsToday)
	}
}

func TestBuildKPIsMTTRFloorsToWholeHours(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	base := now.Add(-72 * time.Hour)
	snapshot := []*store.Incident{
		inc(store.SeverityLow, "Cerrado", "", base, base.Add(time.Hour)),
		inc(store.SeverityLow, "Cerrado", "", base, base.Add(2*time.Hour)),
		// Zero duration is excluded from the average.
		inc(store.SeverityLow, "Cerrado", "", base, base),
		// Active incidents never count.
		inc(store.SeverityLow, "Abierto", "", base, base.Add(90*time.Hour)),
	}
	k := BuildKPIs(snapshot, now)
	if k.MTTR != "1h" {
		t.Fatalf("expected MTTR 1h (floor of 1.5h), got %s", k.MTTR)
	}
}

func TestBuildKPIsMTTRWithoutClosedIncidents(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	k := BuildKPIs([]*store.Incident{
		inc(store.SeverityLow, "Abierto", "", now.Add(-time.Hour), now),
	}, now)
	if k.MTTR != "0h" {
		t.Fatalf("expected MTTR 0h, got %s", k.MTTR)
	}
}

func TestSeverityDistributionRounding(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	snapshot := []*store.Incident{
		inc(store.SeverityCritical, "Abierto", "", now, now),
		inc(store.SeverityCritical, "Abierto", "", now, now),
		inc(store.SeverityHigh, "Abierto", "", now, now),
		inc(store.SeverityCritical, "Cerrado", "", now, now),
	}
	buckets := SeverityDistribution(snapshot)
	want := map[string][2]int{
		store.SeverityCritical: {2, 67},
		store.SeverityHigh:     {1, 33},
		store.SeverityMedium:   {0, 0},
		store.SeverityLow:      {0, 0},
	}
	for _, b := range buckets {
		exp := want[b.Severity]
		if b.Count != exp[0] || b.Percent != exp[1] {
			t.Fatalf("%s: got {%d, %d}, want {%d, %d}", b.Severity, b.Count, b.Percent, exp[0], exp[1])
		}
	}
}

func TestSeverityDistributionEmpty(t *testing.T) {
	buckets := SeverityDistribution(nil)
	for _, b := range buckets {
		if b.Count != 0 || b.Percent != 0 {
			t.Fatalf("%s: expected zero bucket, got {%d, %d}", b.Severity, b.Count, b.Percent)
		}
	}
}

func TestTrendWindowBoundaries(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 30, 0, 0, time.UTC)
	snapshot := []*store.Incident{
		inc(store.SeverityLow, "Abierto", "", now.Add(-25*time.Hour), now),   // outside, dropped
		inc(store.SeverityCritical, "Abierto", "", now, now),                 // exactly now, last bucket
		inc(store.SeverityLow, "Abierto", "", now.Add(-24*time.Hour), now),   // window start, first bucket
		inc(store.SeverityLow, "Abierto", "", now.Add(time.Minute), now),     // future, dropped
	}
	tr := TrendData(snapshot, now)
	totalAll := 0
	for _, n := range tr.Totals {
		totalAll += n
	}
	if totalAll != 2 {
		t.Fatalf("expected 2 incidents in window, got %d", totalAll)
	}
	if tr.Totals[23] != 1 || tr.Criticals[23] != 1 {
		t.Fatalf("expected the exactly-now incident in the last bucket, got totals=%v", tr.Totals)
	}
	if tr.Totals[0] != 1 {
		t.Fatalf("expected the window-start incident in the first bucket")
	}
}

func TestTrendLabelsSlideAcrossDayBoundary(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 30, 0, 0, time.UTC)
	tr := TrendData(nil, now)
	if len(tr.Labels) != 24 {
		t.Fatalf("expected 24 labels, got %d", len(tr.Labels))
	}
	if tr.Labels[0] != "12h" {
		t.Fatalf("expected first label 12h (window start hour), got %s", tr.Labels[0])
	}
	if tr.Labels[12] != "00h" {
		t.Fatalf("expected midnight label 00h, got %s", tr.Labels[12])
	}
	if tr.Labels[23] != "11h" {
		t.Fatalf("expected last label 11h, got %s", tr.Labels[23])
	}
}

func TestTrendFallsBackToUpdatedAt(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	snapshot := []*store.Incident{
		{Severity: store.SeverityLow, Status: "Abierto", UpdatedAt: now.Add(-time.Hour)},
	}
	tr := TrendData(snapshot, now)
	total := 0
	for _, n := range tr.Totals {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected updated_at fallback to count the incident")
	}
}

func TestBySourceBucketsAndUnknown(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	snapshot := []*store.Incident{
		inc(store.SeverityCritical, "Abierto", "siem", now, now),
		inc(store.SeverityHigh, "Cerrado", "siem", now, now),
		inc(store.SeverityLow, "Abierto", "siem", now, now),
		inc(store.SeverityMedium, "Abierto", "", now, now),
	}
	out := BySource(snapshot)
	if len(out.Labels) != 2 {
		t.Fatalf("expected 2 groups, got %v", out.Labels)
	}
	if out.Labels[0] != "siem" {
		t.Fatalf("expected siem first, got %s", out.Labels[0])
	}
	if out.Critical[0] != 1 || out.High[0] != 1 || out.Info[0] != 1 {
		t.Fatalf("unexpected siem buckets: %d/%d/%d", out.Critical[0], out.High[0], out.Info[0])
	}
	if out.Labels[1] != UnknownSource || out.Info[1] != 1 {
		t.Fatalf("expected empty source grouped as %s", UnknownSource)
	}
}

func TestBySourceTopTwelveStableTies(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	var snapshot []*store.Incident
	// 14 single-incident sources; all tie, so encounter order decides.
	for i := 0; i < 14; i++ {
		snapshot = append(snapshot, inc(store.SeverityLow, "Abierto", fmt.Sprintf("src-%02d", i), now, now))
	}
	out := BySource(snapshot)
	if len(out.Labels) != 12 {
		t.Fatalf("expected 12 groups, got %d", len(out.Labels))
	}
	for i := 0; i < 12; i++ {
		want := fmt.Sprintf("src-%02d", i)
		if out.Labels[i] != want {
			t.Fatalf("expected stable tie order, got %s at %d", out.Labels[i], i)
		}
	}
}

func TestRecentIncidentsOrdersByDetectedAt(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	a := inc(store.SeverityLow, "Abierto", "", now.Add(-3*time.Hour), now)
	b := inc(store.SeverityLow, "Abierto", "", now.Add(-time.Hour), now)
	c := inc(store.SeverityLow, "Abierto", "", now.Add(-2*time.Hour), now)
	recent := RecentIncidents([]*store.Incident{a, b, c}, 2)
	if len(recent) != 2 || recent[0] != b || recent[1] != c {
		t.Fatalf("unexpected recent ordering")
	}
}
