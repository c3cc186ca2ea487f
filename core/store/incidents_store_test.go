package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/utils"
)

func setupTestDB(t *testing.T) (*config.AppConfig, IncidentsStore, UsersStore) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "test.db"),
	}
	logger := utils.NewLogger()
	db, err := NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return cfg, NewIncidentsStore(db, "INC"), NewUsersStore(db)
}

func mkIncident(t *testing.T, incidents IncidentsStore, title, severity, status, source string, owner *string, detected time.Time) *Incident {
	t.Helper()
	inc := &Incident{
		Title:      title,
		Severity:   severity,
		Status:     status,
		Source:     source,
		Owner:      owner,
		DetectedAt: detected,
	}
	if err := incidents.Create(context.Background(), inc); err != nil {
		t.Fatalf("create incident %q: %v", title, err)
	}
	return inc
}

func TestCreateGeneratesSequentialCodes(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	detected := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	first := mkIncident(t, incidents, "first", SeverityLow, "Abierto", "", nil, detected)
	if first.Code != "INC-2024-0001" {
		t.Fatalf("expected INC-2024-0001, got %s", first.Code)
	}
	second := mkIncident(t, incidents, "second", SeverityLow, "Abierto", "", nil, detected)
	if second.Code != "INC-2024-0002" {
		t.Fatalf("expected INC-2024-0002, got %s", second.Code)
	}
}

func TestCreateContinuesFromExistingCode(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	detected := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	seed := &Incident{
		Code:       "INC-2024-0007",
		Title:      "seeded",
		Severity:   SeverityHigh,
		Status:     "Abierto",
		DetectedAt: detected,
	}
	if err := incidents.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	next := mkIncident(t, incidents, "next", SeverityLow, "Abierto", "", nil, detected)
	if next.Code != "INC-2024-0008" {
		t.Fatalf("expected INC-2024-0008, got %s", next.Code)
	}
}

func TestCreateNewYearResetsSequence(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	seed := &Incident{
		Code:       "INC-2024-0007",
		Title:      "old year",
		Severity:   SeverityHigh,
		Status:     "Abierto",
		DetectedAt: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := incidents.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	next := mkIncident(t, incidents, "new year", SeverityLow, "Abierto", "", nil,
		time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC))
	if next.Code != "INC-2025-0001" {
		t.Fatalf("expected INC-2025-0001, got %s", next.Code)
	}
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	detected := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	seed := &Incident{Code: "INC-2024-0001", Title: "a", Severity: SeverityLow, Status: "Abierto", DetectedAt: detected}
	if err := incidents.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	dup := &Incident{Code: "INC-2024-0001", Title: "b", Severity: SeverityLow, Status: "Abierto", DetectedAt: detected}
	if err := incidents.Create(context.Background(), dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateAtCapacityFails(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	detected := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	seed := &Incident{Code: "INC-2024-9999", Title: "last", Severity: SeverityLow, Status: "Abierto", DetectedAt: detected}
	if err := incidents.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed incident: %v", err)
	}
	over := &Incident{Title: "over", Severity: SeverityLow, Status: "Abierto", DetectedAt: detected}
	if err := incidents.Create(context.Background(), over); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestListTotalCountBeforeSlicing(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	detected := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		mkIncident(t, incidents, "inc", SeverityLow, "Abierto", "siem", nil, detected.Add(time.Duration(i)*time.Minute))
	}
	mkIncident(t, incidents, "other", SeverityHigh, "Cerrado", "edr", nil, detected)

	status := "Abierto"
	items, total, err := incidents.List(context.Background(), IncidentFilter{Status: &status}, 3, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 7 {
		t.Fatalf("expected total 7, got %d", total)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items on page, got %d", len(items))
	}
}

func TestSearchMatchesTitleDescriptionCode(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	detected := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	mkIncident(t, incidents, "phishing campaign", SeverityLow, "Abierto", "", nil, detected)
	byDesc := &Incident{Title: "t", Severity: SeverityLow, Status: "Abierto", Description: "lateral phishing move", DetectedAt: detected}
	if err := incidents.Create(context.Background(), byDesc); err != nil {
		t.Fatalf("create: %v", err)
	}
	mkIncident(t, incidents, "unrelated", SeverityLow, "Abierto", "", nil, detected)

	matches, err := incidents.Search(context.Background(), "phishing")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	byCode, err := incidents.Search(context.Background(), "INC-2024-0003")
	if err != nil {
		t.Fatalf("search by code: %v", err)
	}
	if len(byCode) != 1 || byCode[0].Title != "unrelated" {
		t.Fatalf("expected the third incident by code, got %d matches", len(byCode))
	}
}

func TestReleaseOwnerSkipsClosedIncidents(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	owner := "Ana Torres"
	detected := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	open := mkIncident(t, incidents, "open", SeverityLow, "Abierto", "", &owner, detected)
	investigating := mkIncident(t, incidents, "investigating", SeverityLow, "En Investigación", "", &owner, detected)
	closed := mkIncident(t, incidents, "closed", SeverityLow, "Cerrado", "", &owner, detected)

	released, err := incidents.ReleaseOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("release owner: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released, got %d", released)
	}
	for _, id := range []int64{open.ID, investigating.ID} {
		inc, err := incidents.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("get incident: %v", err)
		}
		if inc.Owner != nil {
			t.Fatalf("expected owner released on incident %d", id)
		}
	}
	kept, err := incidents.GetByID(context.Background(), closed.ID)
	if err != nil {
		t.Fatalf("get closed incident: %v", err)
	}
	if kept.Owner == nil || *kept.Owner != owner {
		t.Fatalf("expected closed incident to keep owner")
	}
}

func TestUpdateTouchesUpdatedAt(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	inc := mkIncident(t, incidents, "inc", SeverityLow, "Abierto", "", nil,
		time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	before := inc.UpdatedAt
	time.Sleep(10 * time.Millisecond)
	title := "renamed"
	updated, err := incidents.Update(context.Background(), inc.ID, IncidentUpdate{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "renamed" {
		t.Fatalf("expected title renamed, got %s", updated.Title)
	}
	if !updated.UpdatedAt.After(before) {
		t.Fatalf("expected updated_at to advance")
	}
}

func TestUpdateMissingIncidentNotFound(t *testing.T) {
	_, incidents, _ := setupTestDB(t)
	title := "x"
	if _, err := incidents.Update(context.Background(), 42, IncidentUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
