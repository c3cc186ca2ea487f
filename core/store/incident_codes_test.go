package store

import (
	"errors"
	"testing"
)

func TestNextIncidentSeq(t *testing.T) {
	cases := []struct {
		name string
		last string
		want int
	}{
		{"empty starts at one", "", 1},
		{"increments max", "INC-2024-0007", 8},
		{"garbage tail restarts", "INC-2024-broken", 1},
		{"code without sequence restarts", "INC", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextIncidentSeq(tc.last)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestNextIncidentSeqCapacity(t *testing.T) {
	_, err := nextIncidentSeq("INC-2024-9999")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestBuildIncidentCodeWidth(t *testing.T) {
	if got := buildIncidentCode("INC", 2024, 8); got != "INC-2024-0008" {
		t.Fatalf("unexpected code %s", got)
	}
	if got := buildIncidentCode("INC", 2025, 1); got != "INC-2025-0001" {
		t.Fatalf("unexpected code %s", got)
	}
}
