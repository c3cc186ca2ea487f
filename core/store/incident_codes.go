package store

import (
	"fmt"
	"strconv"
	"strings"
)

const maxIncidentSeq = 9999

// codePrefix returns the year-scoped prefix, e.g. "INC-2026-".
func codePrefix(prefix string, year int) string {
	return fmt.Sprintf("%s-%d-", prefix, year)
}

// buildIncidentCode formats a code with a fixed-width 4-digit sequence. The
// width is what makes lexicographic ordering match numeric ordering, so the
// sequence must never widen past 9999.
func buildIncidentCode(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, seq)
}

// nextIncidentSeq derives the next sequence from the highest existing code of
// the year. An empty or unparseable last code restarts the sequence at 1.
func nextIncidentSeq(lastCode string) (int, error) {
	if lastCode == "" {
		return 1, nil
	}
	parts := strings.Split(lastCode, "-")
	tail := parts[len(parts)-1]
	seq, err := strconv.Atoi(tail)
	if err != nil || seq < 0 {
		return 1, nil
	}
	if seq >= maxIncidentSeq {
		return 0, ErrCapacityExceeded
	}
	return seq + 1, nil
}
