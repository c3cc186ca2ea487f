package handlers

import (
	"net/http"

	"cyberwatch-soc/core/dashboard"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type DashboardHandler struct {
	incidents store.IncidentsStore
	logger    *utils.Logger
}

func NewDashboardHandler(incidents store.IncidentsStore, logger *utils.Logger) *DashboardHandler {
	return &DashboardHandler{incidents: incidents, logger: logger}
}

const recentIncidentsLimit = 8

// Overview computes every dashboard block from one snapshot so the numbers
// are consistent with each other.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.incidents.ListAll(r.Context())
	if err != nil {
		h.logger.Errorf("dashboard snapshot: %v", err)
		writeStoreError(w, err)
		return
	}
	now := utils.NowUTC()
	recent := dashboard.RecentIncidents(snapshot, recentIncidentsLimit)
	recentDTOs := make([]incidentDTO, 0, len(recent))
	for _, inc := range recent {
		recentDTOs = append(recentDTOs, toIncidentDTO(inc))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kpis":      dashboard.BuildKPIs(snapshot, now),
		"severity":  dashboard.SeverityDistribution(snapshot),
		"trend":     dashboard.TrendData(snapshot, now),
		"by_source": dashboard.BySource(snapshot),
		"recent":    recentDTOs,
	})
}
