package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type AuditHandler struct {
	audits store.AuditStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewAuditHandler(audits store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *AuditHandler {
	return &AuditHandler{audits: audits, cfg: cfg, logger: logger}
}

type auditDTO struct {
	ID     int64  `json:"id"`
	At     string `json:"at"`
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Object string `json:"object"`
	Detail string `json:"detail"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(q.Get("page_size"))
	if !pageSizeOptions[size] {
		size = 50
	}
	items, total, err := h.audits.List(r.Context(), size, (page-1)*size)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	dtos := make([]auditDTO, 0, len(items))
	for _, e := range items {
		dtos = append(dtos, auditDTO{
			ID:     e.ID,
			At:     e.At.UTC().Format(time.RFC3339),
			Actor:  e.Actor,
			Action: e.Action,
			Object: e.Object,
			Detail: e.Detail,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     dtos,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

const auditExportLimit = 100000

func (h *AuditHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	items, _, err := h.audits.List(r.Context(), auditExportLimit, 0)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	filename := "cyberwatch_audit_" + utils.NowUTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"ID", "At", "Actor", "Action", "Object", "Detail"})
	for _, e := range items {
		_ = writer.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.At.UTC().Format(csvTimeLayout),
			e.Actor,
			e.Action,
			e.Object,
			e.Detail,
		})
	}
	writer.Flush()
}
