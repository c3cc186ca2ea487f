package handlers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/auth"
	"cyberwatch-soc/core/rbac"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

var pageSizeOptions = map[int]bool{10: true, 25: true, 50: true, 100: true}

const csvTimeLayout = "2006-01-02 15:04:05"

type IncidentsHandler struct {
	incidents   store.IncidentsStore
	attachments store.AttachmentsStore
	audits      store.AuditStore
	cfg         *config.AppConfig
	logger      *utils.Logger
}

func NewIncidentsHandler(incidents store.IncidentsStore, attachments store.AttachmentsStore, audits store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *IncidentsHandler {
	return &IncidentsHandler{
		incidents:   incidents,
		attachments: attachments,
		audits:      audits,
		cfg:         cfg,
		logger:      logger,
	}
}

type incidentDTO struct {
	ID          int64   `json:"id"`
	Code        string  `json:"code"`
	Title       string  `json:"title"`
	Severity    string  `json:"severity"`
	Status      string  `json:"status"`
	Source      string  `json:"source"`
	Owner       *string `json:"owner"`
	DetectedAt  string  `json:"detected_at"`
	UpdatedAt   string  `json:"updated_at"`
	Description string  `json:"description"`
}

func toIncidentDTO(inc *store.Incident) incidentDTO {
	return incidentDTO{
		ID:          inc.ID,
		Code:        inc.Code,
		Title:       inc.Title,
		Severity:    inc.Severity,
		Status:      inc.Status,
		Source:      inc.Source,
		Owner:       inc.Owner,
		DetectedAt:  inc.DetectedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   inc.UpdatedAt.UTC().Format(time.RFC3339),
		Description: inc.Description,
	}
}

// effectiveFilter builds the equality filter from query params. Analysts
// without an explicit owner param are scoped to their own incidents.
func (h *IncidentsHandler) effectiveFilter(r *http.Request) store.IncidentFilter {
	q := r.URL.Query()
	var f store.IncidentFilter
	if v := q.Get("severity"); v != "" {
		f.Severity = &v
	}
	if v := q.Get("status"); v != "" {
		f.Status = &v
	}
	if v := q.Get("source"); v != "" {
		f.Source = &v
	}
	if q.Has("owner") {
		if v := q.Get("owner"); v != "" {
			f.Owner = &v
		}
	} else if rec := auth.SessionFromContext(r.Context()); rec != nil && isAnalystOnly(rec.Roles) {
		owner := rec.FullName
		f.Owner = &owner
	}
	return f
}

func isAnalystOnly(roles []string) bool {
	analyst := false
	for _, role := range roles {
		if role == rbac.RoleAdmin {
			return false
		}
		if role == rbac.RoleAnalyst {
			analyst = true
		}
	}
	return analyst
}

func (h *IncidentsHandler) pagination(r *http.Request) (page, size int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ = strconv.Atoi(q.Get("page_size"))
	if !pageSizeOptions[size] {
		size = h.cfg.Incidents.DefaultPageSize
		if size <= 0 {
			size = 25
		}
	}
	return page, size
}

func (h *IncidentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, size := h.pagination(r)
	filter := h.effectiveFilter(r)

	var (
		items []*store.Incident
		total int
	)
	if query := r.URL.Query().Get("q"); query != "" {
		matches, err := h.incidents.Search(ctx, query)
		if err != nil {
			h.logger.Errorf("search incidents: %v", err)
			writeStoreError(w, err)
			return
		}
		if filter.Owner != nil {
			matches = filterByOwner(matches, *filter.Owner)
		}
		total = len(matches)
		items = sliceIncidents(matches, (page-1)*size, size)
	} else {
		var err error
		items, total, err = h.incidents.List(ctx, filter, size, (page-1)*size)
		if err != nil {
			h.logger.Errorf("list incidents: %v", err)
			writeStoreError(w, err)
			return
		}
	}

	dtos := make([]incidentDTO, 0, len(items))
	for _, inc := range items {
		dtos = append(dtos, toIncidentDTO(inc))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":     dtos,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

func filterByOwner(items []*store.Incident, owner string) []*store.Incident {
	out := items[:0:0]
	for _, inc := range items {
		if inc.Owner != nil && *inc.Owner == owner {
			out = append(out, inc)
		}
	}
	return out
}

func sliceIncidents(items []*store.Incident, offset, limit int) []*store.Incident {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type incidentCreateRequest struct {
	Code        string  `json:"code"`
	Title       string  `json:"title"`
	Severity    string  `json:"severity"`
	Status      string  `json:"status"`
	Source      string  `json:"source"`
	Owner       *string `json:"owner"`
	DetectedAt  string  `json:"detected_at"`
	Description string  `json:"description"`
}

func (req *incidentCreateRequest) validate() error {
	req.Title = strings.TrimSpace(req.Title)
	req.Status = strings.TrimSpace(req.Status)
	if req.Title == "" {
		return fmt.Errorf("title is required")
	}
	if err := utils.ValidateLength("title", req.Title, 200); err != nil {
		return err
	}
	if !store.ValidSeverity(req.Severity) {
		return fmt.Errorf("invalid severity")
	}
	if req.Status == "" {
		return fmt.Errorf("status is required")
	}
	if err := utils.ValidateLength("status", req.Status, 50); err != nil {
		return err
	}
	if err := utils.ValidateLength("source", req.Source, 100); err != nil {
		return err
	}
	if err := utils.ValidateLength("code", req.Code, 32); err != nil {
		return err
	}
	if req.Owner != nil {
		if err := utils.ValidateLength("owner", *req.Owner, 120); err != nil {
			return err
		}
	}
	return nil
}

func (h *IncidentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req incidentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inc := &store.Incident{
		Code:        req.Code,
		Title:       req.Title,
		Severity:    req.Severity,
		Status:      req.Status,
		Source:      req.Source,
		Owner:       req.Owner,
		Description: req.Description,
	}
	if req.DetectedAt != "" {
		ts, err := time.Parse(time.RFC3339, req.DetectedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid detected_at")
			return
		}
		inc.DetectedAt = ts.UTC()
	}
	if err := h.incidents.Create(r.Context(), inc); err != nil {
		h.logger.Errorf("create incident: %v", err)
		writeStoreError(w, err)
		return
	}
	h.audit(r, "incident.create", inc.Code, "")
	writeJSON(w, http.StatusCreated, toIncidentDTO(inc))
}

func (h *IncidentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	inc, err := h.incidents.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIncidentDTO(inc))
}

// optionalString distinguishes an absent field from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type incidentUpdateRequest struct {
	Title       *string        `json:"title"`
	Severity    *string        `json:"severity"`
	Status      *string        `json:"status"`
	Source      *string        `json:"source"`
	Owner       optionalString `json:"owner"`
	Description *string        `json:"description"`
	DetectedAt  *string        `json:"detected_at"`
}

func (req *incidentUpdateRequest) validate() error {
	if req.Title != nil {
		*req.Title = strings.TrimSpace(*req.Title)
		if *req.Title == "" {
			return fmt.Errorf("title cannot be empty")
		}
		if err := utils.ValidateLength("title", *req.Title, 200); err != nil {
			return err
		}
	}
	if req.Severity != nil && !store.ValidSeverity(*req.Severity) {
		return fmt.Errorf("invalid severity")
	}
	if req.Status != nil {
		*req.Status = strings.TrimSpace(*req.Status)
		if *req.Status == "" {
			return fmt.Errorf("status cannot be empty")
		}
		if err := utils.ValidateLength("status", *req.Status, 50); err != nil {
			return err
		}
	}
	if req.Source != nil {
		if err := utils.ValidateLength("source", *req.Source, 100); err != nil {
			return err
		}
	}
	if req.Owner.Set && req.Owner.Value != nil {
		if err := utils.ValidateLength("owner", *req.Owner.Value, 120); err != nil {
			return err
		}
	}
	return nil
}

func (h *IncidentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	var req incidentUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	upd := store.IncidentUpdate{
		Title:       req.Title,
		Severity:    req.Severity,
		Status:      req.Status,
		Source:      req.Source,
		Owner:       req.Owner.Value,
		OwnerSet:    req.Owner.Set,
		Description: req.Description,
	}
	if req.DetectedAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.DetectedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid detected_at")
			return
		}
		utc := ts.UTC()
		upd.DetectedAt = &utc
	}
	inc, err := h.incidents.Update(r.Context(), id, upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.audit(r, "incident.update", inc.Code, "")
	writeJSON(w, http.StatusOK, toIncidentDTO(inc))
}

func (h *IncidentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	ctx := r.Context()
	inc, err := h.incidents.GetByID(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// No cascade in the store: attachments go first.
	if _, err := h.attachments.DeleteByIncident(ctx, id); err != nil {
		h.logger.Errorf("delete attachments of incident %d: %v", id, err)
		writeStoreError(w, err)
		return
	}
	if err := h.incidents.Delete(ctx, id); err != nil {
		writeStoreError(w, err)
		return
	}
	h.audit(r, "incident.delete", inc.Code, "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type assignRequest struct {
	Owner optionalString `json:"owner"`
}

func (h *IncidentsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Owner.Set {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	if req.Owner.Value != nil {
		if err := utils.ValidateLength("owner", *req.Owner.Value, 120); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	inc, err := h.incidents.Update(r.Context(), id, store.IncidentUpdate{
		Owner:    req.Owner.Value,
		OwnerSet: true,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.audit(r, "incident.assign", inc.Code, ownerDetail(req.Owner.Value))
	writeJSON(w, http.StatusOK, toIncidentDTO(inc))
}

func ownerDetail(owner *string) string {
	if owner == nil {
		return "released"
	}
	return *owner
}

// ExportCSV materializes the filtered set (search included) and streams it
// as one buffer.
func (h *IncidentsHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := h.effectiveFilter(r)
	var (
		items []*store.Incident
		err   error
	)
	if query := r.URL.Query().Get("q"); query != "" {
		items, err = h.incidents.Search(ctx, query)
		if err == nil && filter.Owner != nil {
			items = filterByOwner(items, *filter.Owner)
		}
	} else {
		items, _, err = h.incidents.List(ctx, filter, 1<<30, 0)
	}
	if err != nil {
		h.logger.Errorf("export incidents: %v", err)
		writeStoreError(w, err)
		return
	}

	filename := "cyberwatch_incidents_" + utils.NowUTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"ID", "Code", "Title", "Severity", "Status", "Source", "Owner", "DetectedAt", "UpdatedAt", "Description"})
	for _, inc := range items {
		owner := ""
		if inc.Owner != nil {
			owner = *inc.Owner
		}
		_ = writer.Write([]string{
			strconv.FormatInt(inc.ID, 10),
			inc.Code,
			inc.Title,
			inc.Severity,
			inc.Status,
			inc.Source,
			owner,
			inc.DetectedAt.UTC().Format(csvTimeLayout),
			inc.UpdatedAt.UTC().Format(csvTimeLayout),
			inc.Description,
		})
	}
	writer.Flush()
}

func (h *IncidentsHandler) FilterValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := map[string][]string{}
	for _, field := range []string{"severity", "status", "source", "owner"} {
		values, err := h.incidents.DistinctValues(ctx, field)
		if err != nil {
			h.logger.Errorf("distinct %s: %v", field, err)
			writeStoreError(w, err)
			return
		}
		if values == nil {
			values = []string{}
		}
		out[field] = values
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *IncidentsHandler) audit(r *http.Request, action, object, detail string) {
	if h.audits == nil {
		return
	}
	actor := ""
	if rec := auth.SessionFromContext(r.Context()); rec != nil {
		actor = rec.Email
	}
	_ = h.audits.Append(r.Context(), &store.AuditEntry{
		Actor:  actor,
		Action: action,
		Object: object,
		Detail: detail,
	})
}
