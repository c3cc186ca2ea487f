package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/auth"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type AttachmentsHandler struct {
	attachments store.AttachmentsStore
	incidents   store.IncidentsStore
	audits      store.AuditStore
	cfg         *config.AppConfig
	logger      *utils.Logger
}

func NewAttachmentsHandler(attachments store.AttachmentsStore, incidents store.IncidentsStore, audits store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *AttachmentsHandler {
	return &AttachmentsHandler{
		attachments: attachments,
		incidents:   incidents,
		audits:      audits,
		cfg:         cfg,
		logger:      logger,
	}
}

type attachmentDTO struct {
	ID         int64  `json:"id"`
	IncidentID int64  `json:"incident_id"`
	Filename   string `json:"filename"`
	Size       int    `json:"size"`
	UploadedAt string `json:"uploaded_at"`
}

func toAttachmentDTO(att *store.IncidentAttachment) attachmentDTO {
	return attachmentDTO{
		ID:         att.ID,
		IncidentID: att.IncidentID,
		Filename:   att.Filename,
		Size:       len(att.Content),
		UploadedAt: att.UploadedAt.UTC().Format(time.RFC3339),
	}
}

// Upload accepts a single multipart file. Only .txt filenames with valid
// UTF-8 content are stored.
func (h *AttachmentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	ctx := r.Context()
	inc, err := h.incidents.GetByID(ctx, incidentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	maxSize := h.cfg.Incidents.MaxAttachmentSize
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+4096)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	filename := header.Filename
	if filename == "" || !strings.HasSuffix(filename, ".txt") {
		writeError(w, http.StatusBadRequest, "only .txt files are accepted")
		return
	}
	if err := utils.ValidateLength("filename", filename, 255); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}
	if int64(len(content)) > maxSize {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	if !utf8.Valid(content) {
		writeError(w, http.StatusBadRequest, "file must be UTF-8 text")
		return
	}

	att := &store.IncidentAttachment{
		IncidentID: incidentID,
		Filename:   filename,
		Content:    content,
	}
	if err := h.attachments.Create(ctx, att); err != nil {
		h.logger.Errorf("store attachment for incident %d: %v", incidentID, err)
		writeStoreError(w, err)
		return
	}
	_ = h.incidents.TouchUpdatedAt(ctx, incidentID, utils.NowUTC())
	h.audit(r, "attachment.upload", inc.Code, filename)
	writeJSON(w, http.StatusCreated, toAttachmentDTO(att))
}

func (h *AttachmentsHandler) ListByIncident(w http.ResponseWriter, r *http.Request) {
	incidentID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid incident id")
		return
	}
	ctx := r.Context()
	if _, err := h.incidents.GetByID(ctx, incidentID); err != nil {
		writeStoreError(w, err)
		return
	}
	items, err := h.attachments.ListByIncident(ctx, incidentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	dtos := make([]attachmentDTO, 0, len(items))
	for _, att := range items {
		dtos = append(dtos, toAttachmentDTO(att))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": dtos})
}

func (h *AttachmentsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid attachment id")
		return
	}
	att, err := h.attachments.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+att.Filename+`"`)
	_, _ = w.Write(att.Content)
}

// Delete removes the attachment and touches the owning incident, since an
// evidence change is a mutation of the incident.
func (h *AttachmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid attachment id")
		return
	}
	ctx := r.Context()
	att, err := h.attachments.GetByID(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := h.attachments.Delete(ctx, id); err != nil {
		writeStoreError(w, err)
		return
	}
	_ = h.incidents.TouchUpdatedAt(ctx, att.IncidentID, utils.NowUTC())
	h.audit(r, "attachment.delete", att.Filename, "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AttachmentsHandler) audit(r *http.Request, action, object, detail string) {
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
