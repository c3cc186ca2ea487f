package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/auth"
	"cyberwatch-soc/core/rbac"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type AccountsHandler struct {
	users     store.UsersStore
	incidents store.IncidentsStore
	sessions  *auth.SessionManager
	audits    store.AuditStore
	cfg       *config.AppConfig
	logger    *utils.Logger
}

func NewAccountsHandler(users store.UsersStore, incidents store.IncidentsStore, sessions *auth.SessionManager, audits store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{
		users:     users,
		incidents: incidents,
		sessions:  sessions,
		audits:    audits,
		cfg:       cfg,
		logger:    logger,
	}
}

func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	dtos := make([]userDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": dtos})
}

type userCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

func (req *userCreateRequest) validate() error {
	req.Email = strings.TrimSpace(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := utils.ValidateEmail(req.Email); err != nil {
		return err
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		return err
	}
	if req.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if err := utils.ValidateLength("full_name", req.FullName, 120); err != nil {
		return err
	}
	if !rbac.ValidRole(req.Role) {
		return fmt.Errorf("invalid role")
	}
	return nil
}

func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Errorf("hash password for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	user := &store.User{
		Email:    req.Email,
		Password: hash,
		FullName: req.FullName,
		IsActive: req.IsActive == nil || *req.IsActive,
		Role:     req.Role,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		writeStoreError(w, err)
		return
	}
	h.audit(r, "user.create", user.Email, "")
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

type userUpdateRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	IsActive *bool   `json:"is_active"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

func (req *userUpdateRequest) validate() error {
	if req.Email != nil {
		*req.Email = strings.TrimSpace(*req.Email)
		if err := utils.ValidateEmail(*req.Email); err != nil {
			return err
		}
	}
	if req.FullName != nil {
		*req.FullName = strings.TrimSpace(*req.FullName)
		if *req.FullName == "" {
			return fmt.Errorf("full_name cannot be empty")
		}
		if err := utils.ValidateLength("full_name", *req.FullName, 120); err != nil {
			return err
		}
	}
	if req.Role != nil && !rbac.ValidRole(*req.Role) {
		return fmt.Errorf("invalid role")
	}
	if req.Password != nil {
		if err := utils.ValidatePassword(*req.Password); err != nil {
			return err
		}
	}
	return nil
}

func (h *AccountsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req userUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	upd := store.UserUpdate{
		Email:    req.Email,
		FullName: req.FullName,
		IsActive: req.IsActive,
		Role:     req.Role,
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			h.logger.Errorf("hash password for user %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, "server error")
			return
		}
		upd.Password = &hash
	}
	user, err := h.users.Update(r.Context(), id, upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if req.IsActive != nil && !*req.IsActive {
		_ = h.sessions.RevokeUser(r.Context(), id)
	}
	h.audit(r, "user.update", user.Email, "")
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// Delete removes the account, revokes its sessions and releases its open
// incidents; closed incidents keep the owner name for history. Admins cannot
// delete themselves.
func (h *AccountsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	rec := auth.SessionFromContext(r.Context())
	if rec != nil && rec.UserID == id {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	ctx := r.Context()
	user, err := h.users.GetByID(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	released, err := h.incidents.ReleaseOwner(ctx, user.FullName)
	if err != nil {
		h.logger.Errorf("release incidents of %s: %v", user.Email, err)
		writeStoreError(w, err)
		return
	}
	if err := h.users.Delete(ctx, id); err != nil {
		writeStoreError(w, err)
		return
	}
	_ = h.sessions.RevokeUser(ctx, id)
	h.audit(r, "user.delete", user.Email, fmt.Sprintf("released %d incidents", released))
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "released_incidents": released})
}

func (h *AccountsHandler) audit(r *http.Request, action, object, detail string) {
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
