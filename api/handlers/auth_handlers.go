package handlers

import (
	"net/http"
	"strings"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/auth"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type AuthHandler struct {
	users         store.UsersStore
	authenticator *auth.Authenticator
	sessions      *auth.SessionManager
	audits        store.AuditStore
	cfg           *config.AppConfig
	logger        *utils.Logger
}

func NewAuthHandler(users store.UsersStore, authenticator *auth.Authenticator, sessions *auth.SessionManager, audits store.AuditStore, cfg *config.AppConfig, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{
		users:         users,
		authenticator: authenticator,
		sessions:      sessions,
		audits:        audits,
		cfg:           cfg,
		logger:        logger,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userDTO struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

func toUserDTO(u *store.User) userDTO {
	return userDTO{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, IsActive: u.IsActive}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r)
	user, err := h.authenticator.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if auth.IsCredentialFailure(err) {
			// One message for unknown, wrong password and disabled:
			// account enumeration stays impossible.
			h.audit(r, req.Email, "auth.login_failed", "")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Errorf("login failed for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	sess, err := h.sessions.Create(ctx, user, ip, r.UserAgent())
	if err != nil {
		h.logger.Errorf("create session for %s: %v", user.Email, err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	h.setSessionCookies(w, r, sess)
	h.audit(r, user.Email, "auth.login", "")
	writeJSON(w, http.StatusOK, map[string]any{
		"user": toUserDTO(user),
		"csrf": sess.CSRFToken,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	rec := auth.SessionFromContext(r.Context())
	if rec != nil {
		_ = h.sessions.Delete(r.Context(), rec.ID)
		h.audit(r, rec.Email, "auth.logout", "")
	}
	h.clearSessionCookies(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	rec := auth.SessionFromContext(r.Context())
	if rec == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := h.users.GetByID(r.Context(), rec.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, r *http.Request, sess *store.SessionRecord) {
	secure := h.cfg.Security.SecureCookieOnly || isSecureRequest(r)
	maxAge := int(h.cfg.EffectiveSessionTTL().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	// CSRF token is readable by the frontend and echoed in a header.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CSRFCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter, r *http.Request) {
	secure := h.cfg.Security.SecureCookieOnly || isSecureRequest(r)
	for _, name := range []string{auth.SessionCookieName, auth.CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == auth.SessionCookieName,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *AuthHandler) audit(r *http.Request, actor, action, detail string) {
	if h.audits == nil {
		return
	}
	_ = h.audits.Append(r.Context(), &store.AuditEntry{
		Actor:  actor,
		Action: action,
		Detail: detail,
	})
}
