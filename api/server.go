package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cyberwatch-soc/api/handlers"
	"cyberwatch-soc/config"
	"cyberwatch-soc/core/auth"
	"cyberwatch-soc/core/rbac"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type ServerDeps struct {
	Cfg            *config.AppConfig
	Logger         *utils.Logger
	Policy         *rbac.Policy
	Users          store.UsersStore
	Sessions       store.SessionsStore
	Incidents      store.IncidentsStore
	Attachments    store.AttachmentsStore
	Audits         store.AuditStore
	Authenticator  *auth.Authenticator
	SessionManager *auth.SessionManager
}

type Server struct {
	cfg            *config.AppConfig
	logger         *utils.Logger
	policy         *rbac.Policy
	users          store.UsersStore
	sessions       store.SessionsStore
	sessionManager *auth.SessionManager
	loginLimiter   *requestLimiter

	authHandler        *handlers.AuthHandler
	incidentsHandler   *handlers.IncidentsHandler
	attachmentsHandler *handlers.AttachmentsHandler
	accountsHandler    *handlers.AccountsHandler
	dashboardHandler   *handlers.DashboardHandler
	auditHandler       *handlers.AuditHandler
}

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		cfg:            deps.Cfg,
		logger:         deps.Logger,
		policy:         deps.Policy,
		users:          deps.Users,
		sessions:       deps.Sessions,
		sessionManager: deps.SessionManager,
		loginLimiter:   newLimiter(deps.Cfg.LoginRateLimit(), deps.Cfg.LoginRateWindow()),
	}
	s.authHandler = handlers.NewAuthHandler(deps.Users, deps.Authenticator, deps.SessionManager, deps.Audits, deps.Cfg, deps.Logger)
	s.incidentsHandler = handlers.NewIncidentsHandler(deps.Incidents, deps.Attachments, deps.Audits, deps.Cfg, deps.Logger)
	s.attachmentsHandler = handlers.NewAttachmentsHandler(deps.Attachments, deps.Incidents, deps.Audits, deps.Cfg, deps.Logger)
	s.accountsHandler = handlers.NewAccountsHandler(deps.Users, deps.Incidents, deps.SessionManager, deps.Audits, deps.Cfg, deps.Logger)
	s.dashboardHandler = handlers.NewDashboardHandler(deps.Incidents, deps.Logger)
	s.auditHandler = handlers.NewAuditHandler(deps.Audits, deps.Cfg, deps.Logger)
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.rateLimitLogin(s.authHandler.Login))
		r.Post("/auth/logout", s.withSession(s.authHandler.Logout))
		r.Get("/auth/me", s.withSession(s.authHandler.Me))

		view := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withSession(s.requirePermission(rbac.PermIncidentsView)(h))
		}
		edit := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withSession(s.requirePermission(rbac.PermIncidentsEdit)(h))
		}
		admin := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withSession(s.requirePermission(rbac.PermUsersManage)(h))
		}

		r.Get("/dashboard", s.withSession(s.requirePermission(rbac.PermDashboardView)(s.dashboardHandler.Overview)))

		r.Get("/incidents", view(s.incidentsHandler.List))
		r.Post("/incidents", edit(s.incidentsHandler.Create))
		r.Get("/incidents/export", view(s.incidentsHandler.ExportCSV))
		r.Get("/incidents/filters", view(s.incidentsHandler.FilterValues))
		r.Get("/incidents/{id}", view(s.incidentsHandler.Get))
		r.Put("/incidents/{id}", edit(s.incidentsHandler.Update))
		r.Delete("/incidents/{id}", edit(s.incidentsHandler.Delete))
		r.Post("/incidents/{id}/assign", edit(s.incidentsHandler.Assign))

		r.Post("/incidents/{id}/attachments", edit(s.attachmentsHandler.Upload))
		r.Get("/incidents/{id}/attachments", view(s.attachmentsHandler.ListByIncident))
		r.Get("/attachments/{id}", view(s.attachmentsHandler.Download))
		r.Delete("/attachments/{id}", edit(s.attachmentsHandler.Delete))

		r.Get("/users", admin(s.accountsHandler.List))
		r.Post("/users", admin(s.accountsHandler.Create))
		r.Get("/users/{id}", admin(s.accountsHandler.Get))
		r.Put("/users/{id}", admin(s.accountsHandler.Update))
		r.Delete("/users/{id}", admin(s.accountsHandler.Delete))

		audit := func(h http.HandlerFunc) http.HandlerFunc {
			return s.withSession(s.requirePermission(rbac.PermAuditView)(h))
		}
		r.Get("/audit", audit(s.auditHandler.List))
		r.Get("/audit/export", audit(s.auditHandler.ExportCSV))
	})

	return r
}

// rateLimitLogin fails fast before any credential logic runs.
func (s *Server) rateLimitLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.loginLimiter.allow(s.clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many login attempts"})
			return
		}
		next(w, r)
	}
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
