package auth

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

const (
	SessionCookieName = "cyberwatch_session"
	CSRFCookieName    = "cyberwatch_csrf"
	CSRFHeaderName    = "X-CSRF-Token"
)

type contextKey string

// SessionContextKey carries the resolved *store.SessionRecord through a
// request's context.
const SessionContextKey contextKey = "cyberwatch.session"

func SessionFromContext(ctx context.Context) *store.SessionRecord {
	rec, _ := ctx.Value(SessionContextKey).(*store.SessionRecord)
	return rec
}

type SessionManager struct {
	store  store.SessionsStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(sessions store.SessionsStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: sessions, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User, ip, userAgent string) (*store.SessionRecord, error) {
	id := uuid.Must(uuid.NewV4()).String()
	csrf, err := utils.RandString(32)
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	rec := &store.SessionRecord{
		ID:         id,
		UserID:     user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Roles:      []string{user.Role},
		IP:         ip,
		UserAgent:  userAgent,
		CSRFToken:  csrf,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.EffectiveSessionTTL()),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	now := utils.NowUTC()
	return m.store.Touch(ctx, sessID, now, now.Add(m.cfg.EffectiveSessionTTL()))
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.Delete(ctx, sessID)
}

func (m *SessionManager) RevokeUser(ctx context.Context, userID int64) error {
	return m.store.DeleteByUser(ctx, userID)
}
