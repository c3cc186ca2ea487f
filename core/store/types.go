package store

import "time"

// Severity labels are fixed; status is free text whose lowercased form
// containing "cerrado" means the incident is closed.
const (
	SeverityLow      = "Bajo"
	SeverityMedium   = "Medio"
	SeverityHigh     = "Alto"
	SeverityCritical = "Crítico"
)

func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Incident struct {
	ID          int64
	Code        string
	Title       string
	Severity    string
	Status      string
	Source      string
	Owner       *string
	DetectedAt  time.Time
	UpdatedAt   time.Time
	Description string
}

// IncidentUpdate enumerates the mutable incident fields. Nil pointers leave
// the column untouched; OwnerSet distinguishes "clear owner" from "keep".
type IncidentUpdate struct {
	Title       *string
	Severity    *string
	Status      *string
	Source      *string
	Owner       *string
	OwnerSet    bool
	Description *string
	DetectedAt  *time.Time
}

// IncidentFilter is equality AND-composition; nil fields are not applied.
type IncidentFilter struct {
	Severity *string
	Status   *string
	Source   *string
	Owner    *string
}

type IncidentAttachment struct {
	ID         int64
	IncidentID int64
	Filename   string
	Content    []byte
	UploadedAt time.Time
}

type User struct {
	ID       int64
	Email    string
	Password string
	FullName string
	IsActive bool
	Role     string
}

// UserUpdate enumerates the mutable account fields; Password is only written
// when non-nil (admin-triggered reset, already hashed by the caller).
type UserUpdate struct {
	Email    *string
	FullName *string
	IsActive *bool
	Role     *string
	Password *string
}

type SessionRecord struct {
	ID         string
	UserID     int64
	Email      string
	FullName   string
	Roles      []string
	IP         string
	UserAgent  string
	CSRFToken  string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

type AuditEntry struct {
	ID     int64
	At     time.Time
	Actor  string
	Action string
	Object string
	Detail string
}
