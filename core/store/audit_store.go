package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cyberwatch-soc/core/utils"
)

type AuditStore interface {
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, limit, offset int) ([]*AuditEntry, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) AuditStore {
	return &auditStore{db: db}
}

func (s *auditStore) Append(ctx context.Context, e *AuditEntry) error {
	if e.At.IsZero() {
		e.At = utils.NowUTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (at, actor, action, object, detail) VALUES (?, ?, ?, ?, ?)`,
		e.At, e.Actor, e.Action, e.Object, e.Detail)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *auditStore) List(ctx context.Context, limit, offset int) ([]*AuditEntry, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, actor, action, object, detail FROM audit_log
		 ORDER BY at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()
	var items []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.At, &e.Actor, &e.Action, &e.Object, &e.Detail); err != nil {
			return nil, 0, fmt.Errorf("scan audit entry: %w", err)
		}
		e.At = e.At.UTC()
		items = append(items, &e)
	}
	return items, total, rows.Err()
}

func (s *auditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("trim audit log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
