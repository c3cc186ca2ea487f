package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cyberwatch-soc/core/utils"
)

type AttachmentsStore interface {
	Create(ctx context.Context, att *IncidentAttachment) error
	GetByID(ctx context.Context, id int64) (*IncidentAttachment, error)
	ListByIncident(ctx context.Context, incidentID int64) ([]*IncidentAttachment, error)
	Delete(ctx context.Context, id int64) error
	DeleteByIncident(ctx context.Context, incidentID int64) (int64, error)
}

type attachmentsStore struct {
	db *sql.DB
}

func NewAttachmentsStore(db *sql.DB) AttachmentsStore {
	return &attachmentsStore{db: db}
}

func (s *attachmentsStore) Create(ctx context.Context, att *IncidentAttachment) error {
	if att.UploadedAt.IsZero() {
		att.UploadedAt = utils.NowUTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incident_attachments (incident_id, filename, content, uploaded_at) VALUES (?, ?, ?, ?)`,
		att.IncidentID, att.Filename, att.Content, att.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		att.ID = id
	}
	return nil
}

func (s *attachmentsStore) GetByID(ctx context.Context, id int64) (*IncidentAttachment, error) {
	var att IncidentAttachment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, incident_id, filename, content, uploaded_at FROM incident_attachments WHERE id = ?`, id).
		Scan(&att.ID, &att.IncidentID, &att.Filename, &att.Content, &att.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	att.UploadedAt = att.UploadedAt.UTC()
	return &att, nil
}

func (s *attachmentsStore) ListByIncident(ctx context.Context, incidentID int64) ([]*IncidentAttachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, filename, content, uploaded_at FROM incident_attachments
		 WHERE incident_id = ? ORDER BY uploaded_at DESC, id DESC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()
	var items []*IncidentAttachment
	for rows.Next() {
		var att IncidentAttachment
		if err := rows.Scan(&att.ID, &att.IncidentID, &att.Filename, &att.Content, &att.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		att.UploadedAt = att.UploadedAt.UTC()
		items = append(items, &att)
	}
	return items, rows.Err()
}

func (s *attachmentsStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incident_attachments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *attachmentsStore) DeleteByIncident(ctx context.Context, incidentID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM incident_attachments WHERE incident_id = ?`, incidentID)
	if err != nil {
		return 0, fmt.Errorf("delete incident attachments: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
