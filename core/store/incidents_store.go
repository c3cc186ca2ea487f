package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cyberwatch-soc/core/utils"
)

type IncidentsStore interface {
	Create(ctx context.Context, inc *Incident) error
	GetByID(ctx context.Context, id int64) (*Incident, error)
	GetByCode(ctx context.Context, code string) (*Incident, error)
	Update(ctx context.Context, id int64, upd IncidentUpdate) (*Incident, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f IncidentFilter, limit, offset int) ([]*Incident, int, error)
	Search(ctx context.Context, query string) ([]*Incident, error)
	ListAll(ctx context.Context) ([]*Incident, error)
	DistinctValues(ctx context.Context, field string) ([]string, error)
	ReleaseOwner(ctx context.Context, owner string) (int64, error)
	TouchUpdatedAt(ctx context.Context, id int64, at time.Time) error
}

type incidentsStore struct {
	db         *sql.DB
	codePrefix string
}

func NewIncidentsStore(db *sql.DB, codePrefix string) IncidentsStore {
	if codePrefix == "" {
		codePrefix = "INC"
	}
	return &incidentsStore{db: db, codePrefix: codePrefix}
}

const incidentColumns = "id, code, title, severity, status, source, owner, detected_at, updated_at, description"

// Create inserts the incident, generating a year-scoped code when none is
// supplied. Generation and insert share a transaction so two concurrent
// creates cannot both observe the same maximum.
func (s *incidentsStore) Create(ctx context.Context, inc *Incident) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create incident: %w", err)
	}
	defer tx.Rollback()

	now := utils.NowUTC()
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = now
	}
	inc.UpdatedAt = now
	if inc.Code == "" {
		code, err := s.nextCodeTx(ctx, tx, inc.DetectedAt.UTC().Year())
		if err != nil {
			return err
		}
		inc.Code = code
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO incidents (code, title, severity, status, source, owner, detected_at, updated_at, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.Code, inc.Title, inc.Severity, inc.Status, inc.Source,
		ownerValue(inc.Owner), inc.DetectedAt, inc.UpdatedAt, inc.Description)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert incident: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil {
		inc.ID = id
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create incident: %w", err)
	}
	return nil
}

// nextCodeTx finds the lexicographically maximal code of the year and bumps
// its numeric tail. Works because the tail is fixed-width.
func (s *incidentsStore) nextCodeTx(ctx context.Context, tx *sql.Tx, year int) (string, error) {
	var last string
	err := tx.QueryRowContext(ctx,
		`SELECT code FROM incidents WHERE code LIKE ? ORDER BY code DESC LIMIT 1`,
		codePrefix(s.codePrefix, year)+"%").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query max incident code: %w", err)
	}
	seq, err := nextIncidentSeq(last)
	if err != nil {
		return "", err
	}
	return buildIncidentCode(s.codePrefix, year, seq), nil
}

func (s *incidentsStore) GetByID(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE id = ?`, id)
	return scanIncident(row)
}

func (s *incidentsStore) GetByCode(ctx context.Context, code string) (*Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE code = ?`, code)
	return scanIncident(row)
}

// Update applies the explicit field set and refreshes updated_at. Concurrent
// edits are last-write-wins.
func (s *incidentsStore) Update(ctx context.Context, id int64, upd IncidentUpdate) (*Incident, error) {
	sets := []string{"updated_at = ?"}
	args := []any{utils.NowUTC()}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Severity != nil {
		sets = append(sets, "severity = ?")
		args = append(args, *upd.Severity)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.Source != nil {
		sets = append(sets, "source = ?")
		args = append(args, *upd.Source)
	}
	if upd.OwnerSet {
		sets = append(sets, "owner = ?")
		args = append(args, ownerValue(upd.Owner))
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.DetectedAt != nil {
		sets = append(sets, "detected_at = ?")
		args = append(args, upd.DetectedAt.UTC())
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *incidentsStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page plus the total count of rows matching the filter
// before slicing.
func (s *incidentsStore) List(ctx context.Context, f IncidentFilter, limit, offset int) ([]*Incident, int, error) {
	where, args := buildIncidentFilter(f)
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents` + where +
		` ORDER BY detected_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()
	items, err := collectIncidents(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Search does substring containment over title, description and code. Owner
// scoping and pagination happen in memory at the caller, so the full match
// set is returned.
func (s *incidentsStore) Search(ctx context.Context, query string) ([]*Incident, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents
		 WHERE title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR code LIKE ? ESCAPE '\'
		 ORDER BY detected_at DESC, id DESC`,
		pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("search incidents: %w", err)
	}
	defer rows.Close()
	return collectIncidents(rows)
}

func (s *incidentsStore) ListAll(ctx context.Context) ([]*Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents ORDER BY detected_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list all incidents: %w", err)
	}
	defer rows.Close()
	return collectIncidents(rows)
}

var distinctFields = map[string]string{
	"severity": "severity",
	"status":   "status",
	"source":   "source",
	"owner":    "owner",
}

func (s *incidentsStore) DistinctValues(ctx context.Context, field string) ([]string, error) {
	col, ok := distinctFields[field]
	if !ok {
		return nil, fmt.Errorf("unknown incident field %q", field)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT `+col+` FROM incidents WHERE `+col+` IS NOT NULL AND `+col+` != '' ORDER BY `+col)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// ReleaseOwner clears the owner on the user's open incidents; closed ones
// keep the name for historical filtering.
func (s *incidentsStore) ReleaseOwner(ctx context.Context, owner string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET owner = NULL, updated_at = ?
		 WHERE owner = ? AND LOWER(status) NOT LIKE '%cerrado%'`,
		utils.NowUTC(), owner)
	if err != nil {
		return 0, fmt.Errorf("release incident owner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release incident owner result: %w", err)
	}
	return n, nil
}

func (s *incidentsStore) TouchUpdatedAt(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET updated_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch incident: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func buildIncidentFilter(f IncidentFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.Severity != nil {
		clauses = append(clauses, "severity = ?")
		args = append(args, *f.Severity)
	}
	if f.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Source != nil {
		clauses = append(clauses, "source = ?")
		args = append(args, *f.Source)
	}
	if f.Owner != nil {
		clauses = append(clauses, "owner = ?")
		args = append(args, *f.Owner)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var source sql.NullString
	var owner sql.NullString
	err := row.Scan(&inc.ID, &inc.Code, &inc.Title, &inc.Severity, &inc.Status,
		&source, &owner, &inc.DetectedAt, &inc.UpdatedAt, &inc.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.Source = source.String
	if owner.Valid {
		v := owner.String
		inc.Owner = &v
	}
	inc.DetectedAt = inc.DetectedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	return &inc, nil
}

func collectIncidents(rows *sql.Rows) ([]*Incident, error) {
	var items []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inc)
	}
	return items, rows.Err()
}

func ownerValue(owner *string) any {
	if owner == nil {
		return nil
	}
	return *owner
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
