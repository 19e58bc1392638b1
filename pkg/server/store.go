package server

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/orrery-dev/orrery/pkg/subjects"
)

//go:embed schema.sql
var schemaSQL string

// ErrSubjectNotFound is returned when an id does not exist.
var ErrSubjectNotFound = errors.New("subject not found")

// SubjectStore provides durable storage for subjects.
// Uses SQLite with WAL mode for concurrent read access.
type SubjectStore struct {
	db *sql.DB
}

// OpenStore creates or opens a SQLite database at the given path. Pass
// ":memory:" for an ephemeral store.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func OpenStore(path string) (*SubjectStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under write contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SubjectStore{db: db}, nil
}

// Close closes the database connection.
func (s *SubjectStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new subject with a server-assigned id and timestamps.
func (s *SubjectStore) Create(ctx context.Context, payload subjects.CreatePayload) (subjects.Subject, error) {
	now := time.Now().UTC()
	subject := subjects.Subject{
		ID:        "subj-" + uuid.NewString(),
		Name:      payload.Name,
		BornAt:    payload.BornAt,
		City:      payload.City,
		Country:   payload.Country,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Notes:     payload.Notes,
		Tags:      payload.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tags, err := encodeTags(subject.Tags)
	if err != nil {
		return subjects.Subject{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, born_at, city, country, latitude, longitude, notes, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subject.ID, subject.Name, subject.BornAt.UTC().Format(time.RFC3339Nano),
		subject.City, subject.Country, subject.Latitude, subject.Longitude,
		subject.Notes, tags,
		subject.CreatedAt.Format(time.RFC3339Nano), subject.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return subjects.Subject{}, fmt.Errorf("insert subject: %w", err)
	}
	return subject, nil
}

// Update applies a patch to an existing subject and returns the new row.
func (s *SubjectStore) Update(ctx context.Context, id string, patch subjects.Patch) (subjects.Subject, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return subjects.Subject{}, err
	}

	updated := patch.Apply(current)
	updated.UpdatedAt = time.Now().UTC()

	tags, err := encodeTags(updated.Tags)
	if err != nil {
		return subjects.Subject{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE subjects
		SET name = ?, born_at = ?, city = ?, country = ?, latitude = ?, longitude = ?, notes = ?, tags = ?, updated_at = ?
		WHERE id = ?`,
		updated.Name, updated.BornAt.UTC().Format(time.RFC3339Nano),
		updated.City, updated.Country, updated.Latitude, updated.Longitude,
		updated.Notes, tags, updated.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return subjects.Subject{}, fmt.Errorf("update subject: %w", err)
	}
	return updated, nil
}

// Delete removes a subject by id.
func (s *SubjectStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if affected == 0 {
		return ErrSubjectNotFound
	}
	return nil
}

// Get fetches a single subject by id.
func (s *SubjectStore) Get(ctx context.Context, id string) (subjects.Subject, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, born_at, city, country, latitude, longitude, notes, tags, created_at, updated_at
		FROM subjects WHERE id = ?`, id)
	subject, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return subjects.Subject{}, ErrSubjectNotFound
	}
	return subject, err
}

// List returns the subjects matching filter, newest first. Ordering is
// deterministic (created_at, then id) so identical queries return identical
// sequences.
func (s *SubjectStore) List(ctx context.Context, filter subjects.Filter) ([]subjects.Subject, error) {
	var (
		where []string
		args  []any
	)
	if filter.City != "" {
		where = append(where, "city = ?")
		args = append(args, filter.City)
	}
	if filter.Tag != "" {
		// Tags are stored as a JSON array of strings.
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+filter.Tag+`"%`)
	}
	if filter.Search != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.Search+"%")
	}

	q := `SELECT id, name, born_at, city, country, latitude, longitude, notes, tags, created_at, updated_at FROM subjects`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	list := []subjects.Subject{}
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, subject)
	}
	return list, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubject(row scanner) (subjects.Subject, error) {
	var (
		subject                      subjects.Subject
		bornAt, createdAt, updatedAt string
		tags                         string
	)
	err := row.Scan(&subject.ID, &subject.Name, &bornAt, &subject.City, &subject.Country,
		&subject.Latitude, &subject.Longitude, &subject.Notes, &tags, &createdAt, &updatedAt)
	if err != nil {
		return subjects.Subject{}, err
	}

	if subject.BornAt, err = time.Parse(time.RFC3339Nano, bornAt); err != nil {
		return subjects.Subject{}, fmt.Errorf("parse born_at: %w", err)
	}
	if subject.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return subjects.Subject{}, fmt.Errorf("parse created_at: %w", err)
	}
	if subject.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return subjects.Subject{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &subject.Tags); err != nil {
		return subjects.Subject{}, fmt.Errorf("parse tags: %w", err)
	}
	return subject, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(encoded), nil
}
