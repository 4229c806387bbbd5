package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"habita/internal/domain"
	id "habita/pkg/domain"
)

// Postgres stores persist full JSON snapshots plus the columns needed for
// filtering and the optimistic version check. The snapshot is the source of
// truth; indexed columns are projections.

// OpenPostgres opens and pings a database handle.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the lifecycle tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS applications (
	id         UUID PRIMARY KEY,
	program_id UUID        NOT NULL,
	status     TEXT        NOT NULL,
	version    BIGINT      NOT NULL,
	snapshot   JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS applications_program_idx ON applications (program_id);

CREATE TABLE IF NOT EXISTS programs (
	id       UUID PRIMARY KEY,
	snapshot JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS application_timeline (
	seq            BIGSERIAL PRIMARY KEY,
	application_id UUID        NOT NULL,
	ts             TIMESTAMPTZ NOT NULL,
	event          TEXT        NOT NULL,
	actor          TEXT        NOT NULL,
	detail         TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS application_timeline_app_idx ON application_timeline (application_id, seq);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PostgresApplicationStore implements ApplicationStore on PostgreSQL.
type PostgresApplicationStore struct {
	db *sql.DB
}

func NewPostgresApplicationStore(db *sql.DB) *PostgresApplicationStore {
	return &PostgresApplicationStore{db: db}
}

func (s *PostgresApplicationStore) Create(ctx context.Context, app *domain.Application) error {
	snapshot, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO applications (id, program_id, status, version, snapshot, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		app.ID.String(), app.ProgramID.String(), string(app.Status), app.Version, snapshot, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresApplicationStore) Get(ctx context.Context, appID id.ApplicationID) (*domain.Application, error) {
	var snapshot []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM applications WHERE id = $1`, appID.String()).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select application: %w", err)
	}
	var app domain.Application
	if err := json.Unmarshal(snapshot, &app); err != nil {
		return nil, fmt.Errorf("unmarshal application: %w", err)
	}
	return &app, nil
}

// Update writes the new snapshot only when the stored version still matches
// expectedVersion. Zero rows affected means either a lost race or a missing
// row; the follow-up existence check picks the right error.
func (s *PostgresApplicationStore) Update(ctx context.Context, app *domain.Application, expectedVersion int64) error {
	snapshot, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("marshal application: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications
		 SET status = $1, version = $2, snapshot = $3, updated_at = $4
		 WHERE id = $5 AND version = $6`,
		string(app.Status), app.Version, snapshot, app.UpdatedAt, app.ID.String(), expectedVersion)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application rows: %w", err)
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, app.ID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("check application exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrVersionConflict
}

func (s *PostgresApplicationStore) ListByProgram(ctx context.Context, programID id.ProgramID) ([]*domain.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT snapshot FROM applications WHERE program_id = $1`, programID.String())
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []*domain.Application
	for rows.Next() {
		var snapshot []byte
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		var app domain.Application
		if err := json.Unmarshal(snapshot, &app); err != nil {
			return nil, fmt.Errorf("unmarshal application: %w", err)
		}
		apps = append(apps, &app)
	}
	return apps, rows.Err()
}

// PostgresProgramStore implements ProgramStore on PostgreSQL.
type PostgresProgramStore struct {
	db *sql.DB
}

func NewPostgresProgramStore(db *sql.DB) *PostgresProgramStore {
	return &PostgresProgramStore{db: db}
}

func (s *PostgresProgramStore) Save(ctx context.Context, program *domain.Program) error {
	snapshot, err := json.Marshal(program)
	if err != nil {
		return fmt.Errorf("marshal program: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO programs (id, snapshot) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET snapshot = EXCLUDED.snapshot`,
		program.ID.String(), snapshot)
	if err != nil {
		return fmt.Errorf("upsert program: %w", err)
	}
	return nil
}

func (s *PostgresProgramStore) Get(ctx context.Context, programID id.ProgramID) (*domain.Program, error) {
	var snapshot []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM programs WHERE id = $1`, programID.String()).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select program: %w", err)
	}
	var program domain.Program
	if err := json.Unmarshal(snapshot, &program); err != nil {
		return nil, fmt.Errorf("unmarshal program: %w", err)
	}
	return &program, nil
}

// PostgresTimelineStore implements TimelineStore on PostgreSQL.
type PostgresTimelineStore struct {
	db *sql.DB
}

func NewPostgresTimelineStore(db *sql.DB) *PostgresTimelineStore {
	return &PostgresTimelineStore{db: db}
}

func (s *PostgresTimelineStore) Append(ctx context.Context, entry domain.TimelineEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO application_timeline (application_id, ts, event, actor, detail)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ApplicationID.String(), entry.Timestamp, string(entry.Event), entry.Actor, entry.Detail)
	if err != nil {
		return fmt.Errorf("append timeline entry: %w", err)
	}
	return nil
}

func (s *PostgresTimelineStore) ListByApplication(ctx context.Context, appID id.ApplicationID) ([]domain.TimelineEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, event, actor, detail FROM application_timeline
		 WHERE application_id = $1 ORDER BY seq`, appID.String())
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	entries := []domain.TimelineEntry{}
	for rows.Next() {
		entry := domain.TimelineEntry{ApplicationID: appID}
		var event string
		if err := rows.Scan(&entry.Timestamp, &event, &entry.Actor, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entry.Event = domain.TimelineEvent(event)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
