package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lecternlabs/lectern/pkg/db"
	lcerrors "github.com/lecternlabs/lectern/pkg/errors"
	"github.com/lecternlabs/lectern/pkg/logging"
	"github.com/lecternlabs/lectern/pkg/notes"
)

// uniqueViolation is the Postgres error code for duplicate keys.
const uniqueViolation = "23505"

// Migrations defines the lectures schema. The full record lives in a JSONB
// document so chapter-to-segment mapping and per-chapter notes survive
// round-trips for later retrieval and re-indexing.
var Migrations = []db.Migration{
	{
		Version: "001_create_lectures",
		SQL: `
CREATE TABLE IF NOT EXISTS lectures (
	id              UUID PRIMARY KEY,
	title           TEXT NOT NULL,
	source_filename TEXT NOT NULL,
	language        TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	doc             JSONB NOT NULL
)`,
	},
	{
		Version: "002_lectures_created_at_idx",
		SQL:     `CREATE INDEX IF NOT EXISTS lectures_created_at_idx ON lectures (created_at DESC)`,
	},
}

// PostgresStore persists lecture records in Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger logging.Logger) *PostgresStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger.With(logging.F("component", "lecture_store")),
	}
}

// EnsureSchema applies any pending lectures migrations.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	result, err := db.Apply(ctx, s.pool, Migrations)
	if err != nil {
		return fmt.Errorf("failed to ensure lectures schema: %w", err)
	}
	if len(result.Applied) > 0 {
		s.logger.Info("lectures schema migrated",
			logging.F("applied", len(result.Applied)))
	}
	return nil
}

// Health reports connectivity and pool utilization for readiness probes.
func (s *PostgresStore) Health(ctx context.Context) *db.Status {
	return db.Check(ctx, s.pool)
}

// WaitReady blocks until the database answers a ping or the context
// expires.
func (s *PostgresStore) WaitReady(ctx context.Context, pollInterval time.Duration) error {
	return db.WaitForReady(ctx, s.pool, pollInterval)
}

func (s *PostgresStore) Create(ctx context.Context, record *LectureRecord) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal lecture record: %w", err)
	}

	query := `
		INSERT INTO lectures (id, title, source_filename, language, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.pool.Exec(ctx, query,
		record.ID, record.Title, record.SourceFilename, record.Language, record.CreatedAt, doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", lcerrors.ErrDuplicateLecture, record.ID)
		}
		s.logger.Error("failed to create lecture", logging.Err(err), logging.F("lecture_id", record.ID))
		return fmt.Errorf("failed to create lecture: %w", err)
	}

	s.logger.Debug("lecture created", logging.F("lecture_id", record.ID), logging.F("title", record.Title))
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*LectureRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM lectures WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: lecture %s", lcerrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lecture: %w", err)
	}

	var record LectureRecord
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lecture record: %w", err)
	}
	return &record, nil
}

// UpdateNotes rewrites the record document inside a transaction, holding a
// row lock so concurrent updates to the same lecture serialize.
func (s *PostgresStore) UpdateNotes(ctx context.Context, id string, chapter int, set notes.ArtifactSet) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM lectures WHERE id = $1 FOR UPDATE`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: lecture %s", lcerrors.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to lock lecture: %w", err)
	}

	var record LectureRecord
	if err := json.Unmarshal(doc, &record); err != nil {
		return fmt.Errorf("failed to unmarshal lecture record: %w", err)
	}
	if chapter != notes.LectureLevel {
		if _, ok := record.Chapter(chapter); !ok {
			return fmt.Errorf("%w: lecture %s has no chapter %d", lcerrors.ErrNotFound, id, chapter)
		}
	}
	record.ApplyNotes(chapter, set)

	updated, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("failed to marshal lecture record: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE lectures SET doc = $2 WHERE id = $1`, id, updated); err != nil {
		return fmt.Errorf("failed to update lecture notes: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit notes update: %w", err)
	}

	s.logger.Debug("lecture notes updated", logging.F("lecture_id", id), logging.F("chapter", chapter))
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lectures WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lecture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lecture %s", lcerrors.ErrNotFound, id)
	}
	s.logger.Debug("lecture deleted", logging.F("lecture_id", id))
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]LectureSummary, error) {
	query := `
		SELECT id, title, source_filename, language, created_at,
		       jsonb_array_length(doc->'chapters'),
		       COALESCE(jsonb_array_length(doc->'missing'), 0)
		FROM lectures
		ORDER BY created_at DESC, id
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list lectures: %w", err)
	}
	defer rows.Close()

	var summaries []LectureSummary
	for rows.Next() {
		var sum LectureSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.SourceFilename, &sum.Language,
			&sum.CreatedAt, &sum.Chapters, &sum.MissingNotes); err != nil {
			return nil, fmt.Errorf("failed to scan lecture summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lectures: %w", err)
	}
	return summaries, nil
}
