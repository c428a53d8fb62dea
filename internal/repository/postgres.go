package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/model"
	"github.com/stablelab/growth-milestone-service/pkg/metrics"
)

// PostgresStore backs the milestone store with a transactional database,
// with atomic per-record writes instead of whole-document rewrites.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func (s *PostgresStore) Backend() string  { return "postgres" }
func (s *PostgresStore) Location() string { return "postgres" }

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the milestone tables when they do not exist yet and
// seeds the store metadata row.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS milestones (
            internal_id     TEXT PRIMARY KEY,
            remote_id       TEXT,
            project_id      TEXT NOT NULL,
            kpi_id          TEXT NOT NULL,
            target          DOUBLE PRECISION NOT NULL,
            milestone_index INT NOT NULL DEFAULT 1,
            timeframe_from  TEXT,
            timeframe_to    TEXT,
            scopes          TEXT[],
            metadata        JSONB,
            status          TEXT NOT NULL,
            synced          BOOLEAN NOT NULL,
            is_completed    BOOLEAN NOT NULL DEFAULT FALSE,
            completed_at    TEXT,
            current_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
            created_at      TIMESTAMPTZ NOT NULL,
            updated_at      TIMESTAMPTZ NOT NULL
        );
        CREATE UNIQUE INDEX IF NOT EXISTS milestones_remote_id_idx
            ON milestones (remote_id) WHERE remote_id IS NOT NULL AND remote_id <> '';
        CREATE TABLE IF NOT EXISTS milestone_store_metadata (
            id           INT PRIMARY KEY CHECK (id = 1),
            created      TIMESTAMPTZ NOT NULL,
            last_updated TIMESTAMPTZ NOT NULL
        );
        INSERT INTO milestone_store_metadata (id, created, last_updated)
            VALUES (1, NOW(), NOW())
            ON CONFLICT (id) DO NOTHING;
    `)
	if err != nil {
		s.logger.Error("Failed to ensure milestone schema", zap.Error(err))
		return err
	}
	return nil
}

const milestoneColumns = `
    internal_id, remote_id, project_id, kpi_id, target, milestone_index,
    timeframe_from, timeframe_to, scopes, metadata, status, synced,
    is_completed, completed_at, current_value, created_at, updated_at
`

func (s *PostgresStore) Load(ctx context.Context) (*model.Document, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpDuration("load", s.Backend(), time.Since(start))
	}()

	doc := &model.Document{Milestones: make(map[string]model.Milestone)}

	err := s.db.QueryRow(ctx,
		`SELECT created, last_updated FROM milestone_store_metadata WHERE id = 1`,
	).Scan(&doc.Metadata.Created, &doc.Metadata.LastUpdated)
	if err != nil {
		s.logger.Error("Failed to load store metadata", zap.Error(err))
		return nil, err
	}

	rows, err := s.db.Query(ctx, `SELECT `+milestoneColumns+` FROM milestones`)
	if err != nil {
		s.logger.Error("Failed to load milestones", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			s.logger.Error("Failed to scan milestone", zap.Error(err))
			return nil, err
		}
		doc.Milestones[m.InternalID] = *m
	}
	return doc, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, doc *model.Document) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpDuration("save", s.Backend(), time.Since(start))
	}()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM milestones`); err != nil {
		return err
	}
	for _, m := range doc.Milestones {
		if err := upsertMilestone(ctx, tx, &m); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx,
		`UPDATE milestone_store_metadata SET last_updated = NOW() WHERE id = 1`,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, internalID string) (*model.Milestone, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+milestoneColumns+` FROM milestones WHERE internal_id = $1`,
		internalID,
	)
	m, err := scanMilestone(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (s *PostgresStore) Put(ctx context.Context, m *model.Milestone) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpDuration("put", s.Backend(), time.Since(start))
	}()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := upsertMilestone(ctx, tx, m); err != nil {
		s.logger.Error("Failed to upsert milestone",
			zap.String("internal_id", m.InternalID),
			zap.Error(err),
		)
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE milestone_store_metadata SET last_updated = NOW() WHERE id = 1`,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Delete(ctx context.Context, internalID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM milestones WHERE internal_id = $1`, internalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = s.db.Exec(ctx,
		`UPDATE milestone_store_metadata SET last_updated = NOW() WHERE id = 1`)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Milestone, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+milestoneColumns+` FROM milestones ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var milestones []model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		milestones = append(milestones, *m)
	}
	return milestones, rows.Err()
}

func (s *PostgresStore) FindByRemoteID(ctx context.Context, remoteID string) (*model.Milestone, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+milestoneColumns+` FROM milestones WHERE remote_id = $1`,
		remoteID,
	)
	m, err := scanMilestone(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func upsertMilestone(ctx context.Context, tx pgx.Tx, m *model.Milestone) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO milestones (`+milestoneColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        ON CONFLICT (internal_id) DO UPDATE SET
            remote_id = EXCLUDED.remote_id,
            target = EXCLUDED.target,
            status = EXCLUDED.status,
            synced = EXCLUDED.synced,
            is_completed = EXCLUDED.is_completed,
            completed_at = EXCLUDED.completed_at,
            current_value = EXCLUDED.current_value,
            updated_at = EXCLUDED.updated_at
    `,
		m.InternalID,
		nullable(m.RemoteID),
		m.ProjectID,
		m.KpiID,
		m.Target,
		m.MilestoneIndex,
		nullable(m.TimeframeFrom),
		nullable(m.TimeframeTo),
		m.Scopes,
		m.Metadata,
		m.Status,
		m.Synced,
		m.IsCompleted,
		nullable(m.CompletedAt),
		m.CurrentValue,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert milestone %s: %w", m.InternalID, err)
	}
	return nil
}

func scanMilestone(row pgx.Row) (*model.Milestone, error) {
	var m model.Milestone
	var remoteID, timeframeFrom, timeframeTo, completedAt *string
	err := row.Scan(
		&m.InternalID,
		&remoteID,
		&m.ProjectID,
		&m.KpiID,
		&m.Target,
		&m.MilestoneIndex,
		&timeframeFrom,
		&timeframeTo,
		&m.Scopes,
		&m.Metadata,
		&m.Status,
		&m.Synced,
		&m.IsCompleted,
		&completedAt,
		&m.CurrentValue,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.RemoteID = deref(remoteID)
	m.TimeframeFrom = deref(timeframeFrom)
	m.TimeframeTo = deref(timeframeTo)
	m.CompletedAt = deref(completedAt)
	return &m, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
