package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/mpf/internal/config"
	"github.com/your-org/mpf/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Records ---

const pgRecordColumns = `id, name, age, gender, last_seen_location, description, photo_key, status, tracking_code, source, created_at`

func scanPGRecord(row rowScanner) (*models.CaseRecord, error) {
	var r models.CaseRecord
	var status string
	if err := row.Scan(&r.ID, &r.Name, &r.Age, &r.Gender, &r.LastSeenLocation, &r.Description,
		&r.PhotoKey, &status, &r.TrackingCode, &r.Source, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = models.RecordStatus(status)
	return &r, nil
}

func (s *PostgresStore) CreateRecord(ctx context.Context, r *models.CaseRecord) error {
	if r.Status == "" {
		r.Status = models.RecordStatusMissing
	}
	if r.TrackingCode == "" {
		r.TrackingCode = models.NewTrackingCode()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO case_records (name, age, gender, last_seen_location, description, photo_key, status, tracking_code, source)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		r.Name, r.Age, r.Gender, r.LastSeenLocation, r.Description, r.PhotoKey,
		string(r.Status), r.TrackingCode, r.Source,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, id int64) (*models.CaseRecord, error) {
	r, err := scanPGRecord(s.pool.QueryRow(ctx, `SELECT `+pgRecordColumns+` FROM case_records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]models.CaseRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.CaseRecord
	for rows.Next() {
		r, err := scanPGRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

func (s *PostgresStore) ListRecords(ctx context.Context, status models.RecordStatus, limit int) ([]models.CaseRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if status == "" {
		return s.queryRecords(ctx, `SELECT `+pgRecordColumns+` FROM case_records ORDER BY id DESC LIMIT $1`, limit)
	}
	return s.queryRecords(ctx,
		`SELECT `+pgRecordColumns+` FROM case_records WHERE status = $1 ORDER BY id DESC LIMIT $2`,
		string(status), limit)
}

func (s *PostgresStore) ListRecordsByStatus(ctx context.Context, status models.RecordStatus, excludingID int64) ([]models.CaseRecord, error) {
	return s.queryRecords(ctx,
		`SELECT `+pgRecordColumns+` FROM case_records WHERE status = $1 AND id <> $2 ORDER BY id`,
		string(status), excludingID)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id int64, status models.RecordStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE case_records SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM case_records WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lock record: %w", err)
	}

	var open int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM match_facts WHERE (source_id = $1 OR candidate_id = $1) AND status <> $2`,
		id, string(models.MatchStatusDismissed)).Scan(&open)
	if err != nil {
		return fmt.Errorf("count open matches: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("record %d: %w", id, ErrRecordHasOpenMatches)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM case_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) RecordStats(ctx context.Context) (*models.RecordStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM case_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}
	defer rows.Close()

	stats := &models.RecordStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan record stats: %w", err)
		}
		addStat(stats, models.RecordStatus(status), n)
	}
	return stats, rows.Err()
}

// --- Matches ---

const pgMatchColumns = `id, source_id, candidate_id, score, method, evidence, status, created_at`

func scanPGMatch(row rowScanner) (*models.MatchFact, error) {
	var m models.MatchFact
	var method, status string
	var evidence []byte
	if err := row.Scan(&m.ID, &m.SourceID, &m.CandidateID, &m.Score, &method, &evidence, &status, &m.CreatedAt); err != nil {
		return nil, err
	}
	ev, err := models.UnmarshalEvidence(evidence)
	if err != nil {
		return nil, err
	}
	m.Evidence = ev
	m.Method = models.MatchMethod(method)
	m.Status = models.MatchStatus(status)
	return &m, nil
}

func (s *PostgresStore) FindMatch(ctx context.Context, key models.MatchKey) (*models.MatchFact, error) {
	m, err := scanPGMatch(s.pool.QueryRow(ctx,
		`SELECT `+pgMatchColumns+` FROM match_facts
		 WHERE source_id = $1 AND COALESCE(candidate_id, 0) = $2 AND method = $3`,
		key.SourceID, key.CandidateID, string(key.Method)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find match: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) InsertMatch(ctx context.Context, m *models.MatchFact) (bool, error) {
	evidence, err := models.MarshalEvidence(m.Evidence)
	if err != nil {
		return false, err
	}
	if m.Status == "" {
		m.Status = models.MatchStatusNew
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO match_facts (source_id, candidate_id, score, method, evidence, status)
		 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING RETURNING id, created_at`,
		m.SourceID, m.CandidateID, m.Score, string(m.Method), string(evidence), string(m.Status),
	).Scan(&m.ID, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert match: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) GetMatch(ctx context.Context, id int64) (*models.MatchFact, error) {
	m, err := scanPGMatch(s.pool.QueryRow(ctx, `SELECT `+pgMatchColumns+` FROM match_facts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("match %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) queryMatches(ctx context.Context, query string, args ...any) ([]models.MatchFact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []models.MatchFact
	for rows.Next() {
		m, err := scanPGMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (s *PostgresStore) ListMatches(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchFact, error) {
	if len(statuses) == 0 {
		return s.queryMatches(ctx, `SELECT `+pgMatchColumns+` FROM match_facts ORDER BY id DESC LIMIT $1`, limit)
	}
	return s.queryMatches(ctx,
		`SELECT `+pgMatchColumns+` FROM match_facts WHERE status = ANY($1) ORDER BY id DESC LIMIT $2`,
		statusStrings(statuses), limit)
}

func (s *PostgresStore) ListMatchesForRecord(ctx context.Context, recordID int64) ([]models.MatchFact, error) {
	return s.queryMatches(ctx,
		`SELECT `+pgMatchColumns+` FROM match_facts WHERE source_id = $1 OR candidate_id = $1 ORDER BY id DESC`,
		recordID)
}

func (s *PostgresStore) UpdateMatchStatus(ctx context.Context, id int64, status models.MatchStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE match_facts SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Notifications ---

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	var payload any
	if len(n.Payload) > 0 {
		payload = string(n.Payload)
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (title, message, level, payload, read)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		n.Title, n.Message, string(n.Level), payload, n.Read,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, includeRead bool, limit int) ([]models.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, message, level, payload, read, created_at FROM notifications
		 WHERE $1 OR NOT read ORDER BY id DESC LIMIT $2`, includeRead, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var level string
		var payload []byte
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &level, &payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Level = models.NotificationLevel(level)
		if payload != nil {
			n.Payload = json.RawMessage(payload)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `UPDATE notifications SET read = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// --- Embeddings ---

func (s *PostgresStore) GetEmbedding(ctx context.Context, recordID int64, photoKey string) ([]float32, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT embedding FROM record_embeddings WHERE record_id = $1 AND photo_key = $2`,
		recordID, photoKey).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	return vec.Slice(), nil
}

func (s *PostgresStore) PutEmbedding(ctx context.Context, recordID int64, photoKey string, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO record_embeddings (record_id, photo_key, embedding) VALUES ($1, $2, $3)
		 ON CONFLICT (record_id, photo_key) DO UPDATE SET embedding = EXCLUDED.embedding`,
		recordID, photoKey, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}
