package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/your-org/mpf/internal/models"
)

// SQLiteStore is the embedded backend used for single-node deployments and tests.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; queries queue on the single connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Records ---

const sqliteRecordColumns = `id, name, age, gender, last_seen_location, description, photo_key, status, tracking_code, source, created_at`

func (s *SQLiteStore) CreateRecord(ctx context.Context, r *models.CaseRecord) error {
	if r.Status == "" {
		r.Status = models.RecordStatusMissing
	}
	if r.TrackingCode == "" {
		r.TrackingCode = models.NewTrackingCode()
	}
	r.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO case_records (name, age, gender, last_seen_location, description, photo_key, status, tracking_code, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Age, r.Gender, r.LastSeenLocation, r.Description, r.PhotoKey,
		string(r.Status), r.TrackingCode, r.Source, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

func scanSQLiteRecord(row rowScanner) (*models.CaseRecord, error) {
	var r models.CaseRecord
	var status, createdAt string
	if err := row.Scan(&r.ID, &r.Name, &r.Age, &r.Gender, &r.LastSeenLocation, &r.Description,
		&r.PhotoKey, &status, &r.TrackingCode, &r.Source, &createdAt); err != nil {
		return nil, err
	}
	r.Status = models.RecordStatus(status)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, id int64) (*models.CaseRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRecordColumns+` FROM case_records WHERE id = ?`, id)
	r, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]models.CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.CaseRecord
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// ListRecords returns records newest first; an empty status lists everything.
func (s *SQLiteStore) ListRecords(ctx context.Context, status models.RecordStatus, limit int) ([]models.CaseRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	if status == "" {
		return s.queryRecords(ctx, `SELECT `+sqliteRecordColumns+` FROM case_records ORDER BY id DESC LIMIT ?`, limit)
	}
	return s.queryRecords(ctx,
		`SELECT `+sqliteRecordColumns+` FROM case_records WHERE status = ? ORDER BY id DESC LIMIT ?`,
		string(status), limit)
}

// ListRecordsByStatus returns every record with the status except excludingID, oldest first.
func (s *SQLiteStore) ListRecordsByStatus(ctx context.Context, status models.RecordStatus, excludingID int64) ([]models.CaseRecord, error) {
	return s.queryRecords(ctx,
		`SELECT `+sqliteRecordColumns+` FROM case_records WHERE status = ? AND id <> ? ORDER BY id`,
		string(status), excludingID)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id int64, status models.RecordStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE case_records SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRecord removes a record unless it takes part in an undismissed match.
// Dismissed matches and cached embeddings go with it.
func (s *SQLiteStore) DeleteRecord(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var open int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM match_facts WHERE (source_id = ? OR candidate_id = ?) AND status <> ?`,
		id, id, string(models.MatchStatusDismissed)).Scan(&open)
	if err != nil {
		return fmt.Errorf("count open matches: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("record %d: %w", id, ErrRecordHasOpenMatches)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM case_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecordStats(ctx context.Context) (*models.RecordStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM case_records GROUP BY status`)
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

func addStat(stats *models.RecordStats, status models.RecordStatus, n int) {
	switch status {
	case models.RecordStatusMissing:
		stats.Missing += n
	case models.RecordStatusFound:
		stats.Found += n
	case models.RecordStatusPendingReview:
		stats.PendingReview += n
	}
	stats.Total += n
}

// --- Matches ---

const sqliteMatchColumns = `id, source_id, candidate_id, score, method, evidence, status, created_at`

func scanSQLiteMatch(row rowScanner) (*models.MatchFact, error) {
	var m models.MatchFact
	var candidate sql.NullInt64
	var method, evidence, status, createdAt string
	if err := row.Scan(&m.ID, &m.SourceID, &candidate, &m.Score, &method, &evidence, &status, &createdAt); err != nil {
		return nil, err
	}
	if candidate.Valid {
		id := candidate.Int64
		m.CandidateID = &id
	}
	ev, err := models.UnmarshalEvidence([]byte(evidence))
	if err != nil {
		return nil, err
	}
	m.Evidence = ev
	m.Method = models.MatchMethod(method)
	m.Status = models.MatchStatus(status)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

func (s *SQLiteStore) FindMatch(ctx context.Context, key models.MatchKey) (*models.MatchFact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteMatchColumns+` FROM match_facts
		 WHERE source_id = ? AND COALESCE(candidate_id, 0) = ? AND method = ?`,
		key.SourceID, key.CandidateID, string(key.Method))
	m, err := scanSQLiteMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find match: %w", err)
	}
	return m, nil
}

// InsertMatch reports false when the unique (source, candidate, method) index rejects the row.
func (s *SQLiteStore) InsertMatch(ctx context.Context, m *models.MatchFact) (bool, error) {
	evidence, err := models.MarshalEvidence(m.Evidence)
	if err != nil {
		return false, err
	}
	if m.Status == "" {
		m.Status = models.MatchStatusNew
	}
	m.CreatedAt = time.Now().UTC()

	var candidate sql.NullInt64
	if m.CandidateID != nil {
		candidate = sql.NullInt64{Int64: *m.CandidateID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO match_facts (source_id, candidate_id, score, method, evidence, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		m.SourceID, candidate, m.Score, string(m.Method), string(evidence), string(m.Status), formatTime(m.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return true, nil
}

func (s *SQLiteStore) GetMatch(ctx context.Context, id int64) (*models.MatchFact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteMatchColumns+` FROM match_facts WHERE id = ?`, id)
	m, err := scanSQLiteMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) queryMatches(ctx context.Context, query string, args ...any) ([]models.MatchFact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	var matches []models.MatchFact
	for rows.Next() {
		m, err := scanSQLiteMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (s *SQLiteStore) ListMatches(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchFact, error) {
	query := `SELECT ` + sqliteMatchColumns + ` FROM match_facts`
	var args []any
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		query += ` WHERE status IN (` + placeholders + `)`
		for _, st := range statusStrings(statuses) {
			args = append(args, st)
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return s.queryMatches(ctx, query, args...)
}

func (s *SQLiteStore) ListMatchesForRecord(ctx context.Context, recordID int64) ([]models.MatchFact, error) {
	return s.queryMatches(ctx,
		`SELECT `+sqliteMatchColumns+` FROM match_facts WHERE source_id = ? OR candidate_id = ? ORDER BY id DESC`,
		recordID, recordID)
}

func (s *SQLiteStore) UpdateMatchStatus(ctx context.Context, id int64, status models.MatchStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE match_facts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("match %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- Notifications ---

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	n.CreatedAt = time.Now().UTC()
	var payload sql.NullString
	if len(n.Payload) > 0 {
		payload = sql.NullString{String: string(n.Payload), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (title, message, level, payload, read, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.Title, n.Message, string(n.Level), payload, n.Read, formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	n.ID = id
	return nil
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, includeRead bool, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, message, level, payload, read, created_at FROM notifications
		 WHERE ? OR read = 0 ORDER BY id DESC LIMIT ?`, includeRead, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var level, createdAt string
		var payload sql.NullString
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &level, &payload, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Level = models.NotificationLevel(level)
		if payload.Valid {
			n.Payload = json.RawMessage(payload.String)
		}
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteNotification(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

// --- Embeddings ---

func (s *SQLiteStore) GetEmbedding(ctx context.Context, recordID int64, photoKey string) ([]float32, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT embedding FROM record_embeddings WHERE record_id = ? AND photo_key = ?`,
		recordID, photoKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding: %w", err)
	}
	var emb []float32
	if err := json.Unmarshal([]byte(raw), &emb); err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	return emb, nil
}

func (s *SQLiteStore) PutEmbedding(ctx context.Context, recordID int64, photoKey string, embedding []float32) error {
	raw, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO record_embeddings (record_id, photo_key, embedding, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (record_id, photo_key) DO UPDATE SET embedding = excluded.embedding`,
		recordID, photoKey, string(raw), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}
