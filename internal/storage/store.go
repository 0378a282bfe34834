package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/mpf/internal/config"
	"github.com/your-org/mpf/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrRecordHasOpenMatches blocks deleting a record that still has undismissed matches.
	ErrRecordHasOpenMatches = errors.New("record has open matches")
)

type RecordStore interface {
	CreateRecord(ctx context.Context, r *models.CaseRecord) error
	GetRecord(ctx context.Context, id int64) (*models.CaseRecord, error)
	ListRecords(ctx context.Context, status models.RecordStatus, limit int) ([]models.CaseRecord, error)
	ListRecordsByStatus(ctx context.Context, status models.RecordStatus, excludingID int64) ([]models.CaseRecord, error)
	SetStatus(ctx context.Context, id int64, status models.RecordStatus) error
	DeleteRecord(ctx context.Context, id int64) error
	RecordStats(ctx context.Context) (*models.RecordStats, error)
}

type MatchStore interface {
	FindMatch(ctx context.Context, key models.MatchKey) (*models.MatchFact, error)
	InsertMatch(ctx context.Context, m *models.MatchFact) (bool, error)
	GetMatch(ctx context.Context, id int64) (*models.MatchFact, error)
	ListMatches(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchFact, error)
	ListMatchesForRecord(ctx context.Context, recordID int64) ([]models.MatchFact, error)
	UpdateMatchStatus(ctx context.Context, id int64, status models.MatchStatus) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, includeRead bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	DeleteNotification(ctx context.Context, id int64) error
}

type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, recordID int64, photoKey string) ([]float32, error)
	PutEmbedding(ctx context.Context, recordID int64, photoKey string, embedding []float32) error
}

// Store is the full persistence surface shared by the Postgres and SQLite backends.
type Store interface {
	RecordStore
	MatchStore
	NotificationStore
	EmbeddingStore
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by cfg.Driver and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg)
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func statusStrings(statuses []models.MatchStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
