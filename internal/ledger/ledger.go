// Package ledger keeps the append-only record of accepted matches.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/observability"
)

const defaultListLimit = 100

// Store is the persistence the ledger needs. InsertMatch must report inserted=false
// instead of failing when the (source, candidate, method) triple already exists.
type Store interface {
	FindMatch(ctx context.Context, key models.MatchKey) (*models.MatchFact, error)
	InsertMatch(ctx context.Context, m *models.MatchFact) (bool, error)
	GetMatch(ctx context.Context, id int64) (*models.MatchFact, error)
	ListMatches(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchFact, error)
	ListMatchesForRecord(ctx context.Context, recordID int64) ([]models.MatchFact, error)
	UpdateMatchStatus(ctx context.Context, id int64, status models.MatchStatus) error
}

type Notifier interface {
	Notify(ctx context.Context, title, message string, level models.NotificationLevel, payload any) (*models.Notification, error)
}

type Ledger struct {
	store  Store
	alerts Notifier
	locks  keyedMutex
}

func New(store Store, alerts Notifier) *Ledger {
	return &Ledger{store: store, alerts: alerts}
}

// RecordMatch inserts a match fact unless one exists for the same
// (source, candidate, method). The existing fact is returned with inserted=false.
func (l *Ledger) RecordMatch(ctx context.Context, sourceID int64, candidateID *int64, score float64,
	method models.MatchMethod, evidence models.Evidence) (*models.MatchFact, bool, error) {
	if !method.Valid() {
		return nil, false, fmt.Errorf("invalid match method %q", method)
	}
	key := models.NewMatchKey(sourceID, candidateID, method)

	unlock := l.locks.lock(key)
	defer unlock()

	existing, err := l.store.FindMatch(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("find match %s: %w", key, err)
	}
	if existing != nil {
		observability.MatchesDuplicate.WithLabelValues(string(method)).Inc()
		return existing, false, nil
	}

	fact := &models.MatchFact{
		SourceID:    sourceID,
		CandidateID: candidateID,
		Score:       score,
		Method:      method,
		Evidence:    evidence,
		Status:      models.MatchStatusNew,
	}
	inserted, err := l.store.InsertMatch(ctx, fact)
	if err != nil {
		return nil, false, fmt.Errorf("insert match %s: %w", key, err)
	}
	if !inserted {
		// Another process won the race between find and insert.
		observability.MatchesDuplicate.WithLabelValues(string(method)).Inc()
		existing, err := l.store.FindMatch(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("find match %s: %w", key, err)
		}
		return existing, false, nil
	}

	observability.MatchesRecorded.WithLabelValues(string(method)).Inc()
	slog.Info("match recorded", "id", fact.ID, "key", key.String(), "score", score)
	return fact, true, nil
}

// ListMatches returns matches newest first, restricted to statuses when given.
func (l *Ledger) ListMatches(ctx context.Context, statuses []models.MatchStatus, limit int) ([]models.MatchFact, error) {
	for _, s := range statuses {
		if !s.Valid() {
			return nil, fmt.Errorf("invalid match status %q", s)
		}
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	matches, err := l.store.ListMatches(ctx, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

// ListMatchesForRecord returns matches where the record is source or candidate, newest first.
func (l *Ledger) ListMatchesForRecord(ctx context.Context, recordID int64) ([]models.MatchFact, error) {
	matches, err := l.store.ListMatchesForRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("list matches for record %d: %w", recordID, err)
	}
	return matches, nil
}

// UpdateMatchStatus overwrites the status. Any transition is allowed; escalation
// also notifies operators.
func (l *Ledger) UpdateMatchStatus(ctx context.Context, id int64, status models.MatchStatus) (*models.MatchFact, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid match status %q", status)
	}
	if err := l.store.UpdateMatchStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update match %d: %w", id, err)
	}

	fact, err := l.store.GetMatch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get match %d: %w", id, err)
	}

	if status == models.MatchStatusEscalated && l.alerts != nil {
		message := fmt.Sprintf("Match #%d (%s, score %.1f) was escalated.", id, fact.Method, fact.Score)
		payload := map[string]any{
			"match_id":     fact.ID,
			"source_id":    fact.SourceID,
			"candidate_id": fact.CandidateID,
			"method":       fact.Method,
		}
		if _, err := l.alerts.Notify(ctx, "Match escalated", message, models.LevelWarning, payload); err != nil {
			return nil, fmt.Errorf("notify escalation of %d: %w", id, err)
		}
	}
	return fact, nil
}

// keyedMutex serialises work per match key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[models.MatchKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key models.MatchKey) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[models.MatchKey]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
