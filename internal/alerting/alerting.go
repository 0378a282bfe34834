// Package alerting stores operator notifications and fans them out.
package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/observability"
)

const (
	defaultListLimit = 50

	NewSubmissionTitle = "New report received"
)

type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, includeRead bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Publisher receives notifications after they are stored.
type Publisher interface {
	PublishAlert(ctx context.Context, n *models.Notification) error
}

type Hook struct {
	store      Store
	publishers []Publisher
}

// NewHook builds a hook over store. Publishers are optional.
func NewHook(store Store, publishers ...Publisher) *Hook {
	return &Hook{store: store, publishers: publishers}
}

// Notify appends a notification. Storage errors propagate; publish failures are
// only logged since the stored row is authoritative.
func (h *Hook) Notify(ctx context.Context, title, message string, level models.NotificationLevel, payload any) (*models.Notification, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("invalid notification level %q", level)
	}

	n := &models.Notification{
		Title:   title,
		Message: message,
		Level:   level,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal notification payload: %w", err)
		}
		n.Payload = raw
	}

	if err := h.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	observability.NotificationsCreated.WithLabelValues(string(level)).Inc()
	slog.Info("notification created", "id", n.ID, "title", title, "level", level)

	for _, p := range h.publishers {
		if err := p.PublishAlert(ctx, n); err != nil {
			slog.Warn("publish notification", "id", n.ID, "error", err)
		}
	}
	return n, nil
}

// NotifyNewSubmission tells operators a report arrived.
func (h *Hook) NotifyNewSubmission(ctx context.Context, r *models.CaseRecord) (*models.Notification, error) {
	source := r.Source
	if source == "" {
		source = "Public"
	}
	message := fmt.Sprintf("New %s report for %s. Tracking code: %s", source, r.Name, r.TrackingCode)
	payload := map[string]any{
		"record_id":     r.ID,
		"tracking_code": r.TrackingCode,
		"source":        source,
	}
	return h.Notify(ctx, NewSubmissionTitle, message, models.LevelInfo, payload)
}

// List returns notifications newest first.
func (h *Hook) List(ctx context.Context, includeRead bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	out, err := h.store.ListNotifications(ctx, includeRead, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// MarkRead is a no-op for unknown ids.
func (h *Hook) MarkRead(ctx context.Context, id int64) error {
	if err := h.store.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	return nil
}

// Delete is a no-op for unknown ids.
func (h *Hook) Delete(ctx context.Context, id int64) error {
	if err := h.store.DeleteNotification(ctx, id); err != nil {
		return fmt.Errorf("delete notification %d: %w", id, err)
	}
	return nil
}
