package alerting

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
)

type fakePublisher struct {
	published []*models.Notification
	err       error
}

func (f *fakePublisher) PublishAlert(_ context.Context, n *models.Notification) error {
	f.published = append(f.published, n)
	return f.err
}

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHook(newStore(t), pub)
	ctx := context.Background()

	n, err := h.Notify(ctx, "Potential match detected", "1 potential match", models.LevelWarning, map[string]int{"count": 1})
	require.NoError(t, err)
	assert.NotZero(t, n.ID)
	assert.JSONEq(t, `{"count":1}`, string(n.Payload))

	require.Len(t, pub.published, 1)
	assert.Equal(t, n.ID, pub.published[0].ID)

	list, err := h.List(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Potential match detected", list[0].Title)
	assert.False(t, list[0].Read)
}

func TestNotifyPublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats down")}
	h := NewHook(newStore(t), pub)

	n, err := h.Notify(context.Background(), "t", "m", models.LevelInfo, nil)
	require.NoError(t, err)
	assert.Nil(t, n.Payload)
	assert.Len(t, pub.published, 1)
}

func TestNotifyRejectsUnknownLevel(t *testing.T) {
	h := NewHook(newStore(t))
	_, err := h.Notify(context.Background(), "t", "m", models.NotificationLevel("critical"), nil)
	assert.Error(t, err)
}

func TestNotifyNewSubmission(t *testing.T) {
	h := NewHook(newStore(t))
	r := &models.CaseRecord{ID: 3, Name: "Jane Doe", TrackingCode: "ABC123DEF0"}

	n, err := h.NotifyNewSubmission(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, NewSubmissionTitle, n.Title)
	assert.Equal(t, models.LevelInfo, n.Level)
	assert.Contains(t, n.Message, "ABC123DEF0")
	assert.Contains(t, n.Message, "Public")
}

func TestMarkReadAndDeleteAreIdempotent(t *testing.T) {
	h := NewHook(newStore(t))
	ctx := context.Background()

	n, err := h.Notify(ctx, "t", "m", models.LevelSuccess, nil)
	require.NoError(t, err)

	require.NoError(t, h.MarkRead(ctx, n.ID))
	require.NoError(t, h.MarkRead(ctx, n.ID))
	require.NoError(t, h.MarkRead(ctx, 12345))

	unread, err := h.List(ctx, false, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := h.List(ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Read)

	require.NoError(t, h.Delete(ctx, n.ID))
	require.NoError(t, h.Delete(ctx, n.ID))

	all, err = h.List(ctx, true, 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}
