package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mpf/internal/matching"
	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
)

type recordingEngine struct {
	subs []matching.Submission
	err  error
}

func (e *recordingEngine) Run(_ context.Context, sub matching.Submission) ([]matching.Outcome, error) {
	e.subs = append(e.subs, sub)
	return nil, e.err
}

type photoBlobs map[string][]byte

func (b photoBlobs) PutObject(_ context.Context, key string, data []byte, _ string) error {
	b[key] = data
	return nil
}

func (b photoBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := b[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return data, nil
}

func (b photoBlobs) DeleteObject(_ context.Context, key string) error {
	delete(b, key)
	return nil
}

func newHandler(t *testing.T) (*taskHandler, *storage.SQLiteStore, *recordingEngine, photoBlobs) {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng := &recordingEngine{}
	blobs := photoBlobs{}
	return newTaskHandler(store, blobs, eng, "", ""), store, eng, blobs
}

func TestHandleBuildsSubmission(t *testing.T) {
	h, store, eng, blobs := newHandler(t)
	ctx := context.Background()

	r := &models.CaseRecord{Name: "Jane Doe", LastSeenLocation: "City Library", Age: "30", PhotoKey: "records/a.png"}
	require.NoError(t, store.CreateRecord(ctx, r))
	blobs["records/a.png"] = []byte("photo")

	require.NoError(t, h.handle(ctx, models.MatchTask{RecordID: r.ID, Reason: "submitted"}))
	require.Len(t, eng.subs, 1)
	assert.Equal(t, matching.Submission{
		RecordID: r.ID,
		Photo:    []byte("photo"),
		Name:     "Jane Doe",
		Location: "City Library",
		Age:      "30",
	}, eng.subs[0])
}

func TestHandleMissingPhotoObject(t *testing.T) {
	h, store, eng, _ := newHandler(t)
	ctx := context.Background()

	r := &models.CaseRecord{Name: "A", PhotoKey: "records/gone.jpg"}
	require.NoError(t, store.CreateRecord(ctx, r))

	require.NoError(t, h.handle(ctx, models.MatchTask{RecordID: r.ID}))
	require.Len(t, eng.subs, 1)
	assert.Nil(t, eng.subs[0].Photo)
}

func TestHandleDropsUnknownAndFoundRecords(t *testing.T) {
	h, store, eng, _ := newHandler(t)
	ctx := context.Background()

	require.NoError(t, h.handle(ctx, models.MatchTask{RecordID: 404}))

	found := &models.CaseRecord{Name: "A"}
	require.NoError(t, store.CreateRecord(ctx, found))
	require.NoError(t, store.SetStatus(ctx, found.ID, models.RecordStatusFound))
	require.NoError(t, h.handle(ctx, models.MatchTask{RecordID: found.ID}))
	assert.Empty(t, eng.subs)

	pending := &models.CaseRecord{Name: "B"}
	require.NoError(t, store.CreateRecord(ctx, pending))
	require.NoError(t, store.SetStatus(ctx, pending.ID, models.RecordStatusPendingReview))
	require.NoError(t, h.handle(ctx, models.MatchTask{RecordID: pending.ID}))
	require.Len(t, eng.subs, 1)
	assert.Equal(t, pending.ID, eng.subs[0].RecordID)
}

func TestHandleUsesConfiguredStatuses(t *testing.T) {
	h, store, eng, _ := newHandler(t)
	h = newTaskHandler(h.records, h.blobs, eng, "Reported", "Under Review")
	ctx := context.Background()

	statuses := []models.RecordStatus{"Reported", "Under Review", models.RecordStatusMissing, models.RecordStatusFound, "Closed"}
	ids := make([]int64, 0, len(statuses))
	for _, st := range statuses {
		r := &models.CaseRecord{Name: string(st), Status: st}
		require.NoError(t, store.CreateRecord(ctx, r))
		ids = append(ids, r.ID)
	}
	for _, id := range ids {
		require.NoError(t, h.handle(ctx, models.MatchTask{RecordID: id}))
	}

	require.Len(t, eng.subs, 2)
	assert.Equal(t, ids[0], eng.subs[0].RecordID)
	assert.Equal(t, ids[1], eng.subs[1].RecordID)
}

func TestHandleReturnsEngineError(t *testing.T) {
	h, store, eng, _ := newHandler(t)
	ctx := context.Background()
	eng.err = errors.New("database is locked")

	r := &models.CaseRecord{Name: "A"}
	require.NoError(t, store.CreateRecord(ctx, r))

	err := h.handle(ctx, models.MatchTask{RecordID: r.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, eng.err)
}
