package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/storage"
)

type cliEnv struct {
	configPath string
	store      *storage.SQLiteStore
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "mpf.db")
	configPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("database:\n  driver: sqlite\n  path: %s\nlogging:\n  level: error\n", dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	store, err := storage.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &cliEnv{configPath: configPath, store: store}
}

func runCLI(t *testing.T, env *cliEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedMatch(t *testing.T, env *cliEnv, score float64, method models.MatchMethod) (*models.CaseRecord, *models.CaseRecord, *models.MatchFact) {
	t.Helper()
	ctx := context.Background()
	a := &models.CaseRecord{Name: "Jane Doe"}
	b := &models.CaseRecord{Name: "Jane Do"}
	require.NoError(t, env.store.CreateRecord(ctx, a))
	require.NoError(t, env.store.CreateRecord(ctx, b))
	fact := &models.MatchFact{
		SourceID:    a.ID,
		CandidateID: &b.ID,
		Score:       score,
		Method:      method,
		Status:      models.MatchStatusNew,
	}
	inserted, err := env.store.InsertMatch(ctx, fact)
	require.NoError(t, err)
	require.True(t, inserted)
	return a, b, fact
}

func TestMatchesListAndRecord(t *testing.T) {
	env := setupCLIEnv(t)
	a, _, _ := seedMatch(t, env, 74.5, models.MatchMethodContext)
	seedMatch(t, env, 95, models.MatchMethodFacial)

	out, err := runCLI(t, env, "matches", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "74.5")
	assert.Contains(t, out, "facial")
	assert.Less(t, strings.Index(out, "95.0"), strings.Index(out, "74.5"))

	out, err = runCLI(t, env, "matches", "record", fmt.Sprint(a.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "74.5")
	assert.NotContains(t, out, "95.0")

	out, err = runCLI(t, env, "matches", "list", "--status", "Escalated")
	require.NoError(t, err)
	assert.Contains(t, out, "No matches")

	_, err = runCLI(t, env, "matches", "list", "--status", "Open")
	require.Error(t, err)
}

func TestMatchesSetStatusEscalates(t *testing.T) {
	env := setupCLIEnv(t)
	_, _, fact := seedMatch(t, env, 88, models.MatchMethodContext)

	out, err := runCLI(t, env, "matches", "set-status", fmt.Sprint(fact.ID), "Escalated")
	require.NoError(t, err)
	assert.Contains(t, out, "is now Escalated")

	out, err = runCLI(t, env, "notifications", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Match escalated")

	_, err = runCLI(t, env, "matches", "set-status", "9999", "Dismissed")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = runCLI(t, env, "matches", "set-status", fmt.Sprint(fact.ID), "Closed")
	require.Error(t, err)
}

func TestNotificationsReadAndDelete(t *testing.T) {
	env := setupCLIEnv(t)
	ctx := context.Background()
	n := &models.Notification{Title: "Potential match detected", Message: "2 matches", Level: models.LevelWarning}
	require.NoError(t, env.store.CreateNotification(ctx, n))

	out, err := runCLI(t, env, "notifications", "read", fmt.Sprint(n.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "marked read")

	out, err = runCLI(t, env, "notifications", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No notifications")

	out, err = runCLI(t, env, "notifications", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Potential match detected")
	assert.Contains(t, out, "yes")

	_, err = runCLI(t, env, "notifications", "delete", fmt.Sprint(n.ID))
	require.NoError(t, err)

	out, err = runCLI(t, env, "notifications", "list", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "No notifications")
}

func TestStats(t *testing.T) {
	env := setupCLIEnv(t)
	seedMatch(t, env, 80, models.MatchMethodContext)

	out, err := runCLI(t, env, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Missing")
	assert.Contains(t, out, "Total")
}

func TestRematchRequiresQueue(t *testing.T) {
	env := setupCLIEnv(t)
	a, _, _ := seedMatch(t, env, 80, models.MatchMethodContext)

	_, err := runCLI(t, env, "rematch", fmt.Sprint(a.ID))
	require.EqualError(t, err, "nats url is not configured")

	_, err = runCLI(t, env, "rematch", "9999")
	require.EqualError(t, err, "record 9999 not found")
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Title"}, [][]string{{"1", "Alpha"}, {"22"}}, []columnAlignment{alignRight, alignLeft})
	assert.Contains(t, out, "╭")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "22")
	assert.Empty(t, renderTable(nil, nil, nil))
}
