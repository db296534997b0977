package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dashshot/internal/config"
	"dashshot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staleStore struct {
	cutoff time.Time
	rows   []models.DashboardThrottle
}

func (s *staleStore) Stale(ctx context.Context, cutoff time.Time) ([]models.DashboardThrottle, error) {
	s.cutoff = cutoff
	return s.rows, nil
}

func TestJanitorPrunesIdleProfiles(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-30 * 24 * time.Hour)
	for _, id := range []string{"idle", "queued", "fresh"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, id, "Default"), 0o755))
	}
	require.NoError(t, os.Chtimes(filepath.Join(dir, "idle"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "queued"), old, old))

	j := NewJanitor(config.JanitorConfig{ProfileTTL: 14 * 24 * time.Hour}, dir, nil,
		func(id string) bool { return id == "queued" })

	removed, err := j.PruneProfiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, removed)
	assert.NoDirExists(t, filepath.Join(dir, "idle"))
	assert.DirExists(t, filepath.Join(dir, "queued"))
	assert.DirExists(t, filepath.Join(dir, "fresh"))
}

func TestJanitorMissingProfilesDir(t *testing.T) {
	j := NewJanitor(config.JanitorConfig{ProfileTTL: time.Hour}, filepath.Join(t.TempDir(), "none"), nil, nil)
	removed, err := j.PruneProfiles()
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestJanitorReportsStaleDashboards(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &staleStore{rows: []models.DashboardThrottle{{DashboardID: "d1"}, {DashboardID: "d2"}}}
	j := NewJanitor(config.JanitorConfig{StaleAfter: time.Hour}, t.TempDir(), store, nil)
	j.now = func() time.Time { return now }

	ids, err := j.ReportStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids)
	assert.Equal(t, now.Add(-time.Hour), store.cutoff)
}

func TestJanitorRejectsBadSchedule(t *testing.T) {
	j := NewJanitor(config.JanitorConfig{Schedule: "not a schedule"}, t.TempDir(), nil, nil)
	assert.Error(t, j.Start())
}
