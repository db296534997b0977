package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dashshot/internal/config"
	"dashshot/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type StaleLister interface {
	Stale(ctx context.Context, cutoff time.Time) ([]models.DashboardThrottle, error)
}

// Janitor periodically removes browser profiles of dashboards that are no
// longer captured and reports dashboards whose captures keep failing.
type Janitor struct {
	cron        *cron.Cron
	cfg         config.JanitorConfig
	profilesDir string
	store       StaleLister
	busy        func(dashboardID string) bool
	now         func() time.Time
}

func NewJanitor(cfg config.JanitorConfig, profilesDir string, store StaleLister, busy func(string) bool) *Janitor {
	if busy == nil {
		busy = func(string) bool { return false }
	}
	return &Janitor{
		cron:        cron.New(cron.WithSeconds()),
		cfg:         cfg,
		profilesDir: profilesDir,
		store:       store,
		busy:        busy,
		now:         time.Now,
	}
}

func (j *Janitor) Start() error {
	if j.cfg.Schedule == "" {
		log.Info().Msg("Janitor disabled")
		return nil
	}
	entryID, err := j.cron.AddFunc(j.cfg.Schedule, j.run)
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.cfg.Schedule, err)
	}
	j.cron.Start()
	log.Info().Int("entry", int(entryID)).Str("schedule", j.cfg.Schedule).Msg("🧹 Janitor scheduled")
	return nil
}

// Stop waits for a running pass to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) run() {
	if _, err := j.PruneProfiles(); err != nil {
		log.Error().Err(err).Msg("Failed to prune browser profiles")
	}
	if _, err := j.ReportStale(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to check stale dashboards")
	}
}

// PruneProfiles deletes profile directories untouched for longer than the
// configured TTL, skipping dashboards with a pending capture.
func (j *Janitor) PruneProfiles() ([]string, error) {
	if j.cfg.ProfileTTL <= 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(j.profilesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	cutoff := j.now().Add(-j.cfg.ProfileTTL)
	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || j.busy(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(j.profilesDir, entry.Name())); err != nil {
			log.Warn().Err(err).Str("dashboardId", entry.Name()).Msg("Failed to remove profile")
			continue
		}
		removed = append(removed, entry.Name())
	}
	if len(removed) > 0 {
		log.Info().Strs("dashboards", removed).Msg("🧹 Pruned browser profiles")
	}
	return removed, nil
}

// ReportStale logs every dashboard accepted for capture whose last success
// is older than the stale threshold.
func (j *Janitor) ReportStale(ctx context.Context) ([]string, error) {
	if j.store == nil || j.cfg.StaleAfter <= 0 {
		return nil, nil
	}
	rows, err := j.store.Stale(ctx, j.now().Add(-j.cfg.StaleAfter))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ev := log.Warn().Str("dashboardId", r.DashboardID)
		if r.LastSuccess != nil {
			ev = ev.Time("lastSuccess", *r.LastSuccess)
		}
		ev.Msg("⚠️ Dashboard has no recent screenshot")
		ids = append(ids, r.DashboardID)
	}
	return ids, nil
}
