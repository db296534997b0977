// Package store persists per-dashboard admission state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dashshot/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThrottleStore keeps the last accepted request and last success of every
// dashboard. Rows are created lazily on first write.
type ThrottleStore struct {
	db *gorm.DB
}

func NewThrottleStore(db *gorm.DB) *ThrottleStore {
	return &ThrottleStore{db: db}
}

func (s *ThrottleStore) upsert(ctx context.Context, row models.DashboardThrottle, column string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dashboard_id"}},
		DoUpdates: clause.AssignmentColumns([]string{column}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to update %s for dashboard %s: %w", column, row.DashboardID, err)
	}
	return nil
}

func (s *ThrottleStore) MarkAccepted(ctx context.Context, dashboardID string, at time.Time) error {
	return s.upsert(ctx, models.DashboardThrottle{DashboardID: dashboardID, LastAcceptedRequest: &at}, "last_accepted_request")
}

func (s *ThrottleStore) MarkSuccess(ctx context.Context, dashboardID string, at time.Time) error {
	return s.upsert(ctx, models.DashboardThrottle{DashboardID: dashboardID, LastSuccess: &at}, "last_success")
}

// Get returns the row for a dashboard, or nil when it has none yet.
func (s *ThrottleStore) Get(ctx context.Context, dashboardID string) (*models.DashboardThrottle, error) {
	var row models.DashboardThrottle
	err := s.db.WithContext(ctx).Where("dashboard_id = ?", dashboardID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dashboard %s: %w", dashboardID, err)
	}
	return &row, nil
}

func (s *ThrottleStore) LastAccepted(ctx context.Context, dashboardID string) (*time.Time, error) {
	row, err := s.Get(ctx, dashboardID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.LastAcceptedRequest, nil
}

func (s *ThrottleStore) LastSuccess(ctx context.Context, dashboardID string) (*time.Time, error) {
	row, err := s.Get(ctx, dashboardID)
	if err != nil || row == nil {
		return nil, err
	}
	return row.LastSuccess, nil
}

// Stale lists dashboards that were accepted but have not succeeded since
// before cutoff.
func (s *ThrottleStore) Stale(ctx context.Context, cutoff time.Time) ([]models.DashboardThrottle, error) {
	var rows []models.DashboardThrottle
	err := s.db.WithContext(ctx).
		Where("last_accepted_request IS NOT NULL").
		Where("(last_success IS NULL OR last_success < ?)", cutoff).
		Order("dashboard_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale dashboards: %w", err)
	}
	return rows, nil
}
