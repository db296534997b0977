package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DashboardThrottle is the per-dashboard admission record.
type DashboardThrottle struct {
	DashboardID         string     `json:"dashboard_id" gorm:"primaryKey;column:dashboard_id;size:191"`
	LastAcceptedRequest *time.Time `json:"last_accepted_request" gorm:"column:last_accepted_request"`
	LastSuccess         *time.Time `json:"last_success" gorm:"column:last_success"`
}

func (DashboardThrottle) TableName() string {
	return "dashboards"
}

// Settings is the resolved per-dashboard capture configuration.
type Settings struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Pause    time.Duration `json:"pause"`
	Scroll   int           `json:"scroll"`
	Interval time.Duration `json:"interval"`
}

type DashboardSettings struct {
	Pause  *int `json:"pause"`  // milliseconds
	Scroll *int `json:"scroll"` // pixels
}

type DashboardSpec struct {
	Width            *int              `json:"width"`
	Height           *int              `json:"height"`
	Settings         DashboardSettings `json:"settings"`
	ScreenshotPeriod *int              `json:"screenshotPeriod"` // milliseconds
	Steps            []Event           `json:"steps"`
}

type Secret struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SecretTable struct {
	Secrets []Secret `json:"secrets"`
}

// Lookup returns the value stored under key.
func (t SecretTable) Lookup(key string) (string, bool) {
	for _, s := range t.Secrets {
		if s.Key == key {
			return s.Value, true
		}
	}
	return "", false
}

// CaptureRequest is what the shell bridge forwards for one dashboard.
type CaptureRequest struct {
	DashboardID string        `json:"dashboardId"`
	TenantID    string        `json:"tenantId"`
	Dashboard   DashboardSpec `json:"dashboard"`
	Secrets     SecretTable   `json:"secrets"`
}

// ResolveSettings applies defaults to absent request settings.
func (r CaptureRequest) ResolveSettings(defaults Settings) Settings {
	s := defaults
	if r.Dashboard.Width != nil && *r.Dashboard.Width > 0 {
		s.Width = *r.Dashboard.Width
	}
	if r.Dashboard.Height != nil && *r.Dashboard.Height > 0 {
		s.Height = *r.Dashboard.Height
	}
	if p := r.Dashboard.Settings.Pause; p != nil {
		s.Pause = time.Duration(*p) * time.Millisecond
	}
	if sc := r.Dashboard.Settings.Scroll; sc != nil {
		s.Scroll = *sc
	}
	if i := r.Dashboard.ScreenshotPeriod; i != nil {
		s.Interval = time.Duration(*i) * time.Millisecond
	}
	return s
}

// Task is one queued capture. It is consumed exactly once by a worker.
type Task struct {
	ID          string    `json:"id"`
	DashboardID string    `json:"dashboardId"`
	TenantID    string    `json:"tenantId"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Events      []Event   `json:"events"`
	IsPackaged  bool      `json:"isPackaged"`
	CreatedAt   time.Time `json:"createdAt"`
}

func NewTask(dashboardID, tenantID string, width, height int, events []Event) *Task {
	return &Task{
		ID:          uuid.New().String(),
		DashboardID: dashboardID,
		TenantID:    tenantID,
		Width:       width,
		Height:      height,
		Events:      events,
		CreatedAt:   time.Now(),
	}
}

// ErrInvalidDashboardID is returned for ids that cannot name a file.
var ErrInvalidDashboardID = errors.New("invalid dashboard id")

// ValidateDashboardID rejects ids that would escape the profile or
// screenshot directory they are joined onto.
func ValidateDashboardID(id string) error {
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidDashboardID, id)
	}
	return nil
}

// ScreenshotPath is where the latest capture of a dashboard at a given size
// lives.
func ScreenshotPath(dir, dashboardID string, width, height int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%dx%d.%s", dashboardID, width, height, strings.TrimPrefix(ext, ".")))
}
