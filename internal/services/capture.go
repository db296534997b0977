package services

import (
	"context"
	"encoding/base64"
	"mime"
	"os"
	"path/filepath"
	"time"

	"dashshot/internal/compiler"
	"dashshot/internal/config"
	"dashshot/internal/models"

	"github.com/rs/zerolog/log"
)

// Submitter admits capture tasks.
type Submitter interface {
	Submit(ctx context.Context, task *models.Task, interval time.Duration) (bool, error)
}

// CaptureService is the entry point for capture requests from the shell.
type CaptureService struct {
	orchestrator Submitter
	compiler     *compiler.Compiler
	cfg          config.CaptureConfig
}

func NewCaptureService(orchestrator Submitter, c *compiler.Compiler, cfg config.CaptureConfig) *CaptureService {
	return &CaptureService{orchestrator: orchestrator, compiler: c, cfg: cfg}
}

func (s *CaptureService) defaults() models.Settings {
	return models.Settings{
		Width:    s.cfg.DefaultWidth,
		Height:   s.cfg.DefaultHeight,
		Pause:    s.cfg.DefaultPause,
		Interval: s.cfg.DefaultInterval,
	}
}

// Capture plans a new capture when the dashboard is due and returns the
// latest stored screenshot as a data URL. An empty result means nothing is
// ready yet, whatever the reason.
func (s *CaptureService) Capture(ctx context.Context, req models.CaptureRequest) string {
	logger := log.With().Str("dashboardId", req.DashboardID).Logger()
	settings := req.ResolveSettings(s.defaults())

	events := compiler.PopulateSettings(req.Dashboard.Steps, settings)
	events, err := compiler.ResolveSecrets(events, req.Secrets)
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ Capture rejected")
		return ""
	}
	if _, err := s.compiler.Compile(events, req.TenantID, req.DashboardID); err != nil {
		logger.Warn().Err(err).Msg("⚠️ Capture script does not compile")
		return ""
	}

	task := models.NewTask(req.DashboardID, req.TenantID, settings.Width, settings.Height, events)
	if _, err := s.orchestrator.Submit(ctx, task, settings.Interval); err != nil {
		logger.Error().Err(err).Msg("Failed to submit capture")
	}

	return s.read(req.DashboardID, settings.Width, settings.Height)
}

// Path is where the screenshot of a dashboard at a size is stored.
func (s *CaptureService) Path(dashboardID string, width, height int) string {
	return models.ScreenshotPath(s.cfg.Dir, dashboardID, width, height, s.cfg.Extension)
}

func (s *CaptureService) read(dashboardID string, width, height int) string {
	path := s.Path(dashboardID, width, height)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("No screenshot yet")
		return ""
	}
	return DataURL(filepath.Ext(path), data)
}

// DataURL encodes an image file's contents with the media type implied by
// its extension.
func DataURL(ext string, data []byte) string {
	mediaType := mime.TypeByExtension(ext)
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
